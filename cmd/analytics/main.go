// Command analytics consumes search and index-build events from Kafka,
// aggregates them in memory, and serves the result at GET /api/v1/analytics.
// With analytics.persistSnapshots set it also writes periodic snapshots to
// PostgreSQL.
//
// Usage:
//
//	go run ./cmd/analytics [--config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/okapi/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/okapi/internal/analytics/store"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/postgres"
)

func main() {
	configPath := flag.StringP("config", "c", "", "path to config file")
	port := flag.IntP("port", "p", 8081, "HTTP port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Server.Port = *port

	logger.Setup("analytics", cfg.Logging)
	slog.Info("starting analytics service", "port", cfg.Server.Port, "topic", cfg.Kafka.Topics.AnalyticsEvents)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("analytics service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	aggregator := analytics.NewAggregator()
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(aggregator))
	checker := health.NewChecker()
	checker.Register("kafka", func(context.Context) health.ComponentHealth {
		st := consumer.Stats()
		status := health.StatusUp
		if st.FetchErrs > 0 && st.Processed == 0 {
			status = health.StatusDegraded
		}
		return health.ComponentHealth{
			Status:  status,
			Message: fmt.Sprintf("processed %d, dropped %d, fetch errors %d", st.Processed, st.Dropped, st.FetchErrs),
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Analytics.PersistSnapshots {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()
		snapshots := store.New(db, 0)
		if err := snapshots.EnsureSchema(ctx); err != nil {
			return err
		}
		if latest, err := snapshots.LatestSnapshot(ctx); err != nil {
			slog.Warn("could not read latest snapshot", "error", err)
		} else if latest != nil {
			slog.Info("previous snapshot found", "total_searches", latest.TotalSearches)
		}
		checker.Register("postgres", health.Ping(db.Ping, health.StatusDegraded))
		g.Go(func() error { return snapshots.Run(gctx, aggregator, cfg.Analytics.SnapshotInterval) })
	}

	g.Go(func() error { return consumer.Run(gctx) })

	mux := http.NewServeMux()
	analytics.NewHandler(aggregator).Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, middleware.RequestID),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	g.Go(func() error {
		slog.Info("analytics service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
