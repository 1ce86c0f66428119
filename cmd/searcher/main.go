// Command searcher builds the BM25 index from the configured corpus at
// startup and serves search queries over HTTP.
//
// Usage:
//
//	go run ./cmd/searcher [--config configs/development.yaml] [--corpus dir] [--port n]
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/okapi/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/okapi/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/okapi/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/okapi/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/okapi/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/okapi/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/okapi/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/okapi/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/tracing"
)

func main() {
	configPath := flag.StringP("config", "c", "", "path to config file")
	corpusDir := flag.String("corpus", "", "corpus directory (overrides corpus.dir)")
	port := flag.IntP("port", "p", 0, "HTTP port (overrides server.port)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *corpusDir != "" {
		cfg.Corpus.Dir = *corpusDir
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	logger.Setup("searcher", cfg.Logging)
	slog.Info("starting search service", "port", cfg.Server.Port, "corpus", cfg.Corpus.Dir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics, err := metrics.StartServer(fmt.Sprintf(":%d", cfg.Metrics.Port), nil)
		if err != nil {
			return err
		}
		defer shutdownMetrics(context.Background())
	}

	checker := health.NewChecker()
	exec := executor.New()
	loader := &indexLoader{exec: exec, metrics: m}
	checker.Register("index", loader.Check)

	queryCache, err := newCache(ctx, cfg, checker)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	var collector *analytics.Collector
	if cfg.Analytics.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer, analytics.CollectorConfig{BufferSize: cfg.Analytics.BufferSize})
		g.Go(func() error { return collector.Run(gctx) })
	}

	opts := handler.Options{
		Cache:        queryCache,
		Metrics:      m,
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
	}
	if collector != nil {
		opts.Tracker = collector
	}
	h := handler.New(exec, opts)

	mux := http.NewServeMux()
	h.Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mws := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Metrics(m),
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		mws = append(mws, middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins...)))
	}
	if cfg.Server.RateLimit > 0 {
		limiter := ratelimit.New(cfg.Server.RateLimit, time.Minute)
		g.Go(func() error {
			limiter.Run(gctx, 5*time.Minute)
			return nil
		})
		mws = append(mws, middleware.RateLimit(limiter))
	}
	mws = append(mws, middleware.Timeout(cfg.Server.WriteTimeout))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, mws...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout + time.Second,
	}

	loader.collector = collector
	g.Go(func() error {
		loader.Load(gctx, cfg.Corpus.Dir)
		return nil
	})

	g.Go(func() error {
		slog.Info("search service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newCache returns nil when caching is disabled. An unreachable Redis
// leaves the local tier in place.
func newCache(ctx context.Context, cfg *config.Config, checker *health.Checker) (*cache.QueryCache, error) {
	if !cfg.Cache.Enabled {
		slog.Info("query cache disabled")
		return nil, nil
	}
	opts := cache.Options{LocalSize: cfg.Cache.LocalSize, TTL: cfg.Redis.CacheTTL}
	if cfg.Cache.UseRedis {
		client, err := pkgredis.NewClient(ctx, cfg.Redis, "okapi:search:")
		if err != nil {
			slog.Warn("redis unavailable, using local cache only", "addr", cfg.Redis.Addr, "error", err)
			checker.Register("redis", func(context.Context) health.ComponentHealth {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: "not connected"}
			})
		} else {
			opts.Remote = client
			checker.Register("redis", health.Ping(client.Ping, health.StatusDegraded))
		}
	}
	c, err := cache.New(opts)
	if err != nil {
		return nil, err
	}
	slog.Info("query cache enabled", "local_size", cfg.Cache.LocalSize, "remote", opts.Remote != nil)
	return c, nil
}

// indexLoader builds the index once and publishes it. A failed build
// leaves the executor unpublished: searches answer 503 and readiness
// reports the build error until the process is restarted.
type indexLoader struct {
	exec      *executor.Executor
	metrics   *metrics.Metrics
	collector *analytics.Collector
	failure   atomic.Pointer[error]
}

func (l *indexLoader) Load(ctx context.Context, dir string) {
	ix, err := buildIndex(ctx, dir, l.metrics, l.collector)
	if err != nil {
		l.failure.Store(&err)
		slog.Error("index build failed, searches will return 503", "corpus", dir, "error", err)
		return
	}
	l.exec.Publish(ix)
}

func (l *indexLoader) Check(context.Context) health.ComponentHealth {
	ix := l.exec.Index()
	if ix == nil {
		msg := apperrors.ErrIndexNotBuilt.Error()
		if err := l.failure.Load(); err != nil {
			msg = (*err).Error()
		}
		return health.ComponentHealth{Status: health.StatusDown, Message: msg}
	}
	return health.ComponentHealth{
		Status:  health.StatusUp,
		Message: fmt.Sprintf("%d documents, fingerprint %s", ix.Stats().DocumentCount, ix.Fingerprint()),
	}
}

func buildIndex(ctx context.Context, dir string, m *metrics.Metrics, collector *analytics.Collector) (*index.Index, error) {
	ctx, span := tracing.StartSpan(ctx, "startup", "")
	defer func() {
		span.End()
		span.Log()
	}()

	var elapsed time.Duration
	builder := indexer.NewBuilder(indexer.WithObserver(indexer.Observer{
		DocumentIndexed: func(string, int) {
			m.DocsIndexedTotal.Inc()
		},
		BuildFinished: func(_ index.Stats, took time.Duration, _ error) {
			elapsed = took
			m.IndexBuildDuration.Observe(took.Seconds())
		},
	}))
	ix, err := builder.Build(ctx, dir)

	event := analytics.BuildEvent{
		Type:       analytics.EventBuild,
		Corpus:     dir,
		DurationMs: elapsed.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
	switch {
	case errors.Is(err, apperrors.ErrEmptyCorpus):
		m.IndexBuildsTotal.WithLabelValues("empty").Inc()
		event.Error = err.Error()
	case err != nil:
		m.IndexBuildsTotal.WithLabelValues("error").Inc()
		event.Error = err.Error()
	default:
		stats := ix.Stats()
		m.IndexBuildsTotal.WithLabelValues("ok").Inc()
		m.IndexDocuments.Set(float64(stats.DocumentCount))
		m.IndexTerms.Set(float64(stats.TermCount))
		m.IndexAvgDocLength.Set(stats.AverageDocumentLength)
		event.Documents = stats.DocumentCount
		event.Terms = stats.TermCount
		event.AvgDocLength = stats.AverageDocumentLength
		event.Fingerprint = ix.Fingerprint()
	}
	if collector != nil {
		collector.Track(event)
	}
	if err != nil {
		return nil, fmt.Errorf("building index from %s: %w", dir, err)
	}
	return ix, nil
}
