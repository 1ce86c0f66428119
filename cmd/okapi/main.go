// Command okapi indexes a directory of text files and prints the titles of
// the documents matching a query, most relevant first.
//
// Usage:
//
//	okapi [--dir shakespeare] [--limit n] [--scores] query words...
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	flag "github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/okapi/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/okapi/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/okapi/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("okapi", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.StringP("config", "c", "", "path to config file")
	dir := fs.StringP("dir", "d", "", "corpus directory (default from config, else shakespeare)")
	limit := fs.IntP("limit", "n", 0, "maximum number of results, 0 for all")
	scores := fs.BoolP("scores", "s", false, "print scores next to titles")
	logLevel := fs.String("log-level", "warn", "log level for diagnostics on stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "okapi: %v\n", err)
		return 1
	}
	if *dir != "" {
		cfg.Corpus.Dir = *dir
	}
	slog.SetDefault(logger.New(stderr, "", config.LoggingConfig{Level: *logLevel, Format: "text"}))

	ctx, span := tracing.StartSpan(ctx, "okapi", "")
	defer func() {
		span.End()
		span.Log()
	}()

	ix, err := indexer.NewBuilder().Build(ctx, cfg.Corpus.Dir)
	if err != nil {
		fmt.Fprintf(stderr, "okapi: %v\n", err)
		return 1
	}

	query := strings.Join(fs.Args(), " ")
	result := executor.Run(ix, parser.Parse(query), *limit)
	if !*scores {
		for _, title := range result.Titles() {
			fmt.Fprintln(stdout, title)
		}
		return 0
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for _, doc := range result.Results {
		fmt.Fprintf(tw, "%s\t%.4f\n", doc.Title, doc.Score)
	}
	tw.Flush()
	return 0
}
