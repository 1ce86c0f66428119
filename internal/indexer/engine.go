// Package indexer turns a directory of text files into an in-memory
// inverted index. Files are ingested one at a time in lexical walk order;
// each file becomes one document whose title is its base name without
// extension.
package indexer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/okapi/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/okapi/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/okapi/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/tracing"
)

const maxLineSize = 1024 * 1024

// Observer receives build progress. Any field may be nil.
type Observer struct {
	DocumentIndexed func(title string, tokens int)
	BuildFinished   func(stats index.Stats, elapsed time.Duration, err error)
}

// Builder builds an index from a directory tree.
type Builder struct {
	fsys     fs.FS
	observer Observer
	logger   *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithFS reads the corpus from fsys instead of the host file system. Paths
// passed to Build are then interpreted relative to fsys.
func WithFS(fsys fs.FS) Option {
	return func(b *Builder) { b.fsys = fsys }
}

func WithObserver(o Observer) Option {
	return func(b *Builder) { b.observer = o }
}

func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		logger: slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build walks dir recursively and indexes every regular file in it. Any
// I/O failure aborts the build with an error wrapping ErrCorpusIO. A tree
// without regular files yields ErrEmptyCorpus. No partial index is ever
// returned.
func (b *Builder) Build(ctx context.Context, dir string) (*index.Index, error) {
	start := time.Now()
	ctx, span := tracing.StartChildSpan(ctx, "index.build")
	defer span.End()
	span.SetAttr("dir", dir)

	ix, err := b.build(ctx, dir)
	elapsed := time.Since(start)
	if b.observer.BuildFinished != nil {
		var stats index.Stats
		if ix != nil {
			stats = ix.Stats()
		}
		b.observer.BuildFinished(stats, elapsed, err)
	}
	if err != nil {
		span.SetAttr("error", err.Error())
		return nil, err
	}
	stats := ix.Stats()
	span.SetAttr("documents", stats.DocumentCount)
	span.SetAttr("terms", stats.TermCount)
	b.logger.Info("corpus indexed",
		"dir", dir,
		"documents", stats.DocumentCount,
		"terms", stats.TermCount,
		"avg_doc_length", stats.AverageDocumentLength,
		"fingerprint", ix.Fingerprint(),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return ix, nil
}

func (b *Builder) build(ctx context.Context, dir string) (*index.Index, error) {
	paths, err := b.walk(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %w", apperrors.ErrCorpusIO, dir, err)
	}
	b.logger.Debug("walk complete", "dir", dir, "files", len(paths))

	w := index.NewWriter()
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("build cancelled: %w", err)
		}
		title := Title(path)
		docID, err := w.StartDocument(title)
		if err != nil {
			return nil, err
		}
		tokens, err := b.ingest(w, path)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %w", apperrors.ErrCorpusIO, path, err)
		}
		if err := w.EndDocument(); err != nil {
			return nil, err
		}
		b.logger.Debug("document indexed", "doc_id", docID, "title", title, "tokens", tokens)
		if b.observer.DocumentIndexed != nil {
			b.observer.DocumentIndexed(title, tokens)
		}
	}

	ix, err := w.Finish()
	if err != nil {
		if errors.Is(err, apperrors.ErrEmptyCorpus) {
			return nil, fmt.Errorf("building %s: %w", dir, err)
		}
		return nil, err
	}
	return ix, nil
}

// ingest streams path line by line into the open document and returns the
// number of tokens it contributed.
func (b *Builder) ingest(w *index.Writer, path string) (int, error) {
	f, err := b.open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	count := 0
	for scanner.Scan() {
		for tok := range tokenizer.Tokens(scanner.Text()) {
			if err := w.AddToken(tok); err != nil {
				return count, err
			}
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return count, err
	}
	return count, nil
}

func (b *Builder) open(path string) (fs.File, error) {
	if b.fsys != nil {
		return b.fsys.Open(path)
	}
	return os.Open(path)
}

// walk lists every regular file under dir in lexical order. Symlinks to
// regular files are included; dangling links and links to directories are
// skipped.
func (b *Builder) walk(dir string) ([]string, error) {
	var paths []string
	fn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		switch {
		case d.Type().IsRegular():
			paths = append(paths, path)
		case d.Type()&fs.ModeSymlink != 0:
			if info, err := b.stat(path); err == nil && info.Mode().IsRegular() {
				paths = append(paths, path)
			}
		}
		return nil
	}
	var err error
	if b.fsys != nil {
		err = fs.WalkDir(b.fsys, dir, fn)
	} else {
		err = filepath.WalkDir(dir, fn)
	}
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func (b *Builder) stat(path string) (fs.FileInfo, error) {
	if b.fsys != nil {
		return fs.Stat(b.fsys, path)
	}
	return os.Stat(path)
}

// Title derives a document title from a file path: the base name with its
// final extension removed.
func Title(path string) string {
	base := filepath.Base(filepath.FromSlash(path))
	if ext := filepath.Ext(base); ext != "" && ext != base {
		return strings.TrimSuffix(base, ext)
	}
	return base
}
