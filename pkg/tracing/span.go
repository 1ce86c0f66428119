// Package tracing records in-process span trees for index builds and
// searches. Spans travel in a context.Context and are written out through
// slog once the root span ends.
package tracing

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type spanKey struct{}

// Span is one timed step of a trace.
type Span struct {
	name     string
	traceID  string
	id       string
	parentID string
	start    time.Time

	mu       sync.Mutex
	duration time.Duration
	ended    bool
	attrs    []slog.Attr
	children []*Span
}

// StartSpan begins a root span. An empty traceID is replaced by a random
// one, so request ids can double as trace ids.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	s := newSpan(name, traceID, "")
	return context.WithValue(ctx, spanKey{}, s), s
}

// StartChildSpan begins a span under the one carried by ctx. Without a
// parent the span is detached: it still times itself but belongs to no
// trace.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		s := newSpan(name, "", "")
		return context.WithValue(ctx, spanKey{}, s), s
	}
	s := newSpan(name, parent.traceID, parent.id)
	parent.mu.Lock()
	parent.children = append(parent.children, s)
	parent.mu.Unlock()
	return context.WithValue(ctx, spanKey{}, s), s
}

func newSpan(name, traceID, parentID string) *Span {
	return &Span{
		name:     name,
		traceID:  traceID,
		id:       uuid.NewString()[:8],
		parentID: parentID,
		start:    time.Now(),
	}
}

func SpanFromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

func (s *Span) Name() string    { return s.name }
func (s *Span) TraceID() string { return s.traceID }

// End fixes the span's duration. Later calls keep the first value.
func (s *Span) End() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.duration = time.Since(s.start)
		s.ended = true
	}
	return s.duration
}

func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// SetAttr records key=value on the span, replacing an earlier value for key.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attr := slog.Any(key, value)
	if i := slices.IndexFunc(s.attrs, func(a slog.Attr) bool { return a.Key == key }); i >= 0 {
		s.attrs[i] = attr
		return
	}
	s.attrs = append(s.attrs, attr)
}

// Attr returns the value recorded for key.
func (s *Span) Attr(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attrs {
		if a.Key == key {
			return a.Value.Any(), true
		}
	}
	return nil, false
}

func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.children)
}

// Find returns the first span named name in s's subtree, s included, in
// depth-first order.
func (s *Span) Find(name string) *Span {
	if s.name == name {
		return s
	}
	for _, c := range s.Children() {
		if found := c.Find(name); found != nil {
			return found
		}
	}
	return nil
}

// Log writes the subtree to the default logger at debug level.
func (s *Span) Log() {
	s.LogTo(slog.Default())
}

// LogTo writes one record per span, parents before children.
func (s *Span) LogTo(logger *slog.Logger) {
	s.logDepth(logger, 0)
}

func (s *Span) logDepth(logger *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := []slog.Attr{
		slog.String("trace_id", s.traceID),
		slog.String("span_id", s.id),
		slog.String("span", s.name),
		slog.Int("depth", depth),
		slog.Float64("duration_ms", float64(s.duration.Microseconds())/1000),
	}
	if s.parentID != "" {
		attrs = append(attrs, slog.String("parent_id", s.parentID))
	}
	if len(s.attrs) > 0 {
		attrs = append(attrs, slog.Attr{Key: "attrs", Value: slog.GroupValue(s.attrs...)})
	}
	children := slices.Clone(s.children)
	s.mu.Unlock()

	logger.LogAttrs(context.Background(), slog.LevelDebug, "span", attrs...)
	for _, c := range children {
		c.logDepth(logger, depth+1)
	}
}
