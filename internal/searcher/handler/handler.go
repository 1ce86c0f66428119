// Package handler exposes the search engine over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/okapi/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/okapi/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/okapi/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/okapi/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/okapi/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/okapi/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/tracing"
)

type SearchExecutor interface {
	Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*executor.SearchResult, error)
	Index() *index.Index
}

// Tracker receives analytics events. *analytics.Collector satisfies it.
type Tracker interface {
	Track(event analytics.Event)
}

type Options struct {
	Cache        *cache.QueryCache
	Tracker      Tracker
	Metrics      *metrics.Metrics
	DefaultLimit int
	MaxResults   int
}

type Handler struct {
	executor SearchExecutor
	opts     Options
	logger   *slog.Logger
}

type searchResponse struct {
	executor.SearchResult
	Cache  string  `json:"cache,omitempty"`
	TookMs float64 `json:"took_ms"`
}

func New(exec SearchExecutor, opts Options) *Handler {
	return &Handler{
		executor: exec,
		opts:     opts,
		logger:   logger.WithComponent("search-handler"),
	}
}

// Routes registers the search API on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// Search serves GET /api/v1/search?q=...&limit=N.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	params := r.URL.Query()
	if !params.Has("q") {
		h.writeError(w, r, apperrors.Invalid("query parameter 'q' is required"))
		return
	}
	query := params.Get("q")
	limit, err := h.parseLimit(params.Get("limit"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ix := h.executor.Index()
	if ix == nil {
		h.observe(metrics.ResultError, "", start, 0)
		h.writeError(w, r, apperrors.ErrIndexNotBuilt)
		return
	}

	ctx, span := tracing.StartSpan(ctx, "search", middleware.GetRequestID(r))
	defer func() {
		span.End()
		span.Log()
	}()

	plan := parser.Parse(query)
	span.SetAttr("terms", len(plan.Terms))
	compute := func() (*executor.SearchResult, error) {
		return h.executor.Execute(ctx, plan, limit)
	}
	var result *executor.SearchResult
	tier := cache.TierNone
	if h.opts.Cache != nil {
		result, tier, err = h.opts.Cache.GetOrCompute(ctx, cache.Key(ix.Fingerprint(), plan, limit), compute)
	} else {
		result, err = compute()
	}
	if err != nil {
		log.Error("search failed", "query", query, "error", err)
		h.observe(metrics.ResultError, tier, start, 0)
		h.writeError(w, r, err)
		return
	}

	span.SetAttr("cache", string(tier))
	resp := searchResponse{SearchResult: *result, Cache: string(tier)}
	resp.Query = query
	took := time.Since(start)
	resp.TookMs = float64(took.Microseconds()) / 1000

	resultType := metrics.ResultHit
	if result.TotalHits == 0 {
		resultType = metrics.ResultZeroResult
	}
	h.observe(resultType, tier, start, result.TotalHits)
	log.Info("search completed",
		"query", query,
		"terms", plan.Terms,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache", tier,
		"latency_ms", took.Milliseconds(),
	)
	if h.opts.Tracker != nil {
		h.opts.Tracker.Track(analytics.SearchEvent{
			Type:      analytics.EventSearch,
			Query:     query,
			Terms:     plan.Terms,
			TotalHits: result.TotalHits,
			Returned:  len(result.Results),
			LatencyMs: took.Milliseconds(),
			CacheHit:  tier != cache.TierNone,
			CacheTier: string(tier),
			Index:     result.Index,
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(r),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) parseLimit(raw string) (int, error) {
	if raw == "" {
		return h.opts.DefaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, apperrors.Invalid("limit must be a positive integer, got %q", raw)
	}
	if h.opts.MaxResults > 0 && limit > h.opts.MaxResults {
		limit = h.opts.MaxResults
	}
	return limit, nil
}

func (h *Handler) observe(resultType string, tier cache.Tier, start time.Time, hits int) {
	m := h.opts.Metrics
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	if resultType == metrics.ResultError {
		return
	}
	status := "miss"
	if tier != cache.TierNone {
		status = string(tier)
		m.CacheHitsTotal.WithLabelValues(status).Inc()
	} else if h.opts.Cache != nil {
		m.CacheMissesTotal.Inc()
	}
	m.SearchLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())
	m.SearchResultsCount.Observe(float64(hits))
}

// IndexStats serves GET /api/v1/index/stats.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	ix := h.executor.Index()
	if ix == nil {
		h.writeError(w, r, apperrors.ErrIndexNotBuilt)
		return
	}
	stats := ix.Stats()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"documents":               stats.DocumentCount,
		"terms":                   stats.TermCount,
		"total_tokens":            stats.TotalTokens,
		"average_document_length": stats.AverageDocumentLength,
		"fingerprint":             ix.Fingerprint(),
	})
}

// CacheStats serves GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.opts.Cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.opts.Cache.Stats())
}

// CacheInvalidate serves POST /api/v1/cache/invalidate.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.opts.Cache == nil {
		h.writeError(w, r, apperrors.ErrCacheDisabled)
		return
	}
	local, remote, err := h.opts.Cache.Invalidate(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "invalidated",
		"local_purged":   local,
		"remote_deleted": remote,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if err := apperrors.WriteJSON(w, err, middleware.GetRequestID(r)); err != nil {
		h.logger.Error("failed to write error response", "error", err)
	}
}
