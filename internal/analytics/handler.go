package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

const maxQueryListing = 1000

// Handler exposes the aggregator over HTTP.
type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
	mux.HandleFunc("GET /api/v1/analytics/queries", h.Queries)
	mux.HandleFunc("GET /api/v1/analytics/builds", h.Builds)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.write(w, http.StatusOK, h.aggregator.Stats())
}

// Queries lists the most frequent queries. ?top=n bounds the listing and
// ?zero=true restricts it to queries without results.
func (h *Handler) Queries(w http.ResponseWriter, r *http.Request) {
	top := topQueryCount
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.write(w, http.StatusBadRequest, map[string]string{"error": "top must be a positive integer"})
			return
		}
		top = min(n, maxQueryListing)
	}
	zeroOnly, _ := strconv.ParseBool(r.URL.Query().Get("zero"))
	h.write(w, http.StatusOK, map[string]any{
		"zero_results_only": zeroOnly,
		"queries":           h.aggregator.Queries(top, zeroOnly),
	})
}

func (h *Handler) Builds(w http.ResponseWriter, r *http.Request) {
	h.write(w, http.StatusOK, h.aggregator.Stats().Builds)
}

func (h *Handler) write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
