package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/okapi/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/okapi/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/okapi/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/okapi/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/okapi/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/metrics"
)

type recordingTracker struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (r *recordingTracker) Track(e analytics.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func buildIndex(t *testing.T) *index.Index {
	t.Helper()
	w := index.NewWriter()
	for _, d := range [][2]string{{"doc0", "the cat sat"}, {"doc1", "the dog sat on the mat"}} {
		if _, err := w.StartDocument(d[0]); err != nil {
			t.Fatal(err)
		}
		for tok := range tokenizer.Tokens(d[1]) {
			if err := w.AddToken(tok); err != nil {
				t.Fatal(err)
			}
		}
		if err := w.EndDocument(); err != nil {
			t.Fatal(err)
		}
	}
	ix, err := w.Finish()
	if err != nil {
		t.Fatal(err)
	}
	return ix
}

type fixture struct {
	handler *Handler
	exec    *executor.Executor
	tracker *recordingTracker
	mux     *http.ServeMux
}

func newFixture(t *testing.T, withCache bool) *fixture {
	t.Helper()
	exec := executor.New()
	opts := Options{
		Tracker:      &recordingTracker{},
		Metrics:      metrics.New(prometheus.NewRegistry()),
		DefaultLimit: 10,
		MaxResults:   50,
	}
	if withCache {
		c, err := cache.New(cache.Options{LocalSize: 16})
		if err != nil {
			t.Fatal(err)
		}
		opts.Cache = c
	}
	h := New(exec, opts)
	mux := http.NewServeMux()
	h.Routes(mux)
	return &fixture{handler: h, exec: exec, tracker: opts.Tracker.(*recordingTracker), mux: mux}
}

func (f *fixture) do(method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	data, _ := io.ReadAll(rec.Body)
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decoding %q: %v", data, err)
	}
	return body
}

func TestSearchBeforeIndexBuilt(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do("GET", "/api/v1/search?q=cat")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if rec := f.do("GET", "/api/v1/index/stats"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("index stats status = %d, want 503", rec.Code)
	}
}

func TestSearchRanksResults(t *testing.T) {
	f := newFixture(t, false)
	f.exec.Publish(buildIndex(t))

	rec := f.do("GET", "/api/v1/search?q=sat")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body)
	}
	var resp searchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	titles := resp.Titles()
	if len(titles) != 2 || titles[0] != "doc0" || titles[1] != "doc1" {
		t.Fatalf("titles = %q", titles)
	}
	if resp.TotalHits != 2 || resp.Query != "sat" {
		t.Errorf("resp = %+v", resp)
	}
	if len(f.tracker.events) != 1 {
		t.Fatalf("tracked %d events", len(f.tracker.events))
	}
	ev := f.tracker.events[0].(analytics.SearchEvent)
	if ev.TotalHits != 2 || ev.CacheHit {
		t.Errorf("event = %+v", ev)
	}
}

func TestSearchValidation(t *testing.T) {
	f := newFixture(t, false)
	f.exec.Publish(buildIndex(t))
	for _, target := range []string{
		"/api/v1/search",
		"/api/v1/search?q=cat&limit=0",
		"/api/v1/search?q=cat&limit=abc",
	} {
		if rec := f.do("GET", target); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	f := newFixture(t, false)
	f.exec.Publish(buildIndex(t))
	rec := f.do("GET", "/api/v1/search?q=")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode(t, rec)
	if results, ok := body["results"].([]any); !ok || len(results) != 0 {
		t.Errorf("results = %v", body["results"])
	}
}

func TestSearchLimit(t *testing.T) {
	f := newFixture(t, false)
	f.exec.Publish(buildIndex(t))
	body := decode(t, f.do("GET", "/api/v1/search?q=the+sat&limit=1"))
	if got := len(body["results"].([]any)); got != 1 {
		t.Errorf("returned %d results, want 1", got)
	}
	if body["total_hits"].(float64) != 2 {
		t.Errorf("total_hits = %v", body["total_hits"])
	}
}

func TestSearchCached(t *testing.T) {
	f := newFixture(t, true)
	f.exec.Publish(buildIndex(t))

	first := decode(t, f.do("GET", "/api/v1/search?q=Cat"))
	if _, ok := first["cache"]; ok {
		t.Errorf("first query reported cache %v", first["cache"])
	}
	second := decode(t, f.do("GET", "/api/v1/search?q=cat+CAT"))
	if second["cache"] != "local" {
		t.Errorf("second query cache = %v, want local", second["cache"])
	}
	if second["query"] != "cat CAT" {
		t.Errorf("cached response should echo the caller's query, got %v", second["query"])
	}

	stats := decode(t, f.do("GET", "/api/v1/cache/stats"))
	if stats["local_hits"].(float64) != 1 || stats["misses"].(float64) != 1 {
		t.Errorf("cache stats = %v", stats)
	}

	inv := f.do("POST", "/api/v1/cache/invalidate")
	if inv.Code != http.StatusOK || !strings.Contains(inv.Body.String(), `"local_purged":1`) {
		t.Errorf("invalidate = %d %s", inv.Code, inv.Body)
	}
}

func TestCacheEndpointsDisabled(t *testing.T) {
	f := newFixture(t, false)
	if body := decode(t, f.do("GET", "/api/v1/cache/stats")); body["status"] != "disabled" {
		t.Errorf("stats = %v", body)
	}
	if rec := f.do("POST", "/api/v1/cache/invalidate"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("invalidate status = %d", rec.Code)
	}
}

func TestIndexStats(t *testing.T) {
	f := newFixture(t, false)
	ix := buildIndex(t)
	f.exec.Publish(ix)
	body := decode(t, f.do("GET", "/api/v1/index/stats"))
	if body["documents"].(float64) != 2 || body["average_document_length"].(float64) != 4.5 {
		t.Errorf("stats = %v", body)
	}
	if body["fingerprint"] != ix.Fingerprint() {
		t.Errorf("fingerprint = %v", body["fingerprint"])
	}
}
