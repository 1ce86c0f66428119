//go:build e2e

// Package e2e runs against live searcher and analytics services.
//
// Prerequisites:
//   - cmd/searcher running with a non-empty corpus
//   - cmd/analytics running with analytics.enabled on the searcher (optional)
//
// Run with:
//
//	go test -v -tags=e2e -timeout=120s ./test/e2e/...
package e2e

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"testing"
	"time"
)

type e2eConfig struct {
	SearcherURL  string
	AnalyticsURL string
}

func loadE2EConfig() e2eConfig {
	return e2eConfig{
		SearcherURL:  envOrDefault("E2E_SEARCHER_URL", "http://localhost:8080"),
		AnalyticsURL: envOrDefault("E2E_ANALYTICS_URL", "http://localhost:8081"),
	}
}

var client = &http.Client{Timeout: 10 * time.Second}

type searchResponse struct {
	Query     string `json:"query"`
	TotalHits int    `json:"total_hits"`
	Results   []struct {
		DocID int     `json:"doc_id"`
		Title string  `json:"title"`
		Score float64 `json:"score"`
	} `json:"results"`
	Cache string `json:"cache"`
	Index string `json:"index"`
}

func getJSON(t *testing.T, rawURL string, out any) int {
	t.Helper()
	resp, err := client.Get(rawURL)
	if err != nil {
		t.Skipf("service unreachable at %s: %v", rawURL, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s: %v", rawURL, err)
		}
	}
	return resp.StatusCode
}

// waitReady polls readiness while the searcher builds its index.
func waitReady(t *testing.T, base string) {
	t.Helper()
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		if getJSON(t, base+"/health/ready", nil) == http.StatusOK {
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatal("searcher never became ready")
}

func search(t *testing.T, base, q string, limit int) searchResponse {
	t.Helper()
	var resp searchResponse
	target := base + "/api/v1/search?q=" + url.QueryEscape(q) + "&limit=" + strconv.Itoa(limit)
	if code := getJSON(t, target, &resp); code != http.StatusOK {
		t.Fatalf("search %q: status %d", q, code)
	}
	return resp
}

func TestSearchRanking(t *testing.T) {
	cfg := loadE2EConfig()
	waitReady(t, cfg.SearcherURL)

	resp := search(t, cfg.SearcherURL, "the king", 5)
	if resp.TotalHits == 0 {
		t.Fatal("common words should match at least one document")
	}
	if len(resp.Results) > 5 {
		t.Errorf("returned %d results with limit 5", len(resp.Results))
	}
	for i := 1; i < len(resp.Results); i++ {
		prev, cur := resp.Results[i-1], resp.Results[i]
		if prev.Score < cur.Score || (prev.Score == cur.Score && prev.DocID > cur.DocID) {
			t.Errorf("results out of order at %d: %+v then %+v", i, prev, cur)
		}
	}
}

func TestSearchUnknownTerm(t *testing.T) {
	cfg := loadE2EConfig()
	waitReady(t, cfg.SearcherURL)
	resp := search(t, cfg.SearcherURL, "xyzzyplugh", 10)
	if resp.TotalHits != 0 || len(resp.Results) != 0 {
		t.Errorf("unknown term matched: %+v", resp)
	}
}

func TestSearchCacheReuse(t *testing.T) {
	cfg := loadE2EConfig()
	waitReady(t, cfg.SearcherURL)

	var stats map[string]any
	getJSON(t, cfg.SearcherURL+"/api/v1/cache/stats", &stats)
	if stats["status"] == "disabled" {
		t.Skip("query cache disabled on the searcher")
	}
	q := "ghost night " + time.Now().Format("150405.000")
	search(t, cfg.SearcherURL, q, 10)
	second := search(t, cfg.SearcherURL, q, 10)
	if second.Cache == "" {
		t.Error("repeated query was not served from cache")
	}
}

func TestIndexStats(t *testing.T) {
	cfg := loadE2EConfig()
	waitReady(t, cfg.SearcherURL)
	var stats map[string]any
	if code := getJSON(t, cfg.SearcherURL+"/api/v1/index/stats", &stats); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if stats["documents"].(float64) < 1 || stats["fingerprint"] == "" {
		t.Errorf("stats = %v", stats)
	}
}

func TestAnalyticsCountsSearches(t *testing.T) {
	cfg := loadE2EConfig()
	waitReady(t, cfg.SearcherURL)

	var before map[string]any
	if code := getJSON(t, cfg.AnalyticsURL+"/api/v1/analytics", &before); code != http.StatusOK {
		t.Skipf("analytics service not available (status %d)", code)
	}
	search(t, cfg.SearcherURL, "storm", 3)

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		var after map[string]any
		getJSON(t, cfg.AnalyticsURL+"/api/v1/analytics", &after)
		if after["total_searches"].(float64) > before["total_searches"].(float64) {
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Error("analytics never observed the search")
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
