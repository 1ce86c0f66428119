package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/resilience"
)

const (
	maxLatencySamples = 10000
	topQueryCount     = 10
)

type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
	Builds            BuildStats   `json:"builds"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

type BuildStats struct {
	Total           int64     `json:"total"`
	Failed          int64     `json:"failed"`
	LastCorpus      string    `json:"last_corpus,omitempty"`
	LastDocuments   int       `json:"last_documents"`
	LastTerms       int       `json:"last_terms"`
	LastDurationMs  int64     `json:"last_duration_ms"`
	LastFingerprint string    `json:"last_fingerprint,omitempty"`
	LastBuildAt     time.Time `json:"last_build_at,omitzero"`
}

// Aggregator folds events into running statistics. Queries are counted by
// their normalised term list, so "Romeo Juliet" and "juliet, romeo" count
// as one query.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     int64
	cacheHits         int64
	cacheMisses       int64
	zeroResults       int64
	latencies         []int64
	latencyNext       int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	builds            BuildStats
	startTime         time.Time
	now               func() time.Time
	logger            *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		now:               time.Now,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent adapts the aggregator to a Kafka consumer. Undecodable
// events are returned as permanent failures, which the consumer drops
// without retrying.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key, value []byte) error {
		if err := agg.Record(value); err != nil {
			return resilience.Permanent(err)
		}
		return nil
	}
}

// Record decodes a JSON event by its type field and folds it in.
func (a *Aggregator) Record(value []byte) error {
	var envelope struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(value, &envelope); err != nil {
		return fmt.Errorf("decoding event type: %w", err)
	}
	switch envelope.Type {
	case EventSearch:
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			return err
		}
		a.RecordSearch(event)
	case EventBuild:
		event, err := kafka.DecodeJSON[BuildEvent](value)
		if err != nil {
			return err
		}
		a.RecordBuild(event)
	default:
		return fmt.Errorf("unknown event type %q", envelope.Type)
	}
	return nil
}

func (a *Aggregator) RecordSearch(event SearchEvent) {
	terms := slices.Clone(event.Terms)
	slices.Sort(terms)
	query := strings.Join(terms, " ")
	if query == "" {
		query = strings.TrimSpace(event.Query)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalSearches++
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.latencyNext] = event.LatencyMs
		a.latencyNext = (a.latencyNext + 1) % maxLatencySamples
	}
	a.queryCounts[query]++
	if event.TotalHits == 0 {
		a.zeroResults++
		a.zeroResultQueries[query]++
	}
}

func (a *Aggregator) RecordBuild(event BuildEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.builds.Total++
	if event.Error != "" {
		a.builds.Failed++
		return
	}
	a.builds.LastCorpus = event.Corpus
	a.builds.LastDocuments = event.Documents
	a.builds.LastTerms = event.Terms
	a.builds.LastDurationMs = event.DurationMs
	a.builds.LastFingerprint = event.Fingerprint
	a.builds.LastBuildAt = event.Timestamp
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches,
		CacheHits:       a.cacheHits,
		CacheMisses:     a.cacheMisses,
		ZeroResultCount: a.zeroResults,
		Builds:          a.builds,
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, topQueryCount)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, topQueryCount)
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

// Queries returns up to n of the most frequent queries. With zeroOnly set
// only queries that matched nothing are considered.
func (a *Aggregator) Queries(n int, zeroOnly bool) []QueryCount {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if zeroOnly {
		return topN(a.zeroResultQueries, n)
	}
	return topN(a.queryCounts, n)
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count descending, then query ascending.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	slices.SortFunc(result, func(x, y QueryCount) int {
		if x.Count != y.Count {
			if x.Count > y.Count {
				return -1
			}
			return 1
		}
		return strings.Compare(x.Query, y.Query)
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
