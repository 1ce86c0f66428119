// Package analytics collects search and index-build events, ships them to
// Kafka in batches, and aggregates them into query statistics on the
// consuming side.
package analytics

import (
	"strings"
	"time"
)

type EventType string

const (
	EventSearch EventType = "search"
	EventBuild  EventType = "index_build"
)

// Event is anything the Collector can publish.
type Event interface {
	// PartitionKey groups related events on the same Kafka partition.
	PartitionKey() string
}

type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Terms     []string  `json:"terms"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	CacheTier string    `json:"cache_tier,omitempty"`
	Index     string    `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

func (e SearchEvent) PartitionKey() string {
	return "search:" + strings.Join(e.Terms, " ")
}

type BuildEvent struct {
	Type         EventType `json:"type"`
	Corpus       string    `json:"corpus"`
	Documents    int       `json:"documents"`
	Terms        int       `json:"terms"`
	AvgDocLength float64   `json:"avg_doc_length"`
	DurationMs   int64     `json:"duration_ms"`
	Fingerprint  string    `json:"fingerprint,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func (e BuildEvent) PartitionKey() string {
	return "build:" + e.Corpus
}
