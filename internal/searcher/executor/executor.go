package executor

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/okapi/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/okapi/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/okapi/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/okapi/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/tracing"
)

type SearchResult struct {
	Query     string             `json:"query"`
	TotalHits int                `json:"total_hits"`
	Results   []ranker.ScoredDoc `json:"results"`
	TermStats map[string]int     `json:"term_stats"`
	Index     string             `json:"index"`
}

// Titles returns the result titles in rank order.
func (r *SearchResult) Titles() []string {
	titles := make([]string, len(r.Results))
	for i, doc := range r.Results {
		titles[i] = doc.Title
	}
	return titles
}

// Executor answers queries against the most recently published index.
type Executor struct {
	current atomic.Pointer[index.Index]
	logger  *slog.Logger
}

func New() *Executor {
	return &Executor{
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Publish makes ix visible to subsequent queries. ix must be fully built.
func (e *Executor) Publish(ix *index.Index) {
	e.current.Store(ix)
	stats := ix.Stats()
	e.logger.Info("index published",
		"documents", stats.DocumentCount,
		"terms", stats.TermCount,
		"fingerprint", ix.Fingerprint(),
	)
}

// Index returns the published index, or nil before the first Publish.
func (e *Executor) Index() *index.Index {
	return e.current.Load()
}

// Execute ranks the published index against plan. It fails with
// ErrIndexNotBuilt until an index has been published.
func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*SearchResult, error) {
	ix := e.current.Load()
	if ix == nil {
		return nil, apperrors.ErrIndexNotBuilt
	}
	_, span := tracing.StartChildSpan(ctx, "query.execute")
	defer span.End()

	result := Run(ix, plan, limit)
	span.SetAttr("terms", len(plan.Terms))
	span.SetAttr("hits", result.TotalHits)
	e.logger.Debug("query executed",
		"query", plan.RawQuery,
		"terms", plan.Terms,
		"candidates", result.TotalHits,
		"results", len(result.Results),
	)
	return result, nil
}

// Run evaluates plan against ix with OR semantics: every document holding
// at least one plan term is scored by the sum of its per-term BM25
// contributions. limit <= 0 returns every match.
func Run(ix *index.Index, plan *parser.QueryPlan, limit int) *SearchResult {
	result := &SearchResult{
		Query:     plan.RawQuery,
		Results:   []ranker.ScoredDoc{},
		TermStats: make(map[string]int),
		Index:     ix.Fingerprint(),
	}
	if len(plan.Terms) == 0 {
		return result
	}

	terms := make([]ranker.TermPostings, 0, len(plan.Terms))
	for _, term := range plan.Terms {
		postings := ix.Lookup(term)
		if len(postings) == 0 {
			continue
		}
		terms = append(terms, ranker.TermPostings{Term: term, Postings: postings})
		result.TermStats[term] = len(postings)
	}
	if len(terms) == 0 {
		return result
	}

	stats := ix.Stats()
	params := ranker.RankParams{
		TotalDocs:    stats.DocumentCount,
		AvgDocLength: stats.AverageDocumentLength,
	}
	getDocInfo := func(docID int) ranker.DocInfo {
		doc, _ := ix.Document(docID)
		return ranker.DocInfo{DocLength: doc.Length}
	}
	ranked := ranker.Rank(terms, params, getDocInfo, 0)
	result.TotalHits = len(ranked)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	for i := range ranked {
		ranked[i].Title = ix.Title(ranked[i].DocID)
	}
	result.Results = ranked
	return result
}

// Query is the plain form of Run: the titles of every matching document,
// most relevant first.
func Query(ix *index.Index, query string) []string {
	return Run(ix, parser.Parse(query), 0).Titles()
}
