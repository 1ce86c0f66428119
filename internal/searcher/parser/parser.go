package parser

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/okapi/internal/indexer/tokenizer"
)

// QueryPlan is a tokenized free-text query. Terms are distinct and keep the
// order of their first occurrence; they are combined with OR semantics.
type QueryPlan struct {
	Terms    []string
	RawQuery string
}

// Parse tokenizes query with the same rules used at indexing time.
func Parse(query string) *QueryPlan {
	plan := &QueryPlan{
		Terms:    make([]string, 0),
		RawQuery: query,
	}
	if strings.TrimSpace(query) == "" {
		return plan
	}
	seen := make(map[string]struct{})
	for term := range tokenizer.Tokens(query) {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		plan.Terms = append(plan.Terms, term)
	}
	return plan
}

// Key is a canonical form of the plan: equal for queries that rank
// identically regardless of token order, case, punctuation or repetition.
func (p *QueryPlan) Key() string {
	sorted := make([]string, len(p.Terms))
	copy(sorted, p.Terms)
	sort.Strings(sorted)
	return strings.Join(sorted, " ")
}
