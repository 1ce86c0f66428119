// Package ranker scores documents with Okapi BM25 and orders them by
// relevance.
package ranker

import (
	"cmp"
	"math"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/okapi/internal/indexer/index"
)

// BM25 constants. k1 controls term-frequency saturation, b the strength of
// document-length normalisation.
const (
	K1 = 1.2
	B  = 0.75
)

type ScoredDoc struct {
	DocID int     `json:"doc_id"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

type RankParams struct {
	TotalDocs    int
	AvgDocLength float64
}

type DocInfo struct {
	DocLength int
}

// Score is the BM25 contribution of one term to one document. termFreq is
// the term's frequency in the document and docFreq the number of documents
// containing the term.
func Score(termFreq, docLength int, avgDocLength float64, totalDocs, docFreq int) float64 {
	return idf(totalDocs, docFreq) * saturate(float64(termFreq), float64(docLength), avgDocLength)
}

// TermPostings pairs a query term with its posting list.
type TermPostings struct {
	Term     string
	Postings index.PostingList
}

// Rank sums the BM25 contributions of every posting per document, adding
// terms in slice order, and returns the documents ordered by descending
// score, ties by ascending DocID. Documents whose sum is zero are dropped.
// limit <= 0 returns everything.
func Rank(
	terms []TermPostings,
	params RankParams,
	getDocInfo func(docID int) DocInfo,
	limit int,
) []ScoredDoc {
	acc := make(map[int]float64)
	for _, tp := range terms {
		docFreq := len(tp.Postings)
		for _, p := range tp.Postings {
			length := getDocInfo(p.DocID).DocLength
			acc[p.DocID] += Score(p.Frequency, length, params.AvgDocLength, params.TotalDocs, docFreq)
		}
	}

	ranked := make([]ScoredDoc, 0, len(acc))
	for docID, score := range acc {
		if score > 0 {
			ranked = append(ranked, ScoredDoc{DocID: docID, Score: score})
		}
	}
	slices.SortFunc(ranked, compare)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func compare(x, y ScoredDoc) int {
	if c := cmp.Compare(y.Score, x.Score); c != 0 {
		return c
	}
	return cmp.Compare(x.DocID, y.DocID)
}

// idf is the Lucene variant, positive for every 0 < docFreq <= totalDocs
// including a term present in every document.
func idf(totalDocs, docFreq int) float64 {
	n, df := float64(totalDocs), float64(docFreq)
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

func saturate(tf, docLength, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	norm := K1 * (1 - B + B*docLength/avgDocLength)
	return tf * (K1 + 1) / (tf + norm)
}
