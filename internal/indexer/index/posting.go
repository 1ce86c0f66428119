package index

// Posting records how often a term occurs in one document.
type Posting struct {
	DocID     int `json:"doc_id"`
	Frequency int `json:"frequency"`
}

// PostingList is ordered by strictly ascending DocID.
type PostingList []Posting

// TermEntry pairs a term with its postings, as returned by Snapshot.
type TermEntry struct {
	Term     string      `json:"term"`
	Postings PostingList `json:"postings"`
}

// Document is the per-document metadata kept by the DocumentStore.
type Document struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Length int    `json:"length"`
}

// Stats are the corpus-level aggregates computed when an index is frozen.
type Stats struct {
	DocumentCount         int     `json:"document_count"`
	TermCount             int     `json:"term_count"`
	TotalTokens           int64   `json:"total_tokens"`
	AverageDocumentLength float64 `json:"average_document_length"`
}
