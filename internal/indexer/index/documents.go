package index

import "fmt"

// DocumentStore holds documents by dense id.
type DocumentStore struct {
	docs        []Document
	totalTokens int64
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{}
}

// Open appends a zero-length document and returns its id.
func (s *DocumentStore) Open(title string) int {
	id := len(s.docs)
	s.docs = append(s.docs, Document{ID: id, Title: title})
	return id
}

// Grow adds n tokens to the length of docID.
func (s *DocumentStore) Grow(docID int, n int) error {
	if docID < 0 || docID >= len(s.docs) {
		return fmt.Errorf("unknown document %d", docID)
	}
	s.docs[docID].Length += n
	s.totalTokens += int64(n)
	return nil
}

func (s *DocumentStore) Get(docID int) (Document, bool) {
	if docID < 0 || docID >= len(s.docs) {
		return Document{}, false
	}
	return s.docs[docID], true
}

func (s *DocumentStore) Len() int {
	return len(s.docs)
}

// AverageLength is the mean document length. It is undefined for an empty
// store and reports ok=false.
func (s *DocumentStore) AverageLength() (avg float64, ok bool) {
	if len(s.docs) == 0 {
		return 0, false
	}
	return float64(s.totalTokens) / float64(len(s.docs)), true
}
