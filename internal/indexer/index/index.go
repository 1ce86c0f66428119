// Package index holds the in-memory inverted index: a term dictionary of
// posting lists plus a document store with corpus statistics. An Index is
// assembled document by document through a Writer and is read-only once
// Finish returns it.
package index

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/okapi/pkg/errors"
)

const noDocument = -1

// Writer ingests one document at a time into a fresh dictionary and
// document store.
type Writer struct {
	dict *Dictionary
	docs *DocumentStore
	open int
	done bool
}

func NewWriter() *Writer {
	return &Writer{
		dict: NewDictionary(),
		docs: NewDocumentStore(),
		open: noDocument,
	}
}

// StartDocument opens the next document and returns its id. The previous
// document must have been ended.
func (w *Writer) StartDocument(title string) (int, error) {
	if w.done {
		return 0, fmt.Errorf("writer already finished")
	}
	if w.open != noDocument {
		return 0, fmt.Errorf("document %d still open", w.open)
	}
	w.open = w.docs.Open(title)
	return w.open, nil
}

// AddToken counts one occurrence of term in the open document.
func (w *Writer) AddToken(term string) error {
	if w.open == noDocument {
		return fmt.Errorf("no open document for token %q", term)
	}
	if err := w.dict.Add(term, w.open); err != nil {
		return err
	}
	return w.docs.Grow(w.open, 1)
}

func (w *Writer) EndDocument() error {
	if w.open == noDocument {
		return fmt.Errorf("no open document")
	}
	w.open = noDocument
	return nil
}

// Finish computes corpus statistics and returns the frozen Index. A writer
// that saw no documents yields ErrEmptyCorpus.
func (w *Writer) Finish() (*Index, error) {
	if w.open != noDocument {
		return nil, fmt.Errorf("document %d still open", w.open)
	}
	if w.done {
		return nil, fmt.Errorf("writer already finished")
	}
	w.done = true
	avg, ok := w.docs.AverageLength()
	if !ok {
		return nil, apperrors.ErrEmptyCorpus
	}
	ix := &Index{
		dict: w.dict,
		docs: w.docs,
		stats: Stats{
			DocumentCount:         w.docs.Len(),
			TermCount:             w.dict.Len(),
			TotalTokens:           w.docs.totalTokens,
			AverageDocumentLength: avg,
		},
	}
	ix.fingerprint = ix.computeFingerprint()
	return ix, nil
}

// Index is an immutable inverted index. It is safe for concurrent readers.
type Index struct {
	dict        *Dictionary
	docs        *DocumentStore
	stats       Stats
	fingerprint string
}

// Lookup returns the posting list of term, or nil when the term never
// occurs. The slice must not be modified.
func (ix *Index) Lookup(term string) PostingList {
	postings, _ := ix.dict.Lookup(term)
	return postings
}

func (ix *Index) Document(docID int) (Document, bool) {
	return ix.docs.Get(docID)
}

// Title returns the title of docID, or "" for an unknown id.
func (ix *Index) Title(docID int) string {
	doc, _ := ix.docs.Get(docID)
	return doc.Title
}

func (ix *Index) Stats() Stats {
	return ix.stats
}

// Snapshot copies the whole dictionary, sorted by term.
func (ix *Index) Snapshot() []TermEntry {
	return ix.dict.Snapshot()
}

// Fingerprint identifies the corpus the index was built from. It covers
// every title, document length, term and posting, so two builds share a
// fingerprint only when they index the same content.
func (ix *Index) Fingerprint() string {
	return ix.fingerprint
}

func (ix *Index) computeFingerprint() string {
	h := sha256.New()
	var buf [8]byte
	putInt := func(n int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(n))
		h.Write(buf[:])
	}
	for i := 0; i < ix.docs.Len(); i++ {
		doc, _ := ix.docs.Get(i)
		h.Write([]byte(doc.Title))
		h.Write([]byte{0})
		putInt(doc.Length)
	}
	for _, entry := range ix.Snapshot() {
		h.Write([]byte(entry.Term))
		h.Write([]byte{0})
		putInt(len(entry.Postings))
		for _, p := range entry.Postings {
			putInt(p.DocID)
			putInt(p.Frequency)
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil)[:16])
}
