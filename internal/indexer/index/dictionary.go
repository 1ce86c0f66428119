package index

import (
	"fmt"
	"sort"
)

type term struct {
	postings PostingList
}

// add counts one occurrence in docID. Occurrences must arrive grouped by
// document in ascending id order.
func (t *term) add(docID int) error {
	n := len(t.postings)
	if n == 0 || t.postings[n-1].DocID != docID {
		if n > 0 && t.postings[n-1].DocID > docID {
			return fmt.Errorf("document %d arrived after document %d", docID, t.postings[n-1].DocID)
		}
		t.postings = append(t.postings, Posting{DocID: docID, Frequency: 1})
		return nil
	}
	t.postings[n-1].Frequency++
	return nil
}

// Dictionary maps each distinct term to its posting list.
type Dictionary struct {
	terms map[string]*term
}

func NewDictionary() *Dictionary {
	return &Dictionary{terms: make(map[string]*term)}
}

// Add records one occurrence of word in docID, creating the term on first
// sight.
func (d *Dictionary) Add(word string, docID int) error {
	t, ok := d.terms[word]
	if !ok {
		t = &term{}
		d.terms[word] = t
	}
	if err := t.add(docID); err != nil {
		return fmt.Errorf("term %q: %w", word, err)
	}
	return nil
}

// Lookup returns the posting list for word. The returned slice is shared and
// must not be modified.
func (d *Dictionary) Lookup(word string) (PostingList, bool) {
	t, ok := d.terms[word]
	if !ok {
		return nil, false
	}
	return t.postings, true
}

func (d *Dictionary) Len() int {
	return len(d.terms)
}

// Snapshot copies every term and its postings, sorted by term.
func (d *Dictionary) Snapshot() []TermEntry {
	entries := make([]TermEntry, 0, len(d.terms))
	for word, t := range d.terms {
		postings := make(PostingList, len(t.postings))
		copy(postings, t.postings)
		entries = append(entries, TermEntry{
			Term:     word,
			Postings: postings,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}
