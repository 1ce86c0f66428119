package index

import (
	"errors"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/okapi/pkg/errors"
)

func buildIndex(t *testing.T, docs map[string][]string, order []string) *Index {
	t.Helper()
	w := NewWriter()
	for _, title := range order {
		if _, err := w.StartDocument(title); err != nil {
			t.Fatalf("StartDocument(%q): %v", title, err)
		}
		for _, tok := range docs[title] {
			if err := w.AddToken(tok); err != nil {
				t.Fatalf("AddToken(%q): %v", tok, err)
			}
		}
		if err := w.EndDocument(); err != nil {
			t.Fatalf("EndDocument: %v", err)
		}
	}
	ix, err := w.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return ix
}

func TestDictionaryAddGroupsByDocument(t *testing.T) {
	d := NewDictionary()
	for _, step := range []struct {
		word  string
		docID int
	}{
		{"the", 0}, {"cat", 0}, {"the", 0},
		{"the", 1}, {"dog", 1}, {"the", 1}, {"the", 1},
		{"cat", 3},
	} {
		if err := d.Add(step.word, step.docID); err != nil {
			t.Fatalf("Add(%q, %d): %v", step.word, step.docID, err)
		}
	}

	the, ok := d.Lookup("the")
	if !ok {
		t.Fatal("expected 'the' in dictionary")
	}
	want := PostingList{{DocID: 0, Frequency: 2}, {DocID: 1, Frequency: 3}}
	if len(the) != len(want) {
		t.Fatalf("postings = %+v, want %+v", the, want)
	}
	for i := range want {
		if the[i] != want[i] {
			t.Errorf("posting %d = %+v, want %+v", i, the[i], want[i])
		}
	}

	cat, _ := d.Lookup("cat")
	if len(cat) != 2 || cat[1].DocID != 3 || cat[1].Frequency != 1 {
		t.Errorf("cat postings = %+v", cat)
	}
	if _, ok := d.Lookup("mouse"); ok {
		t.Error("unexpected entry for unseen term")
	}
	if d.Len() != 3 {
		t.Errorf("Len() = %d, want 3", d.Len())
	}
}

func TestDictionaryRejectsEarlierDocument(t *testing.T) {
	d := NewDictionary()
	if err := d.Add("x", 2); err != nil {
		t.Fatal(err)
	}
	if err := d.Add("x", 1); err == nil {
		t.Fatal("expected error when a lower doc id follows a higher one")
	}
}

func TestWriterEnforcesOneDocumentAtATime(t *testing.T) {
	w := NewWriter()
	if err := w.AddToken("orphan"); err == nil {
		t.Error("AddToken without open document should fail")
	}
	if _, err := w.StartDocument("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := w.StartDocument("b"); err == nil {
		t.Error("StartDocument while another is open should fail")
	}
	if _, err := w.Finish(); err == nil {
		t.Error("Finish with an open document should fail")
	}
}

func TestWriterEmptyCorpus(t *testing.T) {
	_, err := NewWriter().Finish()
	if !errors.Is(err, apperrors.ErrEmptyCorpus) {
		t.Fatalf("Finish() error = %v, want ErrEmptyCorpus", err)
	}
}

func TestIndexStatsAndDocuments(t *testing.T) {
	docs := map[string][]string{
		"doc0": {"the", "cat", "sat"},
		"doc1": {"the", "dog", "sat", "on", "the", "mat"},
		"doc2": {},
	}
	ix := buildIndex(t, docs, []string{"doc0", "doc1", "doc2"})

	stats := ix.Stats()
	if stats.DocumentCount != 3 {
		t.Errorf("DocumentCount = %d, want 3", stats.DocumentCount)
	}
	if stats.TotalTokens != 9 {
		t.Errorf("TotalTokens = %d, want 9", stats.TotalTokens)
	}
	if stats.AverageDocumentLength != 3.0 {
		t.Errorf("AverageDocumentLength = %v, want 3", stats.AverageDocumentLength)
	}
	if stats.TermCount != 6 {
		t.Errorf("TermCount = %d, want 6", stats.TermCount)
	}

	for id, title := range []string{"doc0", "doc1", "doc2"} {
		doc, ok := ix.Document(id)
		if !ok {
			t.Fatalf("Document(%d) missing", id)
		}
		if doc.Title != title || doc.Length != len(docs[title]) {
			t.Errorf("Document(%d) = %+v", id, doc)
		}
	}
	if ix.Title(99) != "" {
		t.Error("Title of unknown id should be empty")
	}
	if ix.Lookup("unicorn") != nil {
		t.Error("Lookup of unknown term should be nil")
	}
}

func TestSnapshotInvariants(t *testing.T) {
	docs := map[string][]string{
		"a": {"x", "y", "x", "z"},
		"b": {"y", "y"},
		"c": {"z", "x"},
	}
	order := []string{"a", "b", "c"}
	ix := buildIndex(t, docs, order)

	occurrences := make(map[string]int)
	for _, title := range order {
		for _, tok := range docs[title] {
			occurrences[tok]++
		}
	}

	snapshot := ix.Snapshot()
	if len(snapshot) != len(occurrences) {
		t.Fatalf("snapshot has %d terms, want %d", len(snapshot), len(occurrences))
	}
	for i, entry := range snapshot {
		if i > 0 && snapshot[i-1].Term >= entry.Term {
			t.Errorf("snapshot not sorted at %d", i)
		}
		sum := 0
		for j, p := range entry.Postings {
			if j > 0 && entry.Postings[j-1].DocID >= p.DocID {
				t.Errorf("term %q postings not strictly ascending: %+v", entry.Term, entry.Postings)
			}
			sum += p.Frequency
		}
		if sum != occurrences[entry.Term] {
			t.Errorf("term %q frequencies sum to %d, want %d", entry.Term, sum, occurrences[entry.Term])
		}
	}
}

func TestFingerprint(t *testing.T) {
	docs := map[string][]string{"a": {"one", "two"}, "b": {"three"}}
	first := buildIndex(t, docs, []string{"a", "b"})
	second := buildIndex(t, docs, []string{"a", "b"})
	if first.Fingerprint() != second.Fingerprint() {
		t.Error("identical corpora should share a fingerprint")
	}
	other := buildIndex(t, map[string][]string{"a": {"one"}, "b": {"three"}}, []string{"a", "b"})
	if first.Fingerprint() == other.Fingerprint() {
		t.Error("different corpora should not share a fingerprint")
	}
	if len(first.Fingerprint()) != 32 {
		t.Errorf("fingerprint length = %d, want 32 hex chars", len(first.Fingerprint()))
	}
}

func TestFingerprintCoversContent(t *testing.T) {
	order := []string{"play", "other"}
	romeo := buildIndex(t, map[string][]string{
		"play":  {"romeo", "loves", "juliet"},
		"other": {"storm", "sea"},
	}, order)
	hamlet := buildIndex(t, map[string][]string{
		"play":  {"hamlet", "hates", "claudius"},
		"other": {"storm", "sea"},
	}, order)
	if romeo.Stats() != hamlet.Stats() {
		t.Fatalf("corpora should have equal stats: %+v vs %+v", romeo.Stats(), hamlet.Stats())
	}
	if romeo.Fingerprint() == hamlet.Fingerprint() {
		t.Error("corpora with different words share a fingerprint")
	}

	// same words, different frequencies
	a := buildIndex(t, map[string][]string{"play": {"ghost", "ghost", "night"}, "other": {"night"}}, order)
	b := buildIndex(t, map[string][]string{"play": {"ghost", "night", "night"}, "other": {"ghost"}}, order)
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("corpora with different postings share a fingerprint")
	}
}
