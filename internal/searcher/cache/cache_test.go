package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/okapi/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/okapi/internal/searcher/parser"
)

type memRemote struct {
	mu   sync.Mutex
	data map[string][]byte
	fail bool
}

func newMemRemote() *memRemote { return &memRemote{data: make(map[string][]byte)} }

func (m *memRemote) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, false, errors.New("connection refused")
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memRemote) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("connection refused")
	}
	m.data[key] = value
	return nil
}

func (m *memRemote) Flush(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.data))
	m.data = make(map[string][]byte)
	return n, nil
}

func result(query string) *executor.SearchResult {
	return &executor.SearchResult{Query: query, TotalHits: 1, Index: "fp"}
}

func TestKeyNormalisesQuery(t *testing.T) {
	a := Key("fp1", parser.Parse("Romeo juliet"), 10)
	b := Key("fp1", parser.Parse("juliet, ROMEO romeo"), 10)
	if a != b {
		t.Error("queries with the same terms should share a key")
	}
	if a == Key("fp2", parser.Parse("romeo juliet"), 10) {
		t.Error("different index fingerprints must not share a key")
	}
	if a == Key("fp1", parser.Parse("romeo juliet"), 5) {
		t.Error("different limits must not share a key")
	}
}

func TestGetOrComputeLocal(t *testing.T) {
	c, err := New(Options{LocalSize: 8})
	if err != nil {
		t.Fatal(err)
	}
	calls := 0
	compute := func() (*executor.SearchResult, error) {
		calls++
		return result("romeo"), nil
	}
	_, tier, err := c.GetOrCompute(context.Background(), "k", compute)
	if err != nil || tier != TierNone {
		t.Fatalf("first call: tier=%q err=%v", tier, err)
	}
	_, tier, _ = c.GetOrCompute(context.Background(), "k", compute)
	if tier != TierLocal || calls != 1 {
		t.Fatalf("second call: tier=%q calls=%d", tier, calls)
	}
	s := c.Stats()
	if s.LocalHits != 1 || s.Misses != 1 || s.HitRate != 0.5 {
		t.Errorf("stats = %+v", s)
	}
}

func TestGetOrComputeErrorNotCached(t *testing.T) {
	c, _ := New(Options{})
	boom := errors.New("boom")
	if _, _, err := c.GetOrCompute(context.Background(), "k", func() (*executor.SearchResult, error) {
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if c.Stats().LocalEntries != 0 {
		t.Error("failed computation should not be cached")
	}
}

func TestGetOrComputeSingleflight(t *testing.T) {
	c, _ := New(Options{})
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() (*executor.SearchResult, error) {
		calls.Add(1)
		<-release
		return result("x"), nil
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.GetOrCompute(context.Background(), "k", compute)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	if n := calls.Load(); n != 1 {
		t.Errorf("compute ran %d times, want 1", n)
	}
}

func TestRemoteTier(t *testing.T) {
	remote := newMemRemote()
	first, _ := New(Options{Remote: remote})
	first.GetOrCompute(context.Background(), "k", func() (*executor.SearchResult, error) {
		return result("romeo"), nil
	})

	second, _ := New(Options{Remote: remote})
	got, tier, err := second.GetOrCompute(context.Background(), "k", func() (*executor.SearchResult, error) {
		t.Error("compute should not run on a remote hit")
		return nil, nil
	})
	if err != nil || tier != TierRemote || got.Query != "romeo" {
		t.Fatalf("got %+v tier=%q err=%v", got, tier, err)
	}
}

func TestRemoteFailureFallsBack(t *testing.T) {
	remote := newMemRemote()
	remote.fail = true
	c, _ := New(Options{Remote: remote})
	for i := 0; i < 5; i++ {
		key := string(rune('a' + i))
		if _, _, err := c.GetOrCompute(context.Background(), key, func() (*executor.SearchResult, error) {
			return result(key), nil
		}); err != nil {
			t.Fatalf("remote failure leaked to caller: %v", err)
		}
	}
	if s := c.Stats(); s.RemoteState != "open" {
		t.Errorf("remote state = %q, want open", s.RemoteState)
	}
}

func TestInvalidate(t *testing.T) {
	remote := newMemRemote()
	c, _ := New(Options{Remote: remote})
	for _, k := range []string{"a", "b"} {
		c.GetOrCompute(context.Background(), k, func() (*executor.SearchResult, error) {
			return result(k), nil
		})
	}
	local, deleted, err := c.Invalidate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if local != 2 || deleted != 2 {
		t.Errorf("invalidated local=%d remote=%d, want 2 and 2", local, deleted)
	}
	if c.Stats().LocalEntries != 0 {
		t.Error("local tier not purged")
	}
}
