// Package cache memoises search results in two tiers: an in-process LRU and
// an optional shared remote store. Keys include the index fingerprint, so a
// rebuilt index never serves results computed against its predecessor.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/okapi/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/okapi/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/resilience"
)

const (
	defaultLocalSize     = 1024
	defaultRemoteTimeout = 50 * time.Millisecond
)

// Tier reports where a result came from.
type Tier string

const (
	TierNone   Tier = ""
	TierLocal  Tier = "local"
	TierRemote Tier = "remote"
)

// Remote is a shared byte store such as Redis.
type Remote interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Flush(ctx context.Context) (int64, error)
}

type Options struct {
	LocalSize     int
	Remote        Remote
	TTL           time.Duration
	RemoteTimeout time.Duration
}

type Stats struct {
	LocalHits    int64   `json:"local_hits"`
	RemoteHits   int64   `json:"remote_hits"`
	Misses       int64   `json:"misses"`
	LocalEntries int     `json:"local_entries"`
	HitRate      float64 `json:"hit_rate"`
	RemoteState  string  `json:"remote_state,omitempty"`
}

type QueryCache struct {
	local         *lru.Cache[string, *executor.SearchResult]
	remote        Remote
	breaker       *resilience.CircuitBreaker
	ttl           time.Duration
	remoteTimeout time.Duration
	group         singleflight.Group
	logger        *slog.Logger

	localHits  atomic.Int64
	remoteHits atomic.Int64
	misses     atomic.Int64
}

func New(opts Options) (*QueryCache, error) {
	if opts.LocalSize <= 0 {
		opts.LocalSize = defaultLocalSize
	}
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = defaultRemoteTimeout
	}
	local, err := lru.New[string, *executor.SearchResult](opts.LocalSize)
	if err != nil {
		return nil, fmt.Errorf("creating local cache: %w", err)
	}
	c := &QueryCache{
		local:         local,
		remote:        opts.Remote,
		ttl:           opts.TTL,
		remoteTimeout: opts.RemoteTimeout,
		logger:        slog.Default().With("component", "query-cache"),
	}
	if opts.Remote != nil {
		c.breaker = resilience.NewCircuitBreaker("cache-remote", resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     10 * time.Second,
		})
	}
	return c, nil
}

// Key identifies a (index, query, limit) triple. Queries that parse to the
// same set of terms share a key.
func Key(fingerprint string, plan *parser.QueryPlan, limit int) string {
	raw := fingerprint + "|" + plan.Key() + "|" + strconv.Itoa(limit)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum[:16])
}

// GetOrCompute returns the cached result for key or runs compute once per
// key across concurrent callers and stores its result. Returned results are
// shared and must not be modified.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key string,
	compute func() (*executor.SearchResult, error),
) (*executor.SearchResult, Tier, error) {
	if result, tier := c.get(ctx, key); result != nil {
		return result, tier, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		if result, ok := c.local.Get(key); ok {
			return result, nil
		}
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, TierNone, err
	}
	c.misses.Add(1)
	return val.(*executor.SearchResult), TierNone, nil
}

func (c *QueryCache) get(ctx context.Context, key string) (*executor.SearchResult, Tier) {
	if result, ok := c.local.Get(key); ok {
		c.localHits.Add(1)
		return result, TierLocal
	}
	if c.remote == nil {
		return nil, TierNone
	}
	ctx, cancel := context.WithTimeout(ctx, c.remoteTimeout)
	defer cancel()
	var data []byte
	var found bool
	err := c.breaker.Execute(func() error {
		var err error
		data, found, err = c.remote.Get(ctx, key)
		return err
	})
	if err != nil {
		c.logger.Warn("remote cache get failed", "key", key, "error", err)
		return nil, TierNone
	}
	if !found {
		return nil, TierNone
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, TierNone
	}
	c.local.Add(key, &result)
	c.remoteHits.Add(1)
	return &result, TierRemote
}

func (c *QueryCache) set(ctx context.Context, key string, result *executor.SearchResult) {
	c.local.Add(key, result)
	if c.remote == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, c.remoteTimeout, "cache-set", func(ctx context.Context) error {
			return c.remote.Set(ctx, key, data, c.ttl)
		})
	})
	if err != nil {
		c.logger.Warn("remote cache set failed", "key", key, "error", err)
	}
}

// Invalidate empties both tiers.
func (c *QueryCache) Invalidate(ctx context.Context) (localPurged int, remoteDeleted int64, err error) {
	localPurged = c.local.Len()
	c.local.Purge()
	if c.remote != nil {
		remoteDeleted, err = c.remote.Flush(ctx)
		if err != nil {
			return localPurged, remoteDeleted, fmt.Errorf("invalidating remote cache: %w", err)
		}
	}
	c.logger.Info("cache invalidated", "local_purged", localPurged, "remote_deleted", remoteDeleted)
	return localPurged, remoteDeleted, nil
}

func (c *QueryCache) Stats() Stats {
	s := Stats{
		LocalHits:    c.localHits.Load(),
		RemoteHits:   c.remoteHits.Load(),
		Misses:       c.misses.Load(),
		LocalEntries: c.local.Len(),
	}
	if total := s.LocalHits + s.RemoteHits + s.Misses; total > 0 {
		s.HitRate = float64(s.LocalHits+s.RemoteHits) / float64(total)
	}
	if c.breaker != nil {
		s.RemoteState = c.breaker.State().String()
	}
	return s
}
