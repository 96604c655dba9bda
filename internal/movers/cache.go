// Package movers keeps one shared market-movers snapshot per session,
// refreshed at most once per TTL window.
package movers

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"prism/pkg/prism"
)

// DefaultTTL matches the refresh interval the analysis service itself
// caches movers for.
const DefaultTTL = 30 * time.Minute

// snapshotKey is the persistence slot the cached payload lives under.
const snapshotKey = "market_movers"

// Fetcher retrieves a fresh movers snapshot from the analysis service.
type Fetcher interface {
	MarketMovers(ctx context.Context) (*prism.Movers, error)
}

// Snapshotter persists the cached payload across restarts. A nil
// Snapshotter makes the cache memory-only.
type Snapshotter interface {
	LoadSnapshot(key string) (data []byte, at time.Time, err error)
	SaveSnapshot(key string, data []byte, at time.Time) error
}

// Cache serves movers data with a freshness window. A hit inside the TTL
// returns the cached snapshot without touching the network; a miss
// fetches, and a failed fetch falls back to whatever is cached, however
// old. Get never returns an error to its caller.
type Cache struct {
	fetcher Fetcher
	store   Snapshotter
	ttl     time.Duration
	now     func() time.Time
	log     *slog.Logger

	mu        sync.Mutex
	data      *prism.Movers
	fetchedAt time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the freshness window.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithStore attaches persistence. The stored snapshot is loaded
// immediately; a malformed or missing one is treated as a cache miss.
func WithStore(s Snapshotter) Option {
	return func(c *Cache) { c.store = s }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Cache) { c.log = log }
}

// NewCache creates a cache around f.
func NewCache(f Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher: f,
		ttl:     DefaultTTL,
		now:     time.Now,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store != nil {
		c.loadPersisted()
	}
	return c
}

// Get returns the movers snapshot, fetching only when the cached one has
// expired or force is set. The zero snapshot is returned when there is
// nothing cached and the fetch fails.
func (c *Cache) Get(ctx context.Context, force bool) prism.Movers {
	c.mu.Lock()
	if !force && c.data != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		snap := *c.data
		c.mu.Unlock()
		return snap
	}
	c.mu.Unlock()

	// The fetch runs outside the lock; concurrent refreshes race and the
	// last one to finish wins.
	fresh, err := c.fetcher.MarketMovers(ctx)
	if err != nil {
		c.log.Warn("movers refresh failed, serving cached data", "error", err)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.data != nil {
			return *c.data
		}
		return prism.Movers{}
	}

	at := c.now()
	c.mu.Lock()
	c.data = fresh
	c.fetchedAt = at
	snap := *fresh
	c.mu.Unlock()

	c.persist(fresh, at)
	return snap
}

// Trending returns the n most actively traded symbols from the cached
// snapshot, refreshing it first if it has gone stale.
func (c *Cache) Trending(ctx context.Context, n int) []prism.MoverItem {
	snap := c.Get(ctx, false)
	if n > len(snap.Active) {
		n = len(snap.Active)
	}
	return snap.Active[:n]
}

// Invalidate expires the cached snapshot without discarding it, so the
// next Get refetches but a failed refetch can still fall back to it.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchedAt = time.Time{}
}

type persistedSnapshot struct {
	FetchedAt time.Time    `json:"fetched_at"`
	Movers    prism.Movers `json:"movers"`
}

func (c *Cache) loadPersisted() {
	data, at, err := c.store.LoadSnapshot(snapshotKey)
	if err != nil || len(data) == 0 {
		return
	}
	var snap persistedSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.log.Debug("discarding malformed movers snapshot", "error", err)
		return
	}
	if snap.Movers.Empty() {
		return
	}
	if !snap.FetchedAt.IsZero() {
		at = snap.FetchedAt
	}
	c.data = &snap.Movers
	c.fetchedAt = at
}

func (c *Cache) persist(m *prism.Movers, at time.Time) {
	if c.store == nil {
		return
	}
	data, err := json.Marshal(persistedSnapshot{FetchedAt: at, Movers: *m})
	if err != nil {
		return
	}
	if err := c.store.SaveSnapshot(snapshotKey, data, at); err != nil {
		c.log.Warn("persisting movers snapshot failed", "error", err)
	}
}
