// Package chunkcache serves immutable chunk snapshots to search workers.
//
// Every key has at most one entry, holding a future. The first request for a
// key issues the fetch; concurrent requests join the same future. Resolved
// entries carry an expiry and are dropped by the sweep once they are expired,
// resolved and not leased by a running search; the sweep never drops pending
// entries. Invalidate detaches an entry in any state, so the next request
// fetches again while current leaseholders keep the snapshot they hold.
package chunkcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sanonone/voxpath/pkg/future"
	"github.com/sanonone/voxpath/pkg/metrics"
	"github.com/sanonone/voxpath/pkg/workpool"
	"github.com/sanonone/voxpath/pkg/world"
)

// ErrClosed is returned for requests made after Close.
var ErrClosed = errors.New("chunkcache: closed")

// Options defines parameters for the cache.
type Options struct {
	// TTL is how long a resolved snapshot is kept after its last use.
	TTL time.Duration
	// Clock returns the current time. Nil means time.Now.
	Clock func() time.Time
}

// DefaultOptions returns the recommended cache options.
func DefaultOptions() Options {
	return Options{TTL: 30 * time.Second}
}

type entry struct {
	fut     *future.Future[*world.ChunkSnapshot]
	expires time.Time
	leases  int
}

// Cache deduplicates and retains chunk snapshot fetches.
type Cache struct {
	src  world.ChunkSource
	opts Options

	mu      sync.Mutex
	entries map[world.ChunkKey]*entry
	closed  bool

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a cache fetching through src.
func New(src world.ChunkSource, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultOptions().TTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		src:     src,
		opts:    opts,
		entries: make(map[world.ChunkKey]*entry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Mode reports how snapshots are fetched.
func (c *Cache) Mode() world.SourceMode { return c.src.Mode() }

// Request returns the future for key, issuing the fetch if this is the first
// request. It never blocks.
func (c *Cache) Request(key world.ChunkKey) (*future.Future[*world.ChunkSnapshot], error) {
	fut, _, err := c.request(key, false)
	return fut, err
}

func (c *Cache) request(key world.ChunkKey, lease bool) (*future.Future[*world.ChunkSnapshot], *entry, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, nil, ErrClosed
	}
	if e, ok := c.entries[key]; ok {
		if lease {
			e.leases++
		}
		if !e.expires.IsZero() {
			e.expires = c.opts.Clock().Add(c.opts.TTL)
		}
		c.mu.Unlock()
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
		return e.fut, e, nil
	}

	e := &entry{fut: future.New[*world.ChunkSnapshot]()}
	if lease {
		e.leases = 1
	}
	c.entries[key] = e
	metrics.CacheEntries.Set(float64(len(c.entries)))
	c.mu.Unlock()
	metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()

	c.src.Fetch(c.ctx, key, func(snap *world.ChunkSnapshot, err error) {
		c.resolve(key, e, snap, err)
	})
	return e.fut, e, nil
}

// resolve records the fetch outcome. Failed entries are removed so that a
// later request issues a new fetch; current awaiters still see the error.
func (c *Cache) resolve(key world.ChunkKey, e *entry, snap *world.ChunkSnapshot, err error) {
	if err == nil && snap == nil {
		err = fmt.Errorf("chunk %s: loader returned no snapshot", key)
	}
	outcome := "ok"
	c.mu.Lock()
	if err != nil {
		outcome = "error"
		if c.entries[key] == e {
			delete(c.entries, key)
		}
	} else {
		e.expires = c.opts.Clock().Add(c.opts.TTL)
	}
	metrics.CacheEntries.Set(float64(len(c.entries)))
	c.mu.Unlock()

	metrics.CacheFetchesTotal.WithLabelValues(string(c.src.Mode()), outcome).Inc()
	if err != nil {
		slog.Warn("[ChunkCache] fetch failed", "chunk", key.String(), "error", err)
		e.fut.Complete(nil, fmt.Errorf("fetch chunk %s: %w", key, err))
		return
	}
	e.fut.Complete(snap, nil)
}

// Get returns the snapshot for key, waiting for the fetch if needed. When
// called from a workpool task the task's slot is handed back while waiting.
func (c *Cache) Get(ctx context.Context, key world.ChunkKey) (*world.ChunkSnapshot, error) {
	fut, err := c.Request(key)
	if err != nil {
		return nil, err
	}
	return await(ctx, fut)
}

func await(ctx context.Context, fut *future.Future[*world.ChunkSnapshot]) (*world.ChunkSnapshot, error) {
	if snap, ok, err := fut.TryGet(); ok {
		return snap, err
	}
	var snap *world.ChunkSnapshot
	err := workpool.ManagedBlock(ctx, func() error {
		var err error
		snap, err = fut.Get(ctx)
		return err
	})
	return snap, err
}

// Invalidate detaches the entry for key so the next request issues a new
// fetch. Regions leasing the old entry keep reading its snapshot, and a fetch
// still in flight completes for the requests that already joined it. It
// reports whether an entry was detached.
func (c *Cache) Invalidate(key world.ChunkKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	metrics.CacheEntries.Set(float64(len(c.entries)))
	return true
}

// Sweep removes entries that are expired at now, resolved and unleased, and
// returns how many were removed.
func (c *Cache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, e := range c.entries {
		if e.leases > 0 || !e.fut.IsDone() || e.expires.IsZero() || !now.After(e.expires) {
			continue
		}
		delete(c.entries, key)
		removed++
	}
	if removed > 0 {
		metrics.CacheEvictionsTotal.Add(float64(removed))
		metrics.CacheEntries.Set(float64(len(c.entries)))
	}
	return removed
}

// Clear drops every resolved, unleased entry regardless of expiry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if e.leases == 0 && e.fut.IsDone() {
			delete(c.entries, key)
		}
	}
	metrics.CacheEntries.Set(float64(len(c.entries)))
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Entries int `json:"entries"`
	Pending int `json:"pending"`
	Leased  int `json:"leased"`
}

// Stats counts entries by state.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{Entries: len(c.entries)}
	for _, e := range c.entries {
		if !e.fut.IsDone() {
			s.Pending++
		}
		if e.leases > 0 {
			s.Leased++
		}
	}
	return s
}

// Len returns the number of entries, pending included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// StartSweeper runs Sweep every interval until Close.
func (c *Cache) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := c.Sweep(c.opts.Clock()); n > 0 {
					slog.Debug("[ChunkCache] swept expired snapshots", "removed", n)
				}
			case <-c.ctx.Done():
				return
			}
		}
	}()
}

// Close stops the sweeper and rejects further requests. Fetches in flight are
// cancelled through their context.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.cancel()
		c.wg.Wait()
	})
}
