package chunkcache

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sanonone/voxpath/pkg/metrics"
	"github.com/sanonone/voxpath/pkg/workpool"
	"github.com/sanonone/voxpath/pkg/world"
)

// Rect is an inclusive block rectangle on the X/Z plane.
type Rect struct {
	MinX, MinZ, MaxX, MaxZ int
}

// RectAround is the square of the given radius centred on p.
func RectAround(p world.BlockPos, radius int) Rect {
	radius = max(radius, 0)
	return Rect{MinX: p.X - radius, MinZ: p.Z - radius, MaxX: p.X + radius, MaxZ: p.Z + radius}
}

// Intersects reports whether r and o share at least one block.
func (r Rect) Intersects(o Rect) bool {
	return r.MinX <= o.MaxX && o.MinX <= r.MaxX && r.MinZ <= o.MaxZ && o.MinZ <= r.MaxZ
}

// Union is the bounding rectangle of r and o.
func (r Rect) Union(o Rect) Rect {
	return Rect{
		MinX: min(r.MinX, o.MinX), MinZ: min(r.MinZ, o.MinZ),
		MaxX: max(r.MaxX, o.MaxX), MaxZ: max(r.MaxZ, o.MaxZ),
	}
}

// Chunks lists the chunk columns r touches.
func (r Rect) Chunks(worldID string) []world.ChunkKey {
	var keys []world.ChunkKey
	for cx := world.ChunkCoord(r.MinX); cx <= world.ChunkCoord(r.MaxX); cx++ {
		for cz := world.ChunkCoord(r.MinZ); cz <= world.ChunkCoord(r.MaxZ); cz++ {
			keys = append(keys, world.ChunkKey{World: worldID, X: cx, Z: cz})
		}
	}
	return keys
}

// MergeRects replaces intersecting rectangles by their union until no two
// of the results intersect.
func MergeRects(rects ...Rect) []Rect {
	out := append([]Rect(nil), rects...)
	for merged := true; merged; {
		merged = false
		for i := 0; i < len(out) && !merged; i++ {
			for j := i + 1; j < len(out); j++ {
				if out[i].Intersects(out[j]) {
					out[i] = out[i].Union(out[j])
					out = append(out[:j], out[j+1:]...)
					merged = true
					break
				}
			}
		}
	}
	return out
}

// Region is a BlockSource over prefetched snapshots. It holds a lease on every
// entry it reads from until Release.
type Region struct {
	*world.SnapshotView
	cache    *Cache
	entries  []*entry
	keys     []world.ChunkKey
	released atomic.Bool
}

// Keys returns the chunk columns the region covers.
func (r *Region) Keys() []world.ChunkKey { return r.keys }

// Release drops the region's leases. It is safe to call more than once.
func (r *Region) Release() {
	if r.released.Swap(true) {
		return
	}
	r.cache.release(r.entries)
}

func (c *Cache) release(entries []*entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		if e.leases > 0 {
			e.leases--
		}
	}
}

// Prefetch requests every chunk under rects, merging rectangles that
// intersect, waits for all of them and returns a leased Region. The first
// fetch failure aborts the prefetch and is returned.
func (c *Cache) Prefetch(ctx context.Context, worldID string, rects ...Rect) (*Region, error) {
	start := time.Now()
	seen := make(map[world.ChunkKey]struct{})
	var keys []world.ChunkKey
	for _, r := range MergeRects(rects...) {
		for _, k := range r.Chunks(worldID) {
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}

	entries := make([]*entry, 0, len(keys))
	for _, k := range keys {
		_, e, err := c.request(k, true)
		if err != nil {
			c.release(entries)
			return nil, err
		}
		entries = append(entries, e)
	}

	snaps := make([]*world.ChunkSnapshot, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	for i, e := range entries {
		g.Go(func() error {
			snap, err := e.fut.Get(gctx)
			snaps[i] = snap
			return err
		})
	}
	if err := workpool.ManagedBlock(ctx, g.Wait); err != nil {
		c.release(entries)
		return nil, fmt.Errorf("prefetch %d chunks of %q: %w", len(keys), worldID, err)
	}
	metrics.PrefetchDuration.Observe(time.Since(start).Seconds())
	slog.Debug("[ChunkCache] prefetched region", "world", worldID, "chunks", len(keys), "duration", time.Since(start))

	minY, maxY := 0, 0
	if len(snaps) > 0 {
		minY, maxY = snaps[0].MinY, snaps[0].MaxY
	}
	return &Region{
		SnapshotView: world.NewSnapshotView(minY, maxY, snaps...),
		cache:        c,
		entries:      entries,
		keys:         keys,
	}, nil
}
