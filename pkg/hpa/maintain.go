package hpa

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/sanonone/voxpath/pkg/metrics"
	"github.com/sanonone/voxpath/pkg/world"
)

// MarkDirtyBlock schedules a rebuild for the loaded regions whose abstraction
// may depend on the block at p. A block on a region edge also dirties the
// neighbouring region.
func (g *Graph) MarkDirtyBlock(p world.BlockPos) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	marked := false
	for _, dx := range [...]int{0, -1, 1} {
		for _, dz := range [...]int{0, -1, 1} {
			rk := g.RegionOf(p.X+dx, p.Z+dz)
			if g.loaded[rk] && !g.dirty[rk] {
				g.dirty[rk] = true
				marked = true
			}
		}
	}
	return marked
}

// MarkDirtyChunk schedules a rebuild for the loaded regions overlapping chunk
// column (cx, cz).
func (g *Graph) MarkDirtyChunk(cx, cz int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.cfg.RegionSize()
	x0, z0 := cx<<world.ChunkShift, cz<<world.ChunkShift
	x1, z1 := x0+world.ChunkSize-1, z0+world.ChunkSize-1
	marked := false
	for rx := floorDiv(x0, r); rx <= floorDiv(x1, r); rx++ {
		for rz := floorDiv(z0, r); rz <= floorDiv(z1, r); rz++ {
			rk := RegionKey{X: rx, Z: rz}
			if g.loaded[rk] && !g.dirty[rk] {
				g.dirty[rk] = true
				marked = true
			}
		}
	}
	return marked
}

// InvalidateRegion marks the region containing (x, z) dirty. It reports
// whether the region is loaded.
func (g *Graph) InvalidateRegion(x, z int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	rk := g.RegionOf(x, z)
	if !g.loaded[rk] {
		return false
	}
	g.dirty[rk] = true
	return true
}

// Dirty returns the regions waiting for a rebuild.
func (g *Graph) Dirty() []RegionKey {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedRegions(g.dirty)
}

// ApplyPendingPatches rebuilds the whole loaded set from scratch when any
// region is dirty. It reports whether a rebuild happened.
func (g *Graph) ApplyPendingPatches() bool {
	return g.ApplyPendingPatchesContext(context.Background())
}

// ApplyPendingPatchesContext is ApplyPendingPatches with a context for the
// local searches.
func (g *Graph) ApplyPendingPatchesContext(ctx context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.dirty) == 0 {
		return false
	}
	start := time.Now()
	dirty := len(g.dirty)
	regions := sortedRegions(g.loaded)
	g.reset()
	for _, rk := range regions {
		g.loaded[rk] = true
		g.loadRegion(ctx, rk)
	}
	g.publishMetrics()
	metrics.GraphRebuildsTotal.Inc()
	slog.Info("[HPA] graph rebuilt",
		"regions", len(regions),
		"dirty", dirty,
		"clusters", len(g.clusters),
		"nodes", len(g.nodes),
		"duration", time.Since(start))
	return true
}

func sortedRegions(set map[RegionKey]bool) []RegionKey {
	out := make([]RegionKey, 0, len(set))
	for rk := range set {
		out = append(out, rk)
	}
	slices.SortFunc(out, func(a, b RegionKey) int {
		if a.X != b.X {
			return a.X - b.X
		}
		return a.Z - b.Z
	})
	return out
}
