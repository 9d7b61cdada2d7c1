package hpa

import (
	"math"

	"github.com/sanonone/voxpath/pkg/grid"
	"github.com/sanonone/voxpath/pkg/world"
)

// clusterItem orders the clusters of one level by X, then Z, then Y.
type clusterItem struct {
	X, Z, Y int
	ID      int32
}

func clusterItemLess(a, b clusterItem) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Z != b.Z {
		return a.Z < b.Z
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.ID < b.ID
}

func (g *Graph) indexCluster(c *Cluster) {
	g.index[c.Level].Set(clusterItem{X: c.Origin.X, Z: c.Origin.Z, Y: c.Origin.Y, ID: c.ID})
}

// ClusterAt returns the cluster of the given level containing p.
func (g *Graph) ClusterAt(level int, p world.BlockPos) (Cluster, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if level < 0 || level >= g.cfg.MaxDepth {
		return Cluster{}, false
	}
	c := g.clusterAt(level, p)
	if c == nil {
		return Cluster{}, false
	}
	return *c, true
}

// ClustersIn returns the clusters of a level that intersect b, ordered by X,
// Z and Y of their origin.
func (g *Graph) ClustersIn(level int, b grid.Bounds) []Cluster {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if level < 0 || level >= g.cfg.MaxDepth {
		return nil
	}
	size := g.cfg.size(level)
	pivot := clusterItem{X: b.Min.X - size + 1, Z: math.MinInt, Y: math.MinInt, ID: math.MinInt32}
	var out []Cluster
	g.index[level].Ascend(pivot, func(it clusterItem) bool {
		if it.X > b.Max.X {
			return false
		}
		c := &g.clusters[it.ID]
		cb := c.Bounds()
		if cb.Max.Z >= b.Min.Z && cb.Min.Z <= b.Max.Z && cb.Max.Y >= b.Min.Y && cb.Min.Y <= b.Max.Y {
			out = append(out, *c)
		}
		return true
	})
	return out
}

// orderedClusters walks every cluster level by level in index order.
func (g *Graph) orderedClusters(fn func(c *Cluster)) {
	for _, tree := range g.index {
		tree.Scan(func(it clusterItem) bool {
			fn(&g.clusters[it.ID])
			return true
		})
	}
}
