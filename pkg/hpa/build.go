package hpa

import (
	"context"
	"log/slog"
	"slices"

	"github.com/sanonone/voxpath/pkg/grid"
	"github.com/sanonone/voxpath/pkg/traverse"
	"github.com/sanonone/voxpath/pkg/world"
)

// neighbour offsets of a level-0 cluster in cluster coordinates.
var faceOffsets = [6][3]int{
	{1, 0, 0}, {-1, 0, 0},
	{0, 0, 1}, {0, 0, -1},
	{0, 1, 0}, {0, -1, 0},
}

// AddClusters loads the region containing world column (x, z). It returns
// false, and touches nothing, when the region is already loaded.
func (g *Graph) AddClusters(x, z int) bool {
	return g.AddClustersContext(context.Background(), x, z)
}

// AddClustersContext is AddClusters with a context for the local searches.
func (g *Graph) AddClustersContext(ctx context.Context, x, z int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	rk := g.RegionOf(x, z)
	if g.loaded[rk] {
		return false
	}
	g.loaded[rk] = true
	g.loadRegion(ctx, rk)
	g.publishMetrics()
	return true
}

func (g *Graph) passable(env *traverse.Env, p world.BlockPos) bool {
	g.queries.Add(1)
	return env.Passable(p)
}

func (g *Graph) loadRegion(ctx context.Context, rk RegionKey) {
	env := g.chain.Env(g.src)
	r, base, h := g.cfg.RegionSize(), g.cfg.BaseClusterSize, g.cfg.ClusterHeight
	minY, maxY := g.src.MinY(), g.src.MaxY()

	var fresh []int32
	for y0 := minY; y0 < maxY; y0 += h {
		for bx := 0; bx < r/base; bx++ {
			for bz := 0; bz < r/base; bz++ {
				origin := world.Pos(rk.X*r+bx*base, y0, rk.Z*r+bz*base)
				if g.carve(env, origin) {
					fresh = append(fresh, g.addCluster(0, g.coord(0, origin)))
				}
			}
		}
	}

	touched := make(map[int32]bool, len(fresh))
	for _, id := range fresh {
		touched[id] = true
		c := g.clusters[id].Coord
		for _, off := range faceOffsets {
			nid, ok := g.byCoord[clusterKey{0, c[0] + off[0], c[1] + off[1], c[2] + off[2]}]
			if !ok {
				continue
			}
			pair := [2]int32{min(id, nid), max(id, nid)}
			if g.faces[pair] {
				continue
			}
			g.faces[pair] = true
			g.connectFace(env, pair[0], pair[1])
			touched[nid] = true
		}
	}

	ids := sortedIDs(touched)
	for _, id := range ids {
		g.rebuildIntra(ctx, id)
	}
	for level := 1; level < g.cfg.MaxDepth; level++ {
		upper := make(map[int32]bool)
		for _, id := range ids {
			child := g.clusters[id].Coord
			pid := g.addCluster(level, [3]int{floorDiv(child[0], 2), floorDiv(child[1], 2), floorDiv(child[2], 2)})
			if p := &g.clusters[pid]; !slices.Contains(p.Children, id) {
				p.Children = append(p.Children, id)
			}
			upper[pid] = true
		}
		ids = sortedIDs(upper)
		for _, id := range ids {
			g.collectBorder(id)
			g.rebuildIntra(ctx, id)
		}
	}
	slog.Debug("[HPA] region loaded", "x", rk.X, "z", rk.Z, "clusters", len(fresh))
}

// carve reports whether the level-0 box at origin holds a walkable cell.
func (g *Graph) carve(env *traverse.Env, origin world.BlockPos) bool {
	base, h := g.cfg.BaseClusterSize, g.cfg.ClusterHeight
	for dy := 0; dy < h; dy++ {
		if !world.InYBounds(g.src, origin.Y+dy) {
			break
		}
		for dx := 0; dx < base; dx++ {
			for dz := 0; dz < base; dz++ {
				if g.passable(env, origin.Add(dx, dy, dz)) {
					return true
				}
			}
		}
	}
	return false
}

type opening struct {
	p, q world.BlockPos
}

// connectFace creates the entrances between two adjacent level-0 clusters.
func (g *Graph) connectFace(env *traverse.Env, a, b int32) {
	ca, cb := g.clusters[a], g.clusters[b]
	if cb.Coord[0] < ca.Coord[0] || cb.Coord[1] < ca.Coord[1] || cb.Coord[2] < ca.Coord[2] {
		a, b = b, a
		ca, cb = cb, ca
	}
	lo, hi := ca.Bounds(), cb.Bounds()
	switch {
	case cb.Coord[1] != ca.Coord[1]:
		g.connectVertical(env, a, b, lo, hi)
	case cb.Coord[0] != ca.Coord[0]:
		for y := lo.Min.Y; y <= lo.Max.Y; y++ {
			row := make([]*opening, 0, ca.Size)
			for z := lo.Min.Z; z <= lo.Max.Z; z++ {
				row = append(row, g.crossing(env, world.Pos(lo.Max.X, y, z), world.Pos(hi.Min.X, y, z), hi))
			}
			g.placeRuns(row, a, b)
		}
	default:
		for y := lo.Min.Y; y <= lo.Max.Y; y++ {
			row := make([]*opening, 0, ca.Size)
			for x := lo.Min.X; x <= lo.Max.X; x++ {
				row = append(row, g.crossing(env, world.Pos(x, y, lo.Max.Z), world.Pos(x, y, hi.Min.Z), hi))
			}
			g.placeRuns(row, a, b)
		}
	}
}

// crossing checks one cell of a horizontal face. The step across may go up or
// down one block as long as it stays inside the far cluster.
func (g *Graph) crossing(env *traverse.Env, p, q world.BlockPos, far grid.Bounds) *opening {
	if !g.passable(env, p) {
		return nil
	}
	for _, dy := range [...]int{0, 1, -1} {
		t := q.Add(0, dy, 0)
		if far.Contains(t) && g.passable(env, t) {
			return &opening{p: p, q: t}
		}
	}
	return nil
}

// placeRuns turns maximal runs of open cells into entrances: the midpoint of a
// short run, both ends of a long one.
func (g *Graph) placeRuns(row []*opening, a, b int32) {
	for i := 0; i < len(row); {
		if row[i] == nil {
			i++
			continue
		}
		j := i
		for j+1 < len(row) && row[j+1] != nil {
			j++
		}
		if j-i+1 <= g.cfg.LongRunThreshold {
			g.addEntrance(*row[(i+j)/2], a, b)
		} else {
			g.addEntrance(*row[i], a, b)
			g.addEntrance(*row[j], a, b)
		}
		i = j + 1
	}
}

// connectVertical places a single entrance through the floor of b, at the
// opening closest to the centroid of all openings.
func (g *Graph) connectVertical(env *traverse.Env, a, b int32, lo, hi grid.Bounds) {
	var open []opening
	for x := lo.Min.X; x <= lo.Max.X; x++ {
		for z := lo.Min.Z; z <= lo.Max.Z; z++ {
			p := world.Pos(x, lo.Max.Y, z)
			if !g.passable(env, p) {
				continue
			}
			for _, off := range verticalSteps {
				q := world.Pos(x+off[0], hi.Min.Y, z+off[1])
				if hi.Contains(q) && g.passable(env, q) {
					open = append(open, opening{p: p, q: q})
					break
				}
			}
		}
	}
	if len(open) == 0 {
		return
	}
	var cx, cz float64
	for _, o := range open {
		cx += float64(o.p.X)
		cz += float64(o.p.Z)
	}
	cx /= float64(len(open))
	cz /= float64(len(open))
	best, bestD := 0, -1.0
	for i, o := range open {
		dx, dz := float64(o.p.X)-cx, float64(o.p.Z)-cz
		if d := dx*dx + dz*dz; bestD < 0 || d < bestD {
			best, bestD = i, d
		}
	}
	g.addEntrance(open[best], a, b)
}

var verticalSteps = [...][2]int{
	{0, 0},
	{1, 0}, {-1, 0}, {0, 1}, {0, -1},
	{1, 1}, {1, -1}, {-1, 1}, {-1, -1},
}

func (g *Graph) addEntrance(o opening, a, b int32) {
	na := g.nodeAt(o.p, &g.clusters[a])
	nb := g.nodeAt(o.q, &g.clusters[b])
	level := g.interLevel(o.p, o.q)
	g.nodes[na].Level = max(g.nodes[na].Level, level)
	g.nodes[nb].Level = max(g.nodes[nb].Level, level)
	if !g.hasEdge(na, nb, Inter) {
		g.addEdgePair(na, nb, Inter, level, o.p.Distance(o.q), -1, nil)
	}
}

// collectBorder refreshes the border nodes of a cluster above level 0 from
// its children.
func (g *Graph) collectBorder(id int32) {
	c := &g.clusters[id]
	c.Nodes = c.Nodes[:0]
	for _, child := range c.Children {
		for _, n := range g.clusters[child].Nodes {
			if g.nodes[n].Level >= c.Level {
				c.Nodes = append(c.Nodes, n)
			}
		}
	}
	slices.Sort(c.Nodes)
}

// rebuildIntra drops the INTRA edges a cluster owns and recomputes one per
// connected pair of its border nodes.
func (g *Graph) rebuildIntra(ctx context.Context, id int32) {
	c := &g.clusters[id]
	for _, n := range c.Nodes {
		for _, eid := range slices.Clone(g.nodes[n].Edges) {
			if e := &g.edges[eid]; e.Kind == Intra && e.Cluster == id {
				g.killEdge(eid)
			}
		}
	}
	nodes := slices.Clone(c.Nodes)
	bounds := c.Bounds()
	q := g.newQuery()
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			a, b := nodes[i], nodes[j]
			if c.Level == 0 {
				pa, pb := g.nodes[a].Pos, g.nodes[b].Pos
				p, err := grid.FindLocal(ctx, g.src, pa, pb, g.localBounds(c, pa, pb), g.params)
				if err != nil || p.Failed() {
					continue
				}
				g.addEdgePair(a, b, Intra, 0, p.Cost(), id, nil)
				continue
			}
			res, err := q.abstract(ctx, a, b, c.Level-1, &bounds)
			if err != nil || !res.Found {
				continue
			}
			g.addEdgePair(a, b, Intra, c.Level, res.Cost, id, res.Path)
		}
	}
}

// localBounds confines a level-0 search to the cluster, and in planar mode to
// a thin band around the endpoints.
func (g *Graph) localBounds(c *Cluster, a, b world.BlockPos) grid.Bounds {
	bounds := c.Bounds()
	if g.cfg.Planar && !g.chain.NeedsVertical() {
		bounds.Min.Y = max(bounds.Min.Y, min(a.Y, b.Y)-2)
		bounds.Max.Y = min(bounds.Max.Y, max(a.Y, b.Y)+2)
	}
	return bounds
}

func sortedIDs(set map[int32]bool) []int32 {
	ids := make([]int32, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
