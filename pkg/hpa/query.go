package hpa

import (
	"context"
	"errors"
	"fmt"

	"github.com/sanonone/voxpath/pkg/grid"
	"github.com/sanonone/voxpath/pkg/plan"
	"github.com/sanonone/voxpath/pkg/search"
	"github.com/sanonone/voxpath/pkg/world"
)

// errNoCluster means a query endpoint lies outside every loaded cluster.
var errNoCluster = errors.New("hpa: position is not inside a loaded cluster")

// query holds the temporary nodes and edges of one pathfinding request.
// Temporary ids are negative so the graph arenas never alias them.
type query struct {
	g     *Graph
	temps []Node
	edges []Edge
	adj   map[int32][]int32
}

func (g *Graph) newQuery() *query {
	return &query{g: g, adj: make(map[int32][]int32)}
}

func tempID(i int) int32 { return -int32(i) - 1 }
func tempIndex(id int32) int { return int(-id - 1) }

func (q *query) node(id int32) *Node {
	if id < 0 {
		return &q.temps[tempIndex(id)]
	}
	return &q.g.nodes[id]
}

func (q *query) edge(id int32) *Edge {
	if id < 0 {
		return &q.edges[tempIndex(id)]
	}
	return &q.g.edges[id]
}

func (q *query) each(id int32, fn func(e *Edge)) {
	if id >= 0 {
		for _, eid := range q.g.nodes[id].Edges {
			fn(&q.g.edges[eid])
		}
	}
	for _, eid := range q.adj[id] {
		fn(q.edge(eid))
	}
}

func (q *query) addTemp(p world.BlockPos, level int) int32 {
	id := tempID(len(q.temps))
	q.temps = append(q.temps, Node{ID: id, Pos: p, Level: level})
	return id
}

func (q *query) addEdgePair(a, b int32, level int, weight float64, cluster int32, via []int32) {
	id := tempID(len(q.edges))
	twin := tempID(len(q.edges) + 1)
	var back []int32
	if len(via) > 0 {
		back = make([]int32, len(via))
		for i, n := range via {
			back[len(via)-1-i] = n
		}
	}
	q.edges = append(q.edges,
		Edge{ID: id, Twin: twin, From: a, To: b, Kind: Intra, Level: level, Weight: weight, Cluster: cluster, Via: via},
		Edge{ID: twin, Twin: id, From: b, To: a, Kind: Intra, Level: level, Weight: weight, Cluster: cluster, Via: back},
	)
	q.adj[a] = append(q.adj[a], id)
	q.adj[b] = append(q.adj[b], twin)
}

// abstractProblem searches the graph at one level, optionally confined to a
// cluster box.
type abstractProblem struct {
	q      *query
	level  int
	goal   int32
	target world.BlockPos
	bounds *grid.Bounds
}

var _ search.Problem[int32] = (*abstractProblem)(nil)

func (p *abstractProblem) Neighbors(id int32, yield func(int32, float64)) {
	p.q.each(id, func(e *Edge) {
		if !e.usable(p.level) {
			return
		}
		if p.bounds != nil && !p.bounds.Contains(p.q.node(e.To).Pos) {
			return
		}
		yield(e.To, e.Weight)
	})
}

func (p *abstractProblem) Heuristic(id int32) float64 {
	return p.q.node(id).Pos.Distance(p.target)
}

func (p *abstractProblem) IsGoal(id int32) bool { return id == p.goal }

func (q *query) abstract(ctx context.Context, from, to int32, level int, bounds *grid.Bounds) (search.Result[int32], error) {
	prob := &abstractProblem{
		q:      q,
		level:  level,
		goal:   to,
		target: q.node(to).Pos,
		bounds: bounds,
	}
	// Abstract graphs are small; exact costs keep edge weights independent of
	// node numbering.
	return search.RunFully[int32](ctx, prob, from, search.WithTieBreak(1))
}

// connect links a temporary node to the border nodes of every cluster that
// contains it, from level 0 up to top.
func (q *query) connect(ctx context.Context, src world.BlockSource, temp int32, top int) error {
	g := q.g
	pos := q.node(temp).Pos
	for level := 0; level <= top; level++ {
		c := g.clusterAt(level, pos)
		if c == nil {
			return errNoCluster
		}
		bounds := c.Bounds()
		for _, n := range c.Nodes {
			target := g.nodes[n].Pos
			if level == 0 {
				p, err := grid.FindLocal(ctx, src, pos, target, g.localBounds(c, pos, target), g.params)
				if err != nil {
					return err
				}
				if !p.Failed() {
					q.addEdgePair(temp, n, 0, p.Cost(), c.ID, nil)
				}
				continue
			}
			res, err := q.abstract(ctx, temp, n, level-1, &bounds)
			if err != nil {
				return err
			}
			if res.Found {
				q.addEdgePair(temp, n, level, res.Cost, c.ID, res.Path)
			}
		}
	}
	return nil
}

// Result is the outcome of a hierarchical query.
type Result struct {
	// Nodes is the abstract node chain, endpoints included.
	Nodes []world.BlockPos
	// Cost is the abstract path cost, +Inf when no path exists.
	Cost float64
	// Level is the level the search ran on, -1 when it never ran.
	Level int
	// Plan walks the refined path. INTRA segments are resolved on demand.
	Plan *plan.Lazy
}

// Found reports whether a path exists.
func (r Result) Found() bool { return r.Cost < infinite() }

func emptyResult() Result {
	return Result{Cost: infinite(), Level: -1, Plan: plan.NewLazy(nil)}
}

// Pathfind finds an abstract path between two concrete positions. Endpoints
// outside loaded clusters, or with no connection, yield an empty result with
// infinite cost. Only a cancelled context returns an error.
func (g *Graph) Pathfind(ctx context.Context, from, to world.BlockPos) (Result, error) {
	return g.PathfindIn(ctx, g.src, from, to)
}

// PathfindIn is Pathfind with the endpoint connections read from src, usually
// a prefetched view of the same world.
func (g *Graph) PathfindIn(ctx context.Context, src world.BlockSource, from, to world.BlockPos) (Result, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.clusterAt(0, from) == nil || g.clusterAt(0, to) == nil {
		return emptyResult(), nil
	}
	level := g.interLevel(from, to)
	if level < 0 {
		level = 0
	}

	q := g.newQuery()
	start := q.addTemp(from, level)
	goal := q.addTemp(to, level)
	for _, t := range []int32{start, goal} {
		if err := q.connect(ctx, src, t, level); err != nil {
			if errors.Is(err, errNoCluster) {
				return emptyResult(), nil
			}
			return emptyResult(), fmt.Errorf("hpa connect %s: %w", q.node(t).Pos, err)
		}
	}
	if c := g.clusterAt(0, from); c.Contains(to) {
		p, err := grid.FindLocal(ctx, src, from, to, g.localBounds(c, from, to), g.params)
		if err != nil {
			return emptyResult(), fmt.Errorf("hpa direct %s -> %s: %w", from, to, err)
		}
		if !p.Failed() {
			q.addEdgePair(start, goal, 0, p.Cost(), c.ID, nil)
		}
	}

	res, err := q.abstract(ctx, start, goal, level, nil)
	if err != nil {
		return emptyResult(), fmt.Errorf("hpa search %s -> %s: %w", from, to, err)
	}
	if !res.Found {
		return emptyResult(), nil
	}

	out := Result{Cost: res.Cost, Level: level}
	for _, id := range res.Path {
		out.Nodes = append(out.Nodes, q.node(id).Pos)
	}
	var segs []plan.Segment
	for i := 1; i < len(res.Path); i++ {
		q.refine(res.Path[i-1], res.Path[i], level, &segs)
	}
	out.Plan = plan.NewLazy(segs)
	return out, nil
}

// best returns the cheapest edge a -> b usable at level.
func (q *query) best(a, b int32, level int) *Edge {
	var found *Edge
	q.each(a, func(e *Edge) {
		if e.To == b && e.usable(level) && (found == nil || e.Weight < found.Weight) {
			found = e
		}
	})
	return found
}

// refine expands the edge a -> b down to level-0 segments. INTER crossings
// become straight steps; level-0 INTRA edges resolve through a local search
// inside their cluster once the plan reaches them.
func (q *query) refine(a, b int32, level int, out *[]plan.Segment) {
	g := q.g
	from, to := q.node(a).Pos, q.node(b).Pos
	e := q.best(a, b, level)
	switch {
	case e == nil || e.Kind == Inter || e.Cluster < 0:
		*out = append(*out, plan.Segment{From: from, To: to})
	case e.Level > 0 && len(e.Via) >= 2:
		for i := 1; i < len(e.Via); i++ {
			q.refine(e.Via[i-1], e.Via[i], e.Level-1, out)
		}
	default:
		bounds := g.localBounds(&g.clusters[e.Cluster], from, to)
		src, params := g.src, g.params
		*out = append(*out, plan.Segment{
			From: from,
			To:   to,
			Resolve: func(ctx context.Context) (*plan.Path, error) {
				return grid.FindLocal(ctx, src, from, to, bounds, params)
			},
		})
	}
}
