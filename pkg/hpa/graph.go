// Package hpa builds a multi-level abstraction of a voxel world for fast long
// distance path queries.
//
// Level-0 clusters are fixed boxes of the world that contain at least one
// walkable cell. Openings on the faces shared by two clusters become entrances:
// a pair of nodes joined by an INTER edge. Border nodes of the same cluster are
// joined by INTRA edges whose weight comes from a local search confined to the
// cluster. Each higher level doubles the cluster size, keeps the nodes whose
// INTER edges leave the bigger cluster and reconnects them with searches over
// the level below.
//
// Nodes and edges live in arenas addressed by dense int32 ids. The world is
// loaded one region (a top-level cluster column) at a time. A loaded region is
// never patched in place: marking it dirty schedules a full clear-and-rebuild
// of every loaded region.
package hpa

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/tidwall/btree"

	"github.com/sanonone/voxpath/pkg/grid"
	"github.com/sanonone/voxpath/pkg/metrics"
	"github.com/sanonone/voxpath/pkg/traverse"
	"github.com/sanonone/voxpath/pkg/world"
)

// EdgeKind distinguishes edges inside one cluster from edges across clusters.
type EdgeKind uint8

const (
	Intra EdgeKind = iota
	Inter
)

func (k EdgeKind) String() string {
	if k == Inter {
		return "inter"
	}
	return "intra"
}

// MarshalText encodes the kind name.
func (k EdgeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText accepts "intra" or "inter".
func (k *EdgeKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "intra":
		*k = Intra
	case "inter":
		*k = Inter
	default:
		return fmt.Errorf("hpa: unknown edge kind %q", text)
	}
	return nil
}

// Node is an abstract node: a concrete cell that sits on a cluster border.
type Node struct {
	ID  int32          `msgpack:"id"`
	Pos world.BlockPos `msgpack:"pos"`
	// Level is the highest level at which the node is a border node.
	Level int     `msgpack:"level"`
	Edges []int32 `msgpack:"edges"`
}

// Edge is one directed half of an undirected abstract edge. Both halves carry
// the same weight.
type Edge struct {
	ID     int32    `msgpack:"id"`
	Twin   int32    `msgpack:"twin"`
	From   int32    `msgpack:"from"`
	To     int32    `msgpack:"to"`
	Kind   EdgeKind `msgpack:"kind"`
	Level  int      `msgpack:"level"`
	Weight float64  `msgpack:"weight"`
	// Cluster owns an INTRA edge; -1 for INTER edges.
	Cluster int32 `msgpack:"cluster"`
	// Via is the node chain one level down that an INTRA edge above level 0
	// abstracts.
	Via  []int32 `msgpack:"via,omitempty"`
	dead bool
}

// usable reports whether a search at level may take e.
func (e *Edge) usable(level int) bool {
	if e.dead {
		return false
	}
	if e.Kind == Inter {
		return e.Level >= level
	}
	return e.Level == level
}

// Cluster is a box of the world at one level.
type Cluster struct {
	ID       int32          `msgpack:"id"`
	Level    int            `msgpack:"level"`
	Coord    [3]int         `msgpack:"coord"`
	Origin   world.BlockPos `msgpack:"origin"`
	Size     int            `msgpack:"size"`
	Height   int            `msgpack:"height"`
	Nodes    []int32        `msgpack:"nodes"`
	Children []int32        `msgpack:"children,omitempty"`
}

// Bounds is the inclusive box the cluster covers.
func (c *Cluster) Bounds() grid.Bounds {
	return grid.Bounds{
		Min: c.Origin,
		Max: c.Origin.Add(c.Size-1, c.Height-1, c.Size-1),
	}
}

// Contains reports whether p lies inside the cluster.
func (c *Cluster) Contains(p world.BlockPos) bool { return c.Bounds().Contains(p) }

type clusterKey struct {
	level   int
	x, y, z int
}

// RegionKey identifies a loadable region.
type RegionKey struct {
	X int `msgpack:"x" json:"x"`
	Z int `msgpack:"z" json:"z"`
}

// Graph is the hierarchical abstraction of one world. Mutations take the
// write lock; queries only read and may run concurrently.
type Graph struct {
	mu sync.RWMutex

	src    world.BlockSource
	chain  *traverse.Chain
	cfg    Config
	params grid.Params

	nodes    []Node
	edges    []Edge
	clusters []Cluster
	byCoord  map[clusterKey]int32
	byPos    map[world.BlockPos]int32
	index    []*btree.BTreeG[clusterItem]
	faces    map[[2]int32]bool
	loaded   map[RegionKey]bool
	dirty    map[RegionKey]bool

	queries atomic.Int64
}

// New creates an empty graph over src. Invalid geometry falls back to
// DefaultConfig.
func New(src world.BlockSource, chain *traverse.Chain, cfg Config) *Graph {
	if err := cfg.Validate(); err != nil {
		slog.Warn("[HPA] invalid config, using defaults", "error", err)
		cfg = DefaultConfig()
	}
	if chain == nil {
		chain = traverse.DefaultChain()
	}
	g := &Graph{
		src:   src,
		chain: chain,
		cfg:   cfg,
		params: grid.Params{
			Chain:        chain,
			Connectivity: grid.TwentySix,
		},
	}
	g.reset()
	return g
}

func (g *Graph) reset() {
	g.nodes = nil
	g.edges = nil
	g.clusters = nil
	g.byCoord = make(map[clusterKey]int32)
	g.byPos = make(map[world.BlockPos]int32)
	g.faces = make(map[[2]int32]bool)
	g.loaded = make(map[RegionKey]bool)
	g.dirty = make(map[RegionKey]bool)
	g.index = make([]*btree.BTreeG[clusterItem], g.cfg.MaxDepth)
	for i := range g.index {
		g.index[i] = btree.NewBTreeG[clusterItem](clusterItemLess)
	}
}

// Config returns the graph geometry.
func (g *Graph) Config() Config { return g.cfg }

// Chain returns the movement chain the graph was built for.
func (g *Graph) Chain() *traverse.Chain { return g.chain }

// WalkabilityQueries counts the passability checks made while carving
// clusters and scanning faces.
func (g *Graph) WalkabilityQueries() int64 { return g.queries.Load() }

// Clear discards every region, cluster, node and edge.
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reset()
	g.publishMetrics()
}

// RegionOf returns the region containing world column (x, z).
func (g *Graph) RegionOf(x, z int) RegionKey {
	r := g.cfg.RegionSize()
	return RegionKey{X: floorDiv(x, r), Z: floorDiv(z, r)}
}

// Loaded reports whether the region containing (x, z) is loaded.
func (g *Graph) Loaded(x, z int) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.loaded[g.RegionOf(x, z)]
}

func (g *Graph) coord(level int, p world.BlockPos) [3]int {
	s, h := g.cfg.size(level), g.cfg.height(level)
	return [3]int{floorDiv(p.X, s), floorDiv(p.Y-g.src.MinY(), h), floorDiv(p.Z, s)}
}

func (g *Graph) clusterAt(level int, p world.BlockPos) *Cluster {
	c := g.coord(level, p)
	id, ok := g.byCoord[clusterKey{level, c[0], c[1], c[2]}]
	if !ok {
		return nil
	}
	return &g.clusters[id]
}

// interLevel is the highest level at which a and b fall in different
// clusters, or -1 when they share a level-0 cluster.
func (g *Graph) interLevel(a, b world.BlockPos) int {
	for level := g.cfg.TopLevel(); level >= 0; level-- {
		if g.coord(level, a) != g.coord(level, b) {
			return level
		}
	}
	return -1
}

func (g *Graph) addCluster(level int, c [3]int) int32 {
	key := clusterKey{level, c[0], c[1], c[2]}
	if id, ok := g.byCoord[key]; ok {
		return id
	}
	id := int32(len(g.clusters))
	s, h := g.cfg.size(level), g.cfg.height(level)
	g.clusters = append(g.clusters, Cluster{
		ID:     id,
		Level:  level,
		Coord:  c,
		Origin: world.Pos(c[0]*s, g.src.MinY()+c[1]*h, c[2]*s),
		Size:   s,
		Height: h,
	})
	g.byCoord[key] = id
	g.indexCluster(&g.clusters[id])
	return id
}

// nodeAt returns the node at p, creating it inside cluster c if needed.
func (g *Graph) nodeAt(p world.BlockPos, c *Cluster) int32 {
	if id, ok := g.byPos[p]; ok {
		return id
	}
	id := int32(len(g.nodes))
	g.nodes = append(g.nodes, Node{ID: id, Pos: p})
	g.byPos[p] = id
	c.Nodes = append(c.Nodes, id)
	return id
}

func (g *Graph) addEdgePair(a, b int32, kind EdgeKind, level int, weight float64, cluster int32, via []int32) {
	id := int32(len(g.edges))
	var back []int32
	if len(via) > 0 {
		back = slices.Clone(via)
		slices.Reverse(back)
	}
	g.edges = append(g.edges,
		Edge{ID: id, Twin: id + 1, From: a, To: b, Kind: kind, Level: level, Weight: weight, Cluster: cluster, Via: via},
		Edge{ID: id + 1, Twin: id, From: b, To: a, Kind: kind, Level: level, Weight: weight, Cluster: cluster, Via: back},
	)
	g.nodes[a].Edges = append(g.nodes[a].Edges, id)
	g.nodes[b].Edges = append(g.nodes[b].Edges, id+1)
}

func (g *Graph) hasEdge(a, b int32, kind EdgeKind) bool {
	for _, eid := range g.nodes[a].Edges {
		if e := &g.edges[eid]; !e.dead && e.To == b && e.Kind == kind {
			return true
		}
	}
	return false
}

// killEdge marks both halves dead and unlinks them from their nodes.
func (g *Graph) killEdge(id int32) {
	e := &g.edges[id]
	if e.dead {
		return
	}
	twin := &g.edges[e.Twin]
	e.dead, twin.dead = true, true
	g.nodes[e.From].Edges = slices.DeleteFunc(g.nodes[e.From].Edges, func(x int32) bool { return x == id })
	g.nodes[twin.From].Edges = slices.DeleteFunc(g.nodes[twin.From].Edges, func(x int32) bool { return x == twin.ID })
}

// LevelStats describes one level of the hierarchy.
type LevelStats struct {
	Level      int `json:"level" msgpack:"level"`
	Clusters   int `json:"clusters" msgpack:"clusters"`
	Nodes      int `json:"nodes" msgpack:"nodes"`
	IntraEdges int `json:"intra_edges" msgpack:"intra_edges"`
	InterEdges int `json:"inter_edges" msgpack:"inter_edges"`
}

// Stats summarizes the graph.
type Stats struct {
	Regions int          `json:"regions" msgpack:"regions"`
	Dirty   int          `json:"dirty" msgpack:"dirty"`
	Nodes   int          `json:"nodes" msgpack:"nodes"`
	Edges   int          `json:"edges" msgpack:"edges"`
	Levels  []LevelStats `json:"levels" msgpack:"levels"`
}

// Stats counts clusters, nodes and undirected edges per level.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.statsLocked()
}

func (g *Graph) statsLocked() Stats {
	s := Stats{
		Regions: len(g.loaded),
		Dirty:   len(g.dirty),
		Nodes:   len(g.nodes),
		Levels:  make([]LevelStats, g.cfg.MaxDepth),
	}
	for i := range s.Levels {
		s.Levels[i].Level = i
	}
	for i := range g.clusters {
		s.Levels[g.clusters[i].Level].Clusters++
	}
	for i := range g.nodes {
		for l := 0; l <= g.nodes[i].Level && l < len(s.Levels); l++ {
			s.Levels[l].Nodes++
		}
	}
	for i := 0; i < len(g.edges); i += 2 {
		e := &g.edges[i]
		if e.dead {
			continue
		}
		s.Edges++
		if e.Kind == Inter {
			s.Levels[e.Level].InterEdges++
		} else {
			s.Levels[e.Level].IntraEdges++
		}
	}
	return s
}

func (g *Graph) publishMetrics() {
	counts := make([]int, g.cfg.MaxDepth)
	for i := range g.clusters {
		counts[g.clusters[i].Level]++
	}
	for level, n := range counts {
		metrics.GraphClusters.WithLabelValues(strconv.Itoa(level)).Set(float64(n))
	}
}

// EdgeInfo is an undirected edge described by its endpoint positions.
type EdgeInfo struct {
	From   world.BlockPos `json:"from"`
	To     world.BlockPos `json:"to"`
	Kind   EdgeKind       `json:"kind"`
	Level  int            `json:"level"`
	Weight float64        `json:"weight"`
}

// Edges lists the live undirected edges.
func (g *Graph) Edges() []EdgeInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []EdgeInfo
	for i := 0; i < len(g.edges); i += 2 {
		e := &g.edges[i]
		if e.dead {
			continue
		}
		out = append(out, EdgeInfo{
			From:   g.nodes[e.From].Pos,
			To:     g.nodes[e.To].Pos,
			Kind:   e.Kind,
			Level:  e.Level,
			Weight: e.Weight,
		})
	}
	return out
}

func infinite() float64 { return math.Inf(1) }
