package hpa

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanonone/voxpath/pkg/grid"
	"github.com/sanonone/voxpath/pkg/traverse"
	"github.com/sanonone/voxpath/pkg/world"
)

func flatGraph(t *testing.T, size int) (*world.MemoryWorld, *Graph) {
	t.Helper()
	w, err := world.FlatScene("flat", size, 63, 80).Build()
	require.NoError(t, err)
	g := New(w, traverse.DefaultChain(), DefaultConfig())
	for x := 0; x < size; x += g.Config().RegionSize() {
		for z := 0; z < size; z += g.Config().RegionSize() {
			require.True(t, g.AddClusters(x, z))
		}
	}
	return w, g
}

func requireContiguous(t *testing.T, blocks []world.BlockPos) {
	t.Helper()
	for i := 1; i < len(blocks); i++ {
		require.LessOrEqual(t, blocks[i-1].ChebyshevDistance(blocks[i]), 1,
			"gap between %s and %s", blocks[i-1], blocks[i])
	}
}

func edgeSet(g *Graph) []string {
	var out []string
	for _, e := range g.Edges() {
		a, b := e.From, e.To
		if b.X < a.X || (b.X == a.X && (b.Y < a.Y || (b.Y == a.Y && b.Z < a.Z))) {
			a, b = b, a
		}
		out = append(out, fmt.Sprintf("%s %s %s %d %.4f", e.Kind, a, b, e.Level, e.Weight))
	}
	slices.Sort(out)
	return out
}

func TestLevels(t *testing.T) {
	_, g := flatGraph(t, 64)

	st := g.Stats()
	assert.Equal(t, 4, st.Regions)
	require.Len(t, st.Levels, 3)
	// Only the band holding the walking layer has walkable cells.
	assert.Equal(t, 64, st.Levels[0].Clusters)
	assert.Equal(t, 16, st.Levels[1].Clusters)
	assert.Equal(t, 4, st.Levels[2].Clusters)
	assert.Positive(t, st.Levels[2].Nodes)
	assert.Positive(t, st.Levels[2].IntraEdges)

	r := g.Config().RegionSize()
	for _, e := range g.Edges() {
		if e.Kind != Inter {
			assert.GreaterOrEqual(t, e.Weight, e.From.Distance(e.To)-1e-9)
			continue
		}
		crossesRegion := floorDiv(e.From.X, r) != floorDiv(e.To.X, r) || floorDiv(e.From.Z, r) != floorDiv(e.To.Z, r)
		assert.Equal(t, crossesRegion, e.Level == 2, "edge %s -> %s level %d", e.From, e.To, e.Level)
	}
}

func TestLongRunsGetTwoEntrances(t *testing.T) {
	_, g := flatGraph(t, 32)

	// The face between the first two level-0 clusters is an 8-wide open run.
	var crossings []EdgeInfo
	for _, e := range g.Edges() {
		if e.Kind == Inter && min(e.From.X, e.To.X) == 7 && max(e.From.Z, e.To.Z) < 8 {
			crossings = append(crossings, e)
		}
	}
	require.Len(t, crossings, 2)
	zs := []int{crossings[0].From.Z, crossings[1].From.Z}
	slices.Sort(zs)
	assert.Equal(t, []int{0, 7}, zs)
}

func TestShortRunsGetMidpoint(t *testing.T) {
	w, err := world.Scene{
		MinY: 0,
		MaxY: 80,
		Fills: []world.SceneFill{
			{Material: world.Grass, From: [3]int{0, 63, 2}, To: [3]int{15, 63, 6}},
		},
	}.Build()
	require.NoError(t, err)
	g := New(w, traverse.DefaultChain(), DefaultConfig())
	require.True(t, g.AddClusters(0, 0))

	var crossings []EdgeInfo
	for _, e := range g.Edges() {
		if e.Kind == Inter {
			crossings = append(crossings, e)
		}
	}
	require.Len(t, crossings, 1)
	assert.Equal(t, 4, crossings[0].From.Z)
	assert.Equal(t, 0, crossings[0].Level)
}

func TestPathfindAcrossRegions(t *testing.T) {
	_, g := flatGraph(t, 64)
	from, to := world.Pos(2, 64, 2), world.Pos(60, 64, 60)

	res, err := g.Pathfind(context.Background(), from, to)
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, 2, res.Level)
	assert.Equal(t, from, res.Nodes[0])
	assert.Equal(t, to, res.Nodes[len(res.Nodes)-1])
	assert.GreaterOrEqual(t, res.Cost, from.Distance(to))

	lazy := res.Plan
	require.Greater(t, lazy.Segments(), 1)
	assert.Zero(t, lazy.Resolved())

	assert.Equal(t, from, lazy.CurrentBlock())
	assert.Less(t, lazy.Resolved(), lazy.Segments())

	blocks := lazy.Blocks()
	require.NoError(t, lazy.Err())
	assert.Equal(t, lazy.Segments(), lazy.Resolved())
	assert.Equal(t, from, blocks[0])
	assert.Equal(t, to, blocks[len(blocks)-1])
	requireContiguous(t, blocks)
}

func TestPathfindWalksLazily(t *testing.T) {
	_, g := flatGraph(t, 64)
	to := world.Pos(40, 64, 10)

	res, err := g.Pathfind(context.Background(), world.Pos(3, 64, 3), to)
	require.NoError(t, err)
	require.True(t, res.Found())

	lazy := res.Plan
	var last world.BlockPos
	for steps := 0; !lazy.IsComplete(); steps++ {
		require.Less(t, steps, 1000)
		last = lazy.CurrentBlock()
		lazy.Update()
	}
	require.NoError(t, lazy.Err())
	assert.Equal(t, to, last)
}

func TestPathfindSameCluster(t *testing.T) {
	_, g := flatGraph(t, 32)
	from, to := world.Pos(1, 64, 1), world.Pos(5, 64, 5)

	res, err := g.Pathfind(context.Background(), from, to)
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, 0, res.Level)
	assert.InDelta(t, 4*math.Sqrt2, res.Cost, 0.05)
	assert.Equal(t, []world.BlockPos{from, to}, res.Nodes)

	blocks := res.Plan.Blocks()
	assert.Equal(t, from, blocks[0])
	assert.Equal(t, to, blocks[len(blocks)-1])
}

func TestPathfindSameClusterUnconnected(t *testing.T) {
	w, err := world.Scene{
		MinY: 0,
		MaxY: 80,
		Fills: []world.SceneFill{
			{Material: world.Grass, From: [3]int{1, 63, 1}, To: [3]int{2, 63, 2}},
			{Material: world.Grass, From: [3]int{5, 63, 5}, To: [3]int{6, 63, 6}},
		},
	}.Build()
	require.NoError(t, err)
	g := New(w, traverse.DefaultChain(), DefaultConfig())
	require.True(t, g.AddClusters(0, 0))

	res, err := g.Pathfind(context.Background(), world.Pos(1, 64, 1), world.Pos(6, 64, 6))
	require.NoError(t, err)
	assert.False(t, res.Found())
	assert.True(t, math.IsInf(res.Cost, 1))
	assert.Empty(t, res.Nodes)
	assert.Empty(t, res.Plan.Blocks())
	assert.True(t, res.Plan.IsComplete())
}

func TestPathfindOutsideLoadedRegions(t *testing.T) {
	w, err := world.FlatScene("flat", 64, 63, 80).Build()
	require.NoError(t, err)
	g := New(w, nil, DefaultConfig())
	require.True(t, g.AddClusters(0, 0))

	res, err := g.Pathfind(context.Background(), world.Pos(2, 64, 2), world.Pos(40, 64, 40))
	require.NoError(t, err)
	assert.False(t, res.Found())
	assert.Equal(t, -1, res.Level)
}

func TestCorridorBlockedAfterInvalidate(t *testing.T) {
	w, err := world.Scene{
		MinY:  0,
		MaxY:  80,
		Fills: []world.SceneFill{{Material: world.Grass, From: [3]int{0, 63, 4}, To: [3]int{40, 63, 4}}},
	}.Build()
	require.NoError(t, err)
	g := New(w, traverse.DefaultChain(), DefaultConfig())
	require.True(t, g.AddClusters(0, 4))
	require.True(t, g.AddClusters(40, 4))

	from, to := world.Pos(1, 64, 4), world.Pos(40, 64, 4)
	res, err := g.Pathfind(context.Background(), from, to)
	require.NoError(t, err)
	require.True(t, res.Found())
	requireContiguous(t, res.Plan.Blocks())

	w.Fill(world.Pos(20, 64, 4), world.Pos(20, 65, 4), world.Stone)
	assert.True(t, g.InvalidateRegion(20, 4))
	assert.Equal(t, []RegionKey{{X: 0, Z: 0}}, g.Dirty())
	require.True(t, g.ApplyPendingPatches())
	assert.Empty(t, g.Dirty())

	res, err = g.Pathfind(context.Background(), from, to)
	require.NoError(t, err)
	assert.False(t, res.Found())
	assert.True(t, math.IsInf(res.Cost, 1))
	assert.Empty(t, res.Nodes)
	assert.Empty(t, res.Plan.Blocks())
}

func TestAddClustersTwiceIsNoOp(t *testing.T) {
	_, g := flatGraph(t, 32)
	queries := g.WalkabilityQueries()
	before := g.Stats()
	edges := edgeSet(g)
	require.Positive(t, queries)

	assert.False(t, g.AddClusters(5, 7))
	assert.False(t, g.AddClusters(31, 31))
	assert.Equal(t, queries, g.WalkabilityQueries())
	assert.Equal(t, before, g.Stats())
	assert.Equal(t, edges, edgeSet(g))
}

func TestRebuildIsIdempotent(t *testing.T) {
	w, err := world.FlatScene("flat", 64, 63, 80).Build()
	require.NoError(t, err)
	w.Fill(world.Pos(10, 64, 0), world.Pos(10, 65, 40), world.Stone)
	w.Fill(world.Pos(30, 64, 20), world.Pos(50, 64, 20), world.Stone)

	g := New(w, traverse.DefaultChain(), DefaultConfig())
	for _, rx := range []int{0, 32} {
		for _, rz := range []int{0, 32} {
			require.True(t, g.AddClusters(rx, rz))
		}
	}
	before := edgeSet(g)
	stats := g.Stats()

	assert.False(t, g.ApplyPendingPatches())
	assert.True(t, g.InvalidateRegion(33, 33))
	require.True(t, g.ApplyPendingPatches())

	assert.Equal(t, before, edgeSet(g))
	assert.Equal(t, stats, g.Stats())
}

func TestIncrementalLoadMatchesBatch(t *testing.T) {
	w, err := world.FlatScene("flat", 64, 63, 80).Build()
	require.NoError(t, err)

	incremental := New(w, nil, DefaultConfig())
	require.True(t, incremental.AddClusters(32, 32))
	require.True(t, incremental.AddClusters(0, 0))
	require.True(t, incremental.AddClusters(32, 0))
	require.True(t, incremental.AddClusters(0, 32))
	incremental.InvalidateRegion(0, 0)

	got := edgeSet(incremental)
	require.True(t, incremental.ApplyPendingPatches())
	assert.Equal(t, edgeSet(incremental), got)
}

func TestMarkDirty(t *testing.T) {
	_, g := flatGraph(t, 64)

	assert.False(t, g.MarkDirtyBlock(world.Pos(200, 64, 200)))
	assert.True(t, g.MarkDirtyBlock(world.Pos(5, 64, 5)))
	assert.Equal(t, []RegionKey{{X: 0, Z: 0}}, g.Dirty())
	// Already dirty.
	assert.False(t, g.MarkDirtyBlock(world.Pos(6, 64, 6)))

	// A block on the region edge dirties the neighbour too.
	assert.True(t, g.MarkDirtyBlock(world.Pos(31, 64, 5)))
	assert.Equal(t, []RegionKey{{X: 0, Z: 0}, {X: 1, Z: 0}}, g.Dirty())

	assert.True(t, g.MarkDirtyChunk(3, 3))
	assert.Len(t, g.Dirty(), 3)
	assert.False(t, g.MarkDirtyChunk(20, 20))

	require.True(t, g.ApplyPendingPatches())
	assert.Empty(t, g.Dirty())
	assert.Equal(t, 4, g.Stats().Regions)
}

func TestClear(t *testing.T) {
	_, g := flatGraph(t, 32)
	g.Clear()

	st := g.Stats()
	assert.Zero(t, st.Regions)
	assert.Zero(t, st.Nodes)
	assert.False(t, g.Loaded(0, 0))
	assert.True(t, g.AddClusters(0, 0))
}

func TestClusterIndex(t *testing.T) {
	_, g := flatGraph(t, 64)

	cs := g.ClustersIn(0, grid.NewBounds(world.Pos(0, 64, 0), world.Pos(15, 64, 15)))
	require.Len(t, cs, 4)
	for i := 1; i < len(cs); i++ {
		assert.True(t, clusterItemLess(
			clusterItem{X: cs[i-1].Origin.X, Z: cs[i-1].Origin.Z, Y: cs[i-1].Origin.Y, ID: cs[i-1].ID},
			clusterItem{X: cs[i].Origin.X, Z: cs[i].Origin.Z, Y: cs[i].Origin.Y, ID: cs[i].ID}))
	}
	assert.Empty(t, g.ClustersIn(0, grid.NewBounds(world.Pos(0, 0, 0), world.Pos(63, 40, 63))))

	c, ok := g.ClusterAt(2, world.Pos(40, 64, 40))
	require.True(t, ok)
	assert.Equal(t, world.Pos(32, 64, 32), c.Origin)
	assert.Equal(t, 32, c.Size)
	assert.Len(t, c.Children, 4)

	_, ok = g.ClusterAt(0, world.Pos(5, 10, 5))
	assert.False(t, ok)
}

func TestDump(t *testing.T) {
	_, g := flatGraph(t, 32)

	var buf bytes.Buffer
	require.NoError(t, g.Dump(&buf))
	snap, err := ReadSnapshot(&buf)
	require.NoError(t, err)

	st := g.Stats()
	assert.Equal(t, DefaultConfig(), snap.Config)
	assert.Equal(t, traverse.DefaultChain().String(), snap.Chain)
	assert.Equal(t, []RegionKey{{X: 0, Z: 0}}, snap.Regions)
	assert.Len(t, snap.Nodes, st.Nodes)
	assert.Len(t, snap.Edges, 2*st.Edges)
	assert.Len(t, snap.Clusters, 16+4+1)
	assert.Equal(t, 0, snap.Clusters[0].Level)
	assert.Equal(t, 2, snap.Clusters[len(snap.Clusters)-1].Level)
}

func TestPathfindCancelled(t *testing.T) {
	_, g := flatGraph(t, 64)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := g.Pathfind(ctx, world.Pos(2, 64, 2), world.Pos(60, 64, 60))
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.Found())
}

func TestRefinementFollowsPlanContext(t *testing.T) {
	_, g := flatGraph(t, 64)
	res, err := g.Pathfind(context.Background(), world.Pos(2, 64, 2), world.Pos(60, 64, 60))
	require.NoError(t, err)
	require.True(t, res.Found())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = res.Plan.BlocksContext(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, res.Plan.Resolved(), res.Plan.Segments())
}

func TestInvalidConfigFallsBack(t *testing.T) {
	w := world.NewMemoryWorld("w", 0, 16)
	g := New(w, nil, Config{BaseClusterSize: 1})
	assert.Equal(t, DefaultConfig(), g.Config())
	assert.Error(t, Config{BaseClusterSize: 8, ClusterHeight: 8, MaxDepth: 9, LongRunThreshold: 6}.Validate())
}
