package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanonone/voxpath/pkg/engine"
	"github.com/sanonone/voxpath/pkg/grid"
	"github.com/sanonone/voxpath/pkg/hpa"
	"github.com/sanonone/voxpath/pkg/world"
)

func connect(t *testing.T) (*mcp.ClientSession, *world.MemoryWorld) {
	t.Helper()
	ctx := context.Background()

	w, err := world.FlatScene("mcp", 64, 63, 80).Build()
	require.NoError(t, err)
	eng, err := engine.Open(engine.DefaultOptions("mcp", w, nil))
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	graph, err := eng.NewGraph(nil)
	require.NoError(t, err)

	server := NewMCPServer(NewService(eng, graph, w, grid.DefaultParams(), 16))
	serverT, clientT := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs, w
}

func call[T any](t *testing.T, cs *mcp.ClientSession, name string, args any) (T, *mcp.CallToolResult) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	var out T
	if !res.IsError {
		raw, err := json.Marshal(res.StructuredContent)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return out, res
}

func TestListTools(t *testing.T) {
	cs, _ := connect(t)
	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"find_path", "find_hierarchical_path", "set_block", "graph_stats"}, names)
}

func TestFindPathTool(t *testing.T) {
	cs, _ := connect(t)
	out, res := call[FindPathResult](t, cs, "find_path", map[string]any{
		"from": []int{2, 64, 2},
		"to":   []int{20, 64, 12},
	})
	require.False(t, res.IsError)
	require.True(t, out.Found)
	assert.Equal(t, [3]int{2, 64, 2}, out.Waypoints[0])
	assert.Equal(t, [3]int{20, 64, 12}, out.Waypoints[len(out.Waypoints)-1])
	assert.GreaterOrEqual(t, out.Length, len(out.Waypoints))
}

func TestFindPathToolBadChain(t *testing.T) {
	cs, _ := connect(t)
	_, res := call[FindPathResult](t, cs, "find_path", map[string]any{
		"from":  []int{2, 64, 2},
		"to":    []int{4, 64, 4},
		"chain": "teleport",
	})
	assert.True(t, res.IsError)
}

func TestHierarchicalAndSetBlockTools(t *testing.T) {
	cs, w := connect(t)

	out, res := call[FindHierarchicalPathResult](t, cs, "find_hierarchical_path", map[string]any{
		"from": []int{2, 64, 2},
		"to":   []int{60, 64, 60},
	})
	require.False(t, res.IsError)
	require.True(t, out.Found)
	assert.Equal(t, 2, out.Level)
	assert.Equal(t, [3]int{60, 64, 60}, out.Blocks[len(out.Blocks)-1])

	stats, res := call[hpa.Stats](t, cs, "graph_stats", map[string]any{})
	require.False(t, res.IsError)
	assert.Equal(t, 4, stats.Regions)

	set, res := call[SetBlockResult](t, cs, "set_block", map[string]any{
		"pos":      []int{10, 64, 10},
		"material": "stone",
	})
	require.False(t, res.IsError)
	assert.True(t, set.Dirty)
	assert.Equal(t, world.Stone, w.Material(10, 64, 10))

	_, res = call[SetBlockResult](t, cs, "set_block", map[string]any{
		"pos":      []int{10, 64, 10},
		"material": "cheese",
	})
	assert.True(t, res.IsError)
}
