package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

func NewMCPServer(service *Service) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    "voxpath",
		Version: Version,
	}, nil)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "find_path",
		Description: "Find a walking route between two blocks of the world. Returns the simplified waypoints.",
	}, service.FindPath)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "find_hierarchical_path",
		Description: "Find a long-range route through the hierarchical graph, loading graph regions between the endpoints as needed.",
	}, service.FindHierarchicalPath)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "set_block",
		Description: "Change one block of the world. Cached chunks and graph regions around it are refreshed.",
	}, service.SetBlock)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "graph_stats",
		Description: "Summarize the hierarchical graph: loaded regions, dirty regions and per-level counts.",
	}, service.GraphStats)

	return s
}
