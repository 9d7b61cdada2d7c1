// voxpath serves path searches over a voxel world.
//
// Usage:
//
//	voxpath serve -f voxpath.yaml          # HTTP API on the configured address
//	voxpath mcp                            # MCP tools over stdio
//	voxpath find --from 2,64,2 --to 40,64,9
//	voxpath find --hierarchical --from 2,64,2 --to 200,64,180
package main

import (
	"os"

	"github.com/sanonone/voxpath/cmd/voxpath/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
