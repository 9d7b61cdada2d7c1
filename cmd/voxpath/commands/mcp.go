package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	voxmcp "github.com/sanonone/voxpath/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve pathfinding tools over MCP on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		setupLogger(cfg.Log)

		rt, err := startRuntime(cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		params, err := cfg.Search.Params()
		if err != nil {
			return err
		}
		graph, err := rt.engine.NewGraph(params.Chain)
		if err != nil {
			return err
		}
		service := voxmcp.NewService(rt.engine, graph, rt.writer, params, cfg.Search.PrefetchRadius)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return voxmcp.NewMCPServer(service).Run(ctx, &mcp.StdioTransport{})
	},
}
