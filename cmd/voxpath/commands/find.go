package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sanonone/voxpath/pkg/world"
)

var (
	findFrom         string
	findTo           string
	findRadius       int
	findHierarchical bool
	findTimeout      time.Duration
)

type findOutput struct {
	Found    bool             `json:"found"`
	Cost     float64          `json:"cost,omitempty"`
	Level    *int             `json:"level,omitempty"`
	Nodes    []world.BlockPos `json:"nodes,omitempty"`
	Blocks   []world.BlockPos `json:"blocks"`
	Duration string           `json:"duration"`
}

var findCmd = &cobra.Command{
	Use:   "find",
	Short: "Run one search and print the route as JSON",
	Example: `  voxpath find --from 2,64,2 --to 40,64,9
  voxpath find -f world.yaml --hierarchical --from 2,64,2 --to 200,64,180`,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parsePos(findFrom)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		to, err := parsePos(findTo)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		setupLogger(cfg.Log)
		params, err := cfg.Search.Params()
		if err != nil {
			return err
		}
		radius := cfg.Search.PrefetchRadius
		if findRadius > 0 {
			radius = findRadius
		}

		rt, err := startRuntime(cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), findTimeout)
		defer cancel()

		start := time.Now()
		var out findOutput
		if findHierarchical {
			graph, err := rt.engine.NewGraph(params.Chain)
			if err != nil {
				return err
			}
			res, err := rt.engine.FindHierarchicalAsync(ctx, graph, from, to, radius).Get(ctx)
			if err != nil {
				return err
			}
			level := res.Level
			out = findOutput{Found: res.Found(), Cost: res.Cost, Level: &level, Nodes: res.Nodes, Blocks: []world.BlockPos{}}
			if res.Found() {
				if out.Blocks, err = res.Plan.BlocksContext(ctx); err != nil {
					return fmt.Errorf("refine path: %w", err)
				}
			} else {
				out.Cost = 0
			}
		} else {
			p, err := rt.engine.FindPathAsync(ctx, from, to, radius, params).Get(ctx)
			if err != nil {
				return err
			}
			out = findOutput{Found: !p.Failed(), Blocks: p.Blocks()}
			if out.Found {
				out.Cost = p.Cost()
			}
		}
		out.Duration = time.Since(start).String()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
		if !out.Found {
			printErr("no path from %s to %s", from, to)
		}
		return nil
	},
}

func init() {
	findCmd.Flags().StringVar(&findFrom, "from", "", "start block as x,y,z (required)")
	findCmd.Flags().StringVar(&findTo, "to", "", "goal block as x,y,z (required)")
	findCmd.Flags().IntVar(&findRadius, "radius", 0, "prefetch radius in blocks (default: search.prefetch_radius)")
	findCmd.Flags().BoolVar(&findHierarchical, "hierarchical", false, "search the cluster graph instead of the raw grid")
	findCmd.Flags().DurationVar(&findTimeout, "timeout", 30*time.Second, "give up after this long")
	_ = findCmd.MarkFlagRequired("from")
	_ = findCmd.MarkFlagRequired("to")
}

// parsePos reads "x,y,z".
func parsePos(s string) (world.BlockPos, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return world.BlockPos{}, fmt.Errorf("want x,y,z, got %q", s)
	}
	var v [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return world.BlockPos{}, fmt.Errorf("coordinate %d of %q: %w", i, s, err)
		}
		v[i] = n
	}
	return world.Pos(v[0], v[1], v[2]), nil
}
