package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sanonone/voxpath/pkg/engine"
	"github.com/sanonone/voxpath/pkg/grid"
	"github.com/sanonone/voxpath/pkg/hpa"
	"github.com/sanonone/voxpath/pkg/traverse"
	"github.com/sanonone/voxpath/pkg/world"
)

var errReadOnly = errors.New("world is read-only")

type Service struct {
	engine *engine.Engine
	graph  *hpa.Graph
	world  engine.BlockWriter
	params grid.Params
	radius int
}

// NewService binds the tools to an engine and its graph. w may be nil, which
// disables set_block.
func NewService(eng *engine.Engine, graph *hpa.Graph, w engine.BlockWriter, params grid.Params, radius int) *Service {
	return &Service{
		engine: eng,
		graph:  graph,
		world:  w,
		params: params,
		radius: radius,
	}
}

func toPos(p [3]int) world.BlockPos { return world.Pos(p[0], p[1], p[2]) }

func toPoints(ps []world.BlockPos) [][3]int {
	out := make([][3]int, len(ps))
	for i, p := range ps {
		out[i] = [3]int{p.X, p.Y, p.Z}
	}
	return out
}

func (s *Service) radiusOr(r int) int {
	if r <= 0 {
		return s.radius
	}
	return r
}

// --- Tool Handlers ---

func (s *Service) FindPath(ctx context.Context, req *mcp.CallToolRequest, args FindPathArgs) (*mcp.CallToolResult, FindPathResult, error) {
	params := s.params
	if args.Chain != "" {
		chain, err := traverse.ChainByName(args.Chain)
		if err != nil {
			return nil, FindPathResult{}, err
		}
		params.Chain = chain
	}

	p, err := s.engine.FindPathAsync(ctx, toPos(args.From), toPos(args.To), s.radiusOr(args.Radius), params).Get(ctx)
	if err != nil {
		return nil, FindPathResult{}, fmt.Errorf("find path: %w", err)
	}
	if p.Failed() {
		return nil, FindPathResult{Waypoints: [][3]int{}}, nil
	}
	return nil, FindPathResult{
		Found:     true,
		Cost:      p.Cost(),
		Waypoints: toPoints(p.Positions()),
		Length:    len(p.Blocks()),
	}, nil
}

func (s *Service) FindHierarchicalPath(ctx context.Context, req *mcp.CallToolRequest, args FindHierarchicalPathArgs) (*mcp.CallToolResult, FindHierarchicalPathResult, error) {
	res, err := s.engine.FindHierarchicalAsync(ctx, s.graph, toPos(args.From), toPos(args.To), s.radiusOr(args.Radius)).Get(ctx)
	if err != nil {
		return nil, FindHierarchicalPathResult{}, fmt.Errorf("find hierarchical path: %w", err)
	}
	if !res.Found() {
		return nil, FindHierarchicalPathResult{Level: res.Level, Nodes: [][3]int{}, Blocks: [][3]int{}}, nil
	}

	blocks, err := res.Plan.BlocksContext(ctx)
	if err != nil {
		return nil, FindHierarchicalPathResult{}, fmt.Errorf("refine path: %w", err)
	}
	return nil, FindHierarchicalPathResult{
		Found:  true,
		Cost:   res.Cost,
		Level:  res.Level,
		Nodes:  toPoints(res.Nodes),
		Blocks: toPoints(blocks),
	}, nil
}

func (s *Service) SetBlock(ctx context.Context, req *mcp.CallToolRequest, args SetBlockArgs) (*mcp.CallToolResult, SetBlockResult, error) {
	if s.world == nil {
		return nil, SetBlockResult{}, errReadOnly
	}
	m, err := world.ParseMaterial(args.Material)
	if err != nil {
		return nil, SetBlockResult{}, err
	}
	dirty, err := s.engine.SetBlock(ctx, s.world, toPos(args.Pos), m, s.graph)
	if err != nil {
		return nil, SetBlockResult{}, err
	}
	return nil, SetBlockResult{Dirty: dirty}, nil
}

func (s *Service) GraphStats(ctx context.Context, req *mcp.CallToolRequest, args GraphStatsArgs) (*mcp.CallToolResult, hpa.Stats, error) {
	return nil, s.graph.Stats(), nil
}
