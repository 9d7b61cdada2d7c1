package server

import (
	"context"

	"github.com/sanonone/voxpath/pkg/hpa"
	"github.com/sanonone/voxpath/pkg/plan"
	"github.com/sanonone/voxpath/pkg/traverse"
	"github.com/sanonone/voxpath/pkg/world"
)

// Point is a block position on the wire, as [x, y, z].
type Point [3]int

func (p Point) Pos() world.BlockPos { return world.Pos(p[0], p[1], p[2]) }

func pointOf(p world.BlockPos) Point { return Point{p.X, p.Y, p.Z} }

func pointsOf(ps []world.BlockPos) []Point {
	out := make([]Point, len(ps))
	for i, p := range ps {
		out[i] = pointOf(p)
	}
	return out
}

// PathRequest defines the body of grid path searches.
type PathRequest struct {
	From Point `json:"from"`
	To   Point `json:"to"`
	// Radius of the prefetched area around each endpoint. Zero means the
	// configured default.
	Radius int `json:"radius,omitempty"`
	// Chain overrides the configured traversability chain.
	Chain string `json:"chain,omitempty"`
	// Margin overrides the configured arrival margin.
	Margin *float64 `json:"margin,omitempty"`
	// Actions asks for a dry run of the path that reports the movement
	// actions an agent would perform along it.
	Actions bool `json:"actions,omitempty"`
}

// ActionView is one movement action of a dry run.
type ActionView struct {
	Action traverse.Action `json:"action"`
	At     Point           `json:"at"`
}

// PathResponse is the result of a grid search.
type PathResponse struct {
	Found     bool         `json:"found"`
	Cost      float64      `json:"cost,omitempty"`
	Waypoints []Point      `json:"waypoints"`
	Blocks    []Point      `json:"blocks,omitempty"`
	Actions   []ActionView `json:"actions,omitempty"`
}

func pathResponse(p *plan.Path, rec *traverse.Recorder) PathResponse {
	if p.Failed() {
		return PathResponse{Waypoints: []Point{}}
	}
	resp := PathResponse{
		Found:     true,
		Cost:      p.Cost(),
		Waypoints: pointsOf(p.Positions()),
		Blocks:    pointsOf(p.Blocks()),
	}
	if rec != nil {
		for c := p.Cursor(); !c.IsComplete(); {
			c.Update()
		}
		for _, ev := range rec.Events() {
			resp.Actions = append(resp.Actions, ActionView{Action: ev.Action, At: pointOf(ev.At)})
		}
	}
	return resp
}

// HierarchicalRequest defines the body of hierarchical searches.
type HierarchicalRequest struct {
	From   Point `json:"from"`
	To     Point `json:"to"`
	Radius int   `json:"radius,omitempty"`
}

// HierarchicalResponse is the result of a hierarchical search. Blocks is the
// fully refined route.
type HierarchicalResponse struct {
	Found    bool    `json:"found"`
	Cost     float64 `json:"cost,omitempty"`
	Level    int     `json:"level"`
	Nodes    []Point `json:"nodes"`
	Segments int     `json:"segments"`
	Blocks   []Point `json:"blocks,omitempty"`
	Error    string  `json:"error,omitempty"`
}

func hierarchicalResponse(ctx context.Context, res hpa.Result) HierarchicalResponse {
	if !res.Found() {
		return HierarchicalResponse{Level: res.Level, Nodes: []Point{}}
	}
	resp := HierarchicalResponse{
		Found:    true,
		Cost:     res.Cost,
		Level:    res.Level,
		Nodes:    pointsOf(res.Nodes),
		Segments: res.Plan.Segments(),
	}
	blocks, err := res.Plan.BlocksContext(ctx)
	resp.Blocks = pointsOf(blocks)
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// InvalidateRequest marks a loaded graph region dirty. With Apply set the
// rebuild runs before the response.
type InvalidateRequest struct {
	X     int  `json:"x"`
	Z     int  `json:"z"`
	Apply bool `json:"apply,omitempty"`
}

// InvalidateResponse reports what the invalidation did.
type InvalidateResponse struct {
	Loaded  bool            `json:"loaded"`
	Rebuilt bool            `json:"rebuilt"`
	Dirty   []hpa.RegionKey `json:"dirty"`
}

// SetBlockRequest changes one block of the world.
type SetBlockRequest struct {
	Pos      Point          `json:"pos"`
	Material world.Material `json:"material"`
}

// SetBlockResponse reports whether a loaded graph region became dirty.
type SetBlockResponse struct {
	Dirty bool `json:"dirty"`
}

// ClusterView is the wire form of an hpa.Cluster.
type ClusterView struct {
	ID     int32 `json:"id"`
	Level  int   `json:"level"`
	Origin Point `json:"origin"`
	Size   int   `json:"size"`
	Height int   `json:"height"`
	// Entrances is the number of border nodes.
	Entrances int `json:"entrances"`
}

// AsyncResponse is returned when an async task is accepted.
type AsyncResponse struct {
	TaskID string `json:"task_id"`
}
