// Package plan holds computed paths and the pull-based cursors agents use to
// walk them one waypoint at a time.
package plan

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sanonone/voxpath/pkg/world"
)

// DefaultTolerance is the perpendicular deviation, in blocks, below which an
// intermediate point is considered colinear and dropped.
const DefaultTolerance = 0.1

// Callback is a movement side effect attached to a waypoint. It runs when a
// cursor reaches the waypoint, never during search.
type Callback func()

// Waypoint is one point of a simplified path.
type Waypoint struct {
	Pos       world.BlockPos
	Callbacks []Callback
}

// Path is an immutable, ordered sequence of waypoints together with the full
// contiguous block list it was simplified from.
type Path struct {
	waypoints []Waypoint
	blocks    []world.BlockPos
	cost      float64
}

// NewPath builds a path from a contiguous block list. callbacks maps an index
// of blocks to the callbacks of that cell; those cells always survive
// simplification, as do the first and last blocks.
func NewPath(blocks []world.BlockPos, callbacks map[int][]Callback, cost, tolerance float64) *Path {
	if len(blocks) == 0 {
		return FailedPath()
	}
	keep := Simplify(blocks, tolerance, func(i int) bool { return len(callbacks[i]) > 0 })
	wps := make([]Waypoint, 0, len(keep))
	for _, i := range keep {
		wps = append(wps, Waypoint{Pos: blocks[i], Callbacks: callbacks[i]})
	}
	return &Path{
		waypoints: wps,
		blocks:    slices.Clone(blocks),
		cost:      cost,
	}
}

// Straight is the two-waypoint path from a to b. Its blocks are the 3D line
// between them, so it stays contiguous.
func Straight(a, b world.BlockPos) *Path {
	wps := []Waypoint{{Pos: a}}
	if a != b {
		wps = append(wps, Waypoint{Pos: b})
	}
	return &Path{waypoints: wps, blocks: Line(a, b), cost: a.Distance(b)}
}

// FailedPath is the result of a search that found nothing: no waypoints and an
// infinite cost.
func FailedPath() *Path {
	return &Path{cost: math.Inf(1)}
}

// Failed reports whether p is the result of a failed search.
func (p *Path) Failed() bool { return len(p.waypoints) == 0 }

// Cost returns the search cost of the path.
func (p *Path) Cost() float64 { return p.cost }

// Len returns the number of waypoints.
func (p *Path) Len() int { return len(p.waypoints) }

// Waypoints returns a copy of the simplified waypoint list.
func (p *Path) Waypoints() []Waypoint { return slices.Clone(p.waypoints) }

// Positions returns the waypoint coordinates.
func (p *Path) Positions() []world.BlockPos {
	out := make([]world.BlockPos, len(p.waypoints))
	for i, w := range p.waypoints {
		out[i] = w.Pos
	}
	return out
}

// Blocks returns a copy of the full contiguous block list.
func (p *Path) Blocks() []world.BlockPos { return slices.Clone(p.blocks) }

// Start returns the first waypoint. ok is false for a failed path.
func (p *Path) Start() (pos world.BlockPos, ok bool) {
	if p.Failed() {
		return world.BlockPos{}, false
	}
	return p.waypoints[0].Pos, true
}

// Goal returns the last waypoint. ok is false for a failed path.
func (p *Path) Goal() (pos world.BlockPos, ok bool) {
	if p.Failed() {
		return world.BlockPos{}, false
	}
	return p.waypoints[len(p.waypoints)-1].Pos, true
}

// Cursor returns a fresh cursor positioned on the first waypoint.
func (p *Path) Cursor() *Cursor { return NewCursor(p) }

// Line rasterizes the segment a-b into blocks whose consecutive per-axis
// deltas are at most 1.
func Line(a, b world.BlockPos) []world.BlockPos {
	n := a.ChebyshevDistance(b)
	out := make([]world.BlockPos, 0, n+1)
	out = append(out, a)
	for i := 1; i < n; i++ {
		t := float64(i) / float64(n)
		out = append(out, world.BlockPos{
			X: a.X + int(math.Round(t*float64(b.X-a.X))),
			Y: a.Y + int(math.Round(t*float64(b.Y-a.Y))),
			Z: a.Z + int(math.Round(t*float64(b.Z-a.Z))),
		})
	}
	if n > 0 {
		out = append(out, b)
	}
	return out
}

// SegmentDistance is the distance from p to the segment a-b.
func SegmentDistance(p, a, b r3.Vec) float64 {
	ab := r3.Sub(b, a)
	den := r3.Dot(ab, ab)
	if den == 0 {
		return r3.Norm(r3.Sub(p, a))
	}
	t := r3.Dot(r3.Sub(p, a), ab) / den
	t = math.Max(0, math.Min(1, t))
	return r3.Norm(r3.Sub(p, r3.Add(a, r3.Scale(t, ab))))
}
