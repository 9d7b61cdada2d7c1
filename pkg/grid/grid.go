package grid

import (
	"context"
	"fmt"
	"math"

	"github.com/sanonone/voxpath/pkg/plan"
	"github.com/sanonone/voxpath/pkg/search"
	"github.com/sanonone/voxpath/pkg/traverse"
	"github.com/sanonone/voxpath/pkg/world"
)

type offset struct{ dx, dy, dz int }

var (
	sixOffsets = []offset{
		{1, 0, 0}, {-1, 0, 0}, {0, 0, 1}, {0, 0, -1}, {0, 1, 0}, {0, -1, 0},
	}
	twentySixOffsets = func() []offset {
		out := make([]offset, 0, 26)
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				for dz := -1; dz <= 1; dz++ {
					if dx|dy|dz != 0 {
						out = append(out, offset{dx, dy, dz})
					}
				}
			}
		}
		return out
	}()
)

// problem adapts a grid query to the search kernel. Keys are packed positions.
type problem struct {
	env     *traverse.Env
	goal    world.BlockPos
	params  Params
	offsets []offset
}

func newProblem(src world.BlockSource, goal world.BlockPos, params Params) *problem {
	offsets := twentySixOffsets
	if params.Connectivity == Six {
		offsets = sixOffsets
	}
	return &problem{
		env:     params.Chain.Env(src),
		goal:    goal,
		params:  params,
		offsets: offsets,
	}
}

func (p *problem) solid(pos world.BlockPos) bool {
	return p.env.Material(pos).Collides()
}

// defaultNeighbours yields the 6- or 26-neighbourhood. Diagonal moves may not
// cut wall corners and stepping up needs headroom above the agent.
func (p *problem) defaultNeighbours(from world.BlockPos, yield func(world.BlockPos)) {
	for _, o := range p.offsets {
		if o.dx != 0 && o.dz != 0 {
			y := max(o.dy, 0)
			if p.solid(from.Add(o.dx, y, 0)) || p.solid(from.Add(o.dx, y+1, 0)) ||
				p.solid(from.Add(0, y, o.dz)) || p.solid(from.Add(0, y+1, o.dz)) {
				continue
			}
		}
		if o.dy > 0 && (o.dx != 0 || o.dz != 0) && p.solid(from.Add(0, 2, 0)) {
			continue
		}
		yield(from.Add(o.dx, o.dy, o.dz))
	}
}

func (p *problem) Neighbors(k int64, yield func(int64, float64)) {
	from := world.Unpack(k)
	p.env.Neighbours(from, p.defaultNeighbours, func(n world.BlockPos) {
		if !n.InPackRange() || !world.InYBounds(p.env.Blocks, n.Y) {
			return
		}
		if p.params.Bounds != nil && !p.params.Bounds.Contains(n) {
			return
		}
		if !p.env.Passable(n) {
			return
		}
		cost := (from.Distance(n) + p.env.Cost(n)) / p.params.SpeedModifier
		yield(n.Pack(), cost)
	})
}

func (p *problem) Heuristic(k int64) float64 {
	return world.Unpack(k).Distance(p.goal) / p.params.SpeedModifier
}

func (p *problem) IsGoal(k int64) bool {
	return world.Unpack(k).Distance(p.goal) <= p.params.Margin
}

// runSearch runs one query and returns the kernel result alongside the
// problem that produced it.
func runSearch(ctx context.Context, src world.BlockSource, from, to world.BlockPos, params Params) (*problem, search.Result[int64], error) {
	for _, pos := range []world.BlockPos{from, to} {
		if _, err := pos.PackChecked(); err != nil {
			return nil, search.Result[int64]{}, err
		}
	}
	params = params.withDefaults()
	prob := newProblem(src, to, params)

	// Exact arrival at a cell nobody can occupy cannot succeed.
	if params.Margin == 0 && !prob.env.Passable(to) && from != to {
		return prob, search.Result[int64]{Cost: math.Inf(1)}, nil
	}
	res, err := search.RunFully[int64](ctx, prob, from.Pack(), params.Search...)
	return prob, res, err
}

// RunFully searches from -> to on the calling goroutine. A goal that cannot be
// reached yields a failed path and a nil error.
func RunFully(ctx context.Context, src world.BlockSource, from, to world.BlockPos, params Params) (*plan.Path, error) {
	prob, res, err := runSearch(ctx, src, from, to, params)
	if err != nil {
		return plan.FailedPath(), fmt.Errorf("grid search %s -> %s: %w", from, to, err)
	}
	if !res.Found {
		return plan.FailedPath(), nil
	}
	return prob.buildPath(res), nil
}

// FindLocal is RunFully confined to bounds.
func FindLocal(ctx context.Context, src world.BlockSource, from, to world.BlockPos, bounds Bounds, params Params) (*plan.Path, error) {
	params.Bounds = &bounds
	return RunFully(ctx, src, from, to, params)
}

// buildPath expands the node chain into contiguous blocks and attaches the
// chain's movement actions as waypoint callbacks.
func (p *problem) buildPath(res search.Result[int64]) *plan.Path {
	blocks := make([]world.BlockPos, 0, len(res.Path))
	callbacks := map[int][]plan.Callback{}
	var prev world.BlockPos
	for i, k := range res.Path {
		cur := world.Unpack(k)
		if i == 0 {
			blocks = append(blocks, cur)
			prev = cur
			continue
		}
		blocks = append(blocks, bridge(prev, cur)...)
		if a := p.env.Action(prev, cur); a != traverse.ActionNone && p.params.Mover != nil {
			mover, at := p.params.Mover, cur
			callbacks[len(blocks)-1] = []plan.Callback{func() { mover.Perform(a, at) }}
		}
		prev = cur
	}
	return plan.NewPath(blocks, callbacks, res.Cost, p.params.Tolerance)
}

// bridge returns the cells after a up to and including b, so that consecutive
// blocks never differ by more than one on any axis. Drops step across first
// and then fall straight down.
func bridge(a, b world.BlockPos) []world.BlockPos {
	if a.ChebyshevDistance(b) <= 1 {
		return []world.BlockPos{b}
	}
	dx, dz := b.X-a.X, b.Z-a.Z
	if dx >= -1 && dx <= 1 && dz >= -1 && dz <= 1 && b.Y < a.Y {
		out := make([]world.BlockPos, 0, a.Y-b.Y+1)
		out = append(out, a.Add(dx, 0, dz))
		for y := a.Y - 1; y >= b.Y; y-- {
			out = append(out, world.Pos(b.X, y, b.Z))
		}
		return out
	}
	return plan.Line(a, b)[1:]
}
