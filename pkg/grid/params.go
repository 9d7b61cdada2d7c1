// Package grid runs block-level A* over a voxel world using a traversability
// chain to decide where an agent can go.
package grid

import (
	"github.com/sanonone/voxpath/pkg/plan"
	"github.com/sanonone/voxpath/pkg/search"
	"github.com/sanonone/voxpath/pkg/traverse"
	"github.com/sanonone/voxpath/pkg/world"
)

// Connectivity selects the default neighbour set.
type Connectivity int

const (
	TwentySix Connectivity = 26
	Six       Connectivity = 6
)

// Bounds is an inclusive box that confines a search.
type Bounds struct {
	Min, Max world.BlockPos
}

// NewBounds returns the box spanned by a and b in any corner order.
func NewBounds(a, b world.BlockPos) Bounds {
	return Bounds{
		Min: world.Pos(min(a.X, b.X), min(a.Y, b.Y), min(a.Z, b.Z)),
		Max: world.Pos(max(a.X, b.X), max(a.Y, b.Y), max(a.Z, b.Z)),
	}
}

// Contains reports whether p lies inside the box.
func (b Bounds) Contains(p world.BlockPos) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Params tunes a grid search.
type Params struct {
	// Chain decides passability and cost. Nil means traverse.DefaultChain.
	Chain *traverse.Chain
	// Connectivity of the default generator. Zero means TwentySix.
	Connectivity Connectivity
	// Margin is how close to the goal, in blocks, counts as arrival.
	Margin float64
	// SpeedModifier divides every step cost. Zero means 1.
	SpeedModifier float64
	// Mover receives movement actions when a cursor reaches their waypoint.
	Mover traverse.Mover
	// Bounds, when set, confines the search to a box.
	Bounds *Bounds
	// Tolerance for path simplification. Zero means plan.DefaultTolerance.
	Tolerance float64
	// Search options passed to the kernel.
	Search []search.Option
}

// DefaultParams returns parameters for a ground agent arriving exactly at the goal.
func DefaultParams() Params {
	return Params{
		Chain:         traverse.DefaultChain(),
		Connectivity:  TwentySix,
		SpeedModifier: 1,
		Tolerance:     plan.DefaultTolerance,
	}
}

func (p Params) withDefaults() Params {
	if p.Chain == nil {
		p.Chain = traverse.DefaultChain()
	}
	if p.Connectivity != Six {
		p.Connectivity = TwentySix
	}
	if p.SpeedModifier <= 0 {
		p.SpeedModifier = 1
	}
	if p.Tolerance <= 0 {
		p.Tolerance = plan.DefaultTolerance
	}
	if p.Margin < 0 {
		p.Margin = 0
	}
	return p
}
