package traverse

import (
	"fmt"

	"github.com/sanonone/voxpath/pkg/world"
)

// Costs added by the default rules.
const (
	SwimCost    = 2.0
	ClimbCost   = 0.5
	DoorCost    = 1.0
	DefaultDrop = 3
	LavaPenalty = 8.0
)

var horizontal = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

// WalkRule lets an agent two blocks tall stand on solid ground. Stepping up
// one block is a jump.
func WalkRule() Rule {
	return Rule{
		Name: "walk",
		Passable: func(env *Env, p world.BlockPos) PassableState {
			if env.Clear(p) && env.Clear(p.Up()) && env.Standable(p) {
				return Passable
			}
			return Impassable
		},
		Standable: func(env *Env, p world.BlockPos) StandableState {
			below := env.Material(p.Down())
			if below == world.Unknown || !below.Collides() || below.CollisionHeight() > 1 {
				return NotStandable
			}
			return Standable
		},
		Action: func(env *Env, from, to world.BlockPos) Action {
			if to.Y > from.Y {
				return ActionJump
			}
			return ActionNone
		},
	}
}

// LiquidRule makes water passable when swim is set. Lava is never passable.
func LiquidRule(swim bool) Rule {
	isWater := func(env *Env, p world.BlockPos) bool { return env.Material(p) == world.Water }
	return Rule{
		Name: "liquid",
		Passable: func(env *Env, p world.BlockPos) PassableState {
			if !isWater(env, p) {
				return PassIgnore
			}
			head := env.Material(p.Up())
			if swim && !head.Collides() && head != world.Lava {
				return Passable
			}
			return Impassable
		},
		Standable: func(env *Env, p world.BlockPos) StandableState {
			if !isWater(env, p) {
				return StandIgnore
			}
			if swim {
				return Standable
			}
			return NotStandable
		},
		Cost: func(env *Env, p world.BlockPos) float64 {
			if isWater(env, p) {
				return SwimCost
			}
			return 0
		},
		Action: func(env *Env, _, to world.BlockPos) Action {
			if isWater(env, to) {
				return ActionSwim
			}
			return ActionNone
		},
	}
}

// ClimbRule lets agents hold on to ladders and vines without ground below.
func ClimbRule() Rule {
	climbable := func(env *Env, p world.BlockPos) bool { return env.Material(p).Climbable() }
	return Rule{
		Name:     "climb",
		Vertical: true,
		Passable: func(env *Env, p world.BlockPos) PassableState {
			if climbable(env, p) && !env.Material(p.Up()).Collides() {
				return Passable
			}
			return PassIgnore
		},
		Standable: func(env *Env, p world.BlockPos) StandableState {
			if climbable(env, p) {
				return Standable
			}
			return StandIgnore
		},
		Cost: func(env *Env, p world.BlockPos) float64 {
			if climbable(env, p) {
				return ClimbCost
			}
			return 0
		},
		Action: func(env *Env, from, to world.BlockPos) Action {
			if from.Y != to.Y && (climbable(env, from) || climbable(env, to)) {
				return ActionClimb
			}
			return ActionNone
		},
	}
}

// DoorRule treats doors as passable. Entering a closed door opens it.
func DoorRule() Rule {
	return Rule{
		Name: "door",
		Passable: func(env *Env, p world.BlockPos) PassableState {
			if !env.Material(p).Door() {
				return PassIgnore
			}
			head := env.Material(p.Up())
			if (head.Door() || env.Clear(p.Up())) && env.Standable(p) {
				return Passable
			}
			return Impassable
		},
		Cost: func(env *Env, p world.BlockPos) float64 {
			if env.Material(p) == world.DoorClosed {
				return DoorCost
			}
			return 0
		},
		Action: func(env *Env, _, to world.BlockPos) Action {
			if env.Material(to) == world.DoorClosed {
				return ActionOpenDoor
			}
			return ActionNone
		},
	}
}

// FallRule appends drops of up to maxDrop blocks off ledges.
func FallRule(maxDrop int) Rule {
	return Rule{
		Name: fmt.Sprintf("fall(%d)", maxDrop),
		Mode: NeighboursAppend,
		Neighbours: func(env *Env, from world.BlockPos, yield func(world.BlockPos)) {
			if !env.Standable(from) {
				return
			}
			for _, d := range horizontal {
				edge := from.Add(d[0], 0, d[1])
				if !env.Clear(edge) || !env.Clear(edge.Up()) || env.Standable(edge) {
					continue
				}
				for k := 1; k <= maxDrop; k++ {
					c := edge.Add(0, -k, 0)
					if !env.Clear(c) {
						break
					}
					if env.Standable(c) {
						yield(c)
						break
					}
				}
			}
		},
		Action: func(_ *Env, from, to world.BlockPos) Action {
			if to.Y < from.Y-1 {
				return ActionFall
			}
			return ActionNone
		},
	}
}

// FlyRule replaces the default generator with a free 26-neighbourhood and
// lets agents hover in any clear cell.
func FlyRule() Rule {
	return Rule{
		Name: "fly",
		Mode: NeighboursReplace,
		Passable: func(env *Env, p world.BlockPos) PassableState {
			if env.Clear(p) {
				return Passable
			}
			return PassIgnore
		},
		Standable: func(env *Env, p world.BlockPos) StandableState {
			if env.Clear(p) {
				return Standable
			}
			return StandIgnore
		},
		Neighbours: func(env *Env, from world.BlockPos, yield func(world.BlockPos)) {
			for dx := -1; dx <= 1; dx++ {
				for dy := -1; dy <= 1; dy++ {
					for dz := -1; dz <= 1; dz++ {
						if dx|dy|dz == 0 {
							continue
						}
						yield(from.Add(dx, dy, dz))
					}
				}
			}
		},
	}
}

// PenaltyRule adds cost to cells next to (or above) mat.
func PenaltyRule(mat world.Material, cost float64) Rule {
	return Rule{
		Name: "penalty(" + mat.String() + ")",
		Cost: func(env *Env, p world.BlockPos) float64 {
			if env.Material(p.Down()) == mat {
				return cost
			}
			for _, d := range horizontal {
				if env.Material(p.Add(d[0], 0, d[1])) == mat {
					return cost
				}
			}
			return 0
		},
	}
}

// DefaultChain is the ground agent: swims, climbs, opens doors, drops up to
// three blocks and keeps away from lava.
func DefaultChain() *Chain {
	return MustChain(
		LiquidRule(true),
		ClimbRule(),
		DoorRule(),
		WalkRule(),
		FallRule(DefaultDrop),
		PenaltyRule(world.Lava, LavaPenalty),
	)
}

// WalkChain is a ground agent that avoids water.
func WalkChain() *Chain {
	return MustChain(LiquidRule(false), DoorRule(), WalkRule(), PenaltyRule(world.Lava, LavaPenalty))
}

// FlyChain is a flying agent.
func FlyChain() *Chain {
	return MustChain(FlyRule(), LiquidRule(true), PenaltyRule(world.Lava, LavaPenalty))
}

// ChainByName resolves a preset: "default", "walk" or "fly".
func ChainByName(name string) (*Chain, error) {
	switch name {
	case "", "default":
		return DefaultChain(), nil
	case "walk":
		return WalkChain(), nil
	case "fly":
		return FlyChain(), nil
	}
	return nil, fmt.Errorf("unknown movement chain %q", name)
}

// NeedsVertical reports whether the chain can move between cells that are not
// on walkable ground, so local searches must run in full 3D.
func (c *Chain) NeedsVertical() bool {
	if c.generator != nil {
		return true
	}
	for _, r := range c.rules {
		if r.Vertical {
			return true
		}
	}
	return false
}
