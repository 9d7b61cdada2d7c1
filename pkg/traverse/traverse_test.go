package traverse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanonone/voxpath/pkg/world"
)

func vote(ps PassableState) Rule {
	return Rule{Name: "vote", Passable: func(*Env, world.BlockPos) PassableState { return ps }}
}

func stand(ss StandableState) Rule {
	return Rule{Name: "stand", Standable: func(*Env, world.BlockPos) StandableState { return ss }}
}

func cost(c float64) Rule {
	return Rule{Name: "cost", Cost: func(*Env, world.BlockPos) float64 { return c }}
}

func env(t *testing.T, rules ...Rule) *Env {
	t.Helper()
	c, err := NewChain(rules...)
	require.NoError(t, err)
	return c.Env(world.NewMemoryWorld("w", 0, 16))
}

func TestPassabilityIsOrCombined(t *testing.T) {
	p := world.Pos(0, 1, 0)

	assert.True(t, env(t, vote(Impassable), vote(Passable)).Passable(p))
	assert.True(t, env(t, vote(Passable), vote(Impassable)).Passable(p))
	assert.True(t, env(t, vote(PassIgnore), vote(Passable)).Passable(p))
	assert.False(t, env(t, vote(Impassable), vote(PassIgnore)).Passable(p))
}

func TestStandabilityFirstNonIgnoreWins(t *testing.T) {
	p := world.Pos(0, 1, 0)

	assert.True(t, env(t, stand(StandIgnore), stand(Standable), stand(NotStandable)).Standable(p))
	assert.False(t, env(t, stand(NotStandable), stand(Standable)).Standable(p))
}

func TestFailClosed(t *testing.T) {
	p := world.Pos(0, 1, 0)
	e := env(t, vote(PassIgnore), stand(StandIgnore), cost(1))
	assert.False(t, e.Passable(p))
	assert.False(t, e.Standable(p))
	assert.False(t, env(t).Passable(p))
}

func TestCostsAreSummed(t *testing.T) {
	e := env(t, cost(1), cost(2.5), vote(Passable))
	assert.Equal(t, 3.5, e.Cost(world.Pos(0, 1, 0)))
}

func TestSingleReplacementGenerator(t *testing.T) {
	gen := func(name string, mode NeighbourMode) Rule {
		return Rule{Name: name, Mode: mode, Neighbours: func(*Env, world.BlockPos, func(world.BlockPos)) {}}
	}
	_, err := NewChain(gen("a", NeighboursReplace), gen("b", NeighboursAppend), gen("c", NeighboursReplace))
	require.ErrorIs(t, err, ErrMultipleGenerators)

	_, err = NewChain(gen("a", NeighboursReplace), gen("b", NeighboursAppend), gen("c", NeighboursAppend))
	require.NoError(t, err)
}

func TestNeighbourComposition(t *testing.T) {
	origin := world.Pos(0, 1, 0)
	def := func(from world.BlockPos, yield func(world.BlockPos)) { yield(from.Add(1, 0, 0)) }
	extra := Rule{Name: "extra", Mode: NeighboursAppend, Neighbours: func(_ *Env, from world.BlockPos, yield func(world.BlockPos)) {
		yield(from.Add(0, 5, 0))
	}}
	replace := Rule{Name: "replace", Mode: NeighboursReplace, Neighbours: func(_ *Env, from world.BlockPos, yield func(world.BlockPos)) {
		yield(from.Add(-1, 0, 0))
	}}

	collect := func(e *Env) []world.BlockPos {
		var out []world.BlockPos
		e.Neighbours(origin, def, func(p world.BlockPos) { out = append(out, p) })
		return out
	}
	assert.Equal(t, []world.BlockPos{world.Pos(1, 1, 0), world.Pos(0, 6, 0)}, collect(env(t, extra)))
	assert.Equal(t, []world.BlockPos{world.Pos(-1, 1, 0), world.Pos(0, 6, 0)}, collect(env(t, extra, replace)))
}

// testWorld is a 16x16 stone floor at y=0 with a few features on top.
func testWorld(t *testing.T) *world.MemoryWorld {
	t.Helper()
	w := world.NewMemoryWorld("w", 0, 32)
	w.Fill(world.Pos(0, 0, 0), world.Pos(15, 0, 15), world.Stone)
	require.NoError(t, w.SetBlock(world.Pos(5, 1, 5), world.Stone))      // step
	require.NoError(t, w.SetBlock(world.Pos(8, 1, 8), world.DoorClosed)) // door
	require.NoError(t, w.SetBlock(world.Pos(8, 2, 8), world.DoorClosed))
	require.NoError(t, w.SetBlock(world.Pos(3, 0, 10), world.Water)) // pool
	require.NoError(t, w.SetBlock(world.Pos(3, 1, 10), world.Water))
	require.NoError(t, w.SetBlock(world.Pos(12, 1, 3), world.Lava))
	for y := 1; y <= 4; y++ {
		require.NoError(t, w.SetBlock(world.Pos(0, y, 0), world.Ladder))
	}
	return w
}

func TestDefaultChainOnTerrain(t *testing.T) {
	w := testWorld(t)
	e := DefaultChain().Env(w)

	assert.True(t, e.Passable(world.Pos(1, 1, 1)), "floor")
	assert.False(t, e.Passable(world.Pos(1, 2, 1)), "mid-air")
	assert.False(t, e.Passable(world.Pos(5, 1, 5)), "inside a block")
	assert.True(t, e.Passable(world.Pos(5, 2, 5)), "on the step")
	assert.Equal(t, ActionJump, e.Action(world.Pos(4, 1, 5), world.Pos(5, 2, 5)))

	assert.True(t, e.Passable(world.Pos(8, 1, 8)), "door")
	assert.Equal(t, DoorCost, e.Cost(world.Pos(8, 1, 8)))
	assert.Equal(t, ActionOpenDoor, e.Action(world.Pos(7, 1, 8), world.Pos(8, 1, 8)))

	assert.True(t, e.Passable(world.Pos(3, 1, 10)), "swim")
	assert.Equal(t, ActionSwim, e.Action(world.Pos(2, 1, 10), world.Pos(3, 1, 10)))
	assert.False(t, WalkChain().Env(w).Passable(world.Pos(3, 1, 10)), "walkers avoid water")

	assert.True(t, e.Passable(world.Pos(0, 3, 0)), "ladder")
	assert.Equal(t, ActionClimb, e.Action(world.Pos(0, 2, 0), world.Pos(0, 3, 0)))

	assert.Equal(t, LavaPenalty, e.Cost(world.Pos(11, 1, 3)))
	assert.False(t, e.Passable(world.Pos(12, 1, 3)), "in lava")
}

func TestUnknownIsImpassable(t *testing.T) {
	view := world.NewSnapshotView(0, 32)
	for _, c := range []*Chain{DefaultChain(), WalkChain(), FlyChain()} {
		e := c.Env(view)
		assert.False(t, e.Passable(world.Pos(1, 1, 1)), c.String())
	}
}

func TestFallRuleAppendsLandings(t *testing.T) {
	w := world.NewMemoryWorld("w", 0, 32)
	w.Fill(world.Pos(0, 0, 0), world.Pos(4, 0, 4), world.Stone) // low ground
	w.Fill(world.Pos(0, 1, 0), world.Pos(1, 3, 4), world.Stone) // ledge top at y=3
	e := DefaultChain().Env(w)

	from := world.Pos(1, 4, 2)
	require.True(t, e.Passable(from))
	var got []world.BlockPos
	e.Neighbours(from, nil, func(p world.BlockPos) { got = append(got, p) })
	assert.Equal(t, []world.BlockPos{world.Pos(2, 1, 2)}, got)
	assert.Equal(t, ActionFall, e.Action(from, world.Pos(2, 1, 2)))

	var none []world.BlockPos
	c := MustChain(FallRule(2), WalkRule())
	c.Env(w).Neighbours(from, nil, func(p world.BlockPos) { none = append(none, p) })
	assert.Empty(t, none, "drop deeper than the limit")
}

func TestFlyChainHovers(t *testing.T) {
	w := testWorld(t)
	e := FlyChain().Env(w)
	assert.True(t, e.Passable(world.Pos(4, 10, 4)))
	assert.True(t, e.Chain().HasGenerator())
	assert.True(t, e.Chain().NeedsVertical())
	assert.False(t, WalkChain().NeedsVertical())

	n := 0
	e.Neighbours(world.Pos(4, 10, 4), nil, func(world.BlockPos) { n++ })
	assert.Equal(t, 26, n)
}

func TestNeedsVerticalFollowsRuleFlag(t *testing.T) {
	rope := Rule{
		Name:     "rope",
		Vertical: true,
		Standable: func(env *Env, p world.BlockPos) StandableState {
			return StandIgnore
		},
	}
	assert.True(t, MustChain(rope, WalkRule()).NeedsVertical())

	renamed := ClimbRule()
	renamed.Name = "ladders"
	assert.True(t, MustChain(renamed, WalkRule()).NeedsVertical())

	mislabelled := WalkRule()
	mislabelled.Name = "climb"
	assert.False(t, MustChain(mislabelled).NeedsVertical())
}

func TestChainByName(t *testing.T) {
	for _, name := range []string{"", "default", "walk", "fly"} {
		c, err := ChainByName(name)
		require.NoError(t, err)
		assert.NotEmpty(t, c.Names())
	}
	_, err := ChainByName("teleport")
	assert.Error(t, err)
}

func TestRecorder(t *testing.T) {
	var r Recorder
	var m Mover = &r
	m.Perform(ActionJump, world.Pos(1, 2, 3))
	assert.Equal(t, []ActionEvent{{Action: ActionJump, At: world.Pos(1, 2, 3)}}, r.Events())
	assert.Equal(t, "open_door", ActionOpenDoor.String())
}
