package plan

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanonone/voxpath/pkg/world"
)

func staircase() []world.BlockPos {
	var bs []world.BlockPos
	for i := 0; i <= 10; i++ {
		bs = append(bs, world.Pos(i, 64, 0))
	}
	for i := 1; i <= 5; i++ {
		bs = append(bs, world.Pos(10, 64, i))
	}
	return bs
}

func TestSimplifyKeepsEndpointsAndCorners(t *testing.T) {
	bs := staircase()
	p := NewPath(bs, nil, 15, DefaultTolerance)

	assert.Equal(t, []world.BlockPos{
		world.Pos(0, 64, 0), world.Pos(10, 64, 0), world.Pos(10, 64, 5),
	}, p.Positions())
	assert.Equal(t, bs, p.Blocks())
	assert.Equal(t, 15.0, p.Cost())
}

func TestSimplifyDroppedPointsWithinTolerance(t *testing.T) {
	// A shallow diagonal: every intermediate block is within ~0.5 of the chord.
	var bs []world.BlockPos
	for i := 0; i <= 20; i++ {
		bs = append(bs, world.Pos(i, 64, i/3))
	}
	for _, tol := range []float64{0.1, 0.5, 1, 2} {
		keep := Simplify(bs, tol, nil)
		require.Equal(t, 0, keep[0])
		require.Equal(t, len(bs)-1, keep[len(keep)-1])

		for k := 1; k < len(keep); k++ {
			a, b := bs[keep[k-1]].Vec(), bs[keep[k]].Vec()
			for i := keep[k-1] + 1; i < keep[k]; i++ {
				assert.LessOrEqual(t, SegmentDistance(bs[i].Vec(), a, b), tol, "tol %v point %d", tol, i)
			}
		}
	}
}

func TestSimplifyPinsCallbackWaypoints(t *testing.T) {
	bs := staircase()
	fired := 0
	p := NewPath(bs, map[int][]Callback{4: {func() { fired++ }}}, 15, DefaultTolerance)

	assert.Equal(t, []world.BlockPos{
		world.Pos(0, 64, 0), world.Pos(4, 64, 0), world.Pos(10, 64, 0), world.Pos(10, 64, 5),
	}, p.Positions())

	c := p.Cursor()
	for !c.IsComplete() {
		c.Update()
	}
	c.Update()
	assert.Equal(t, 1, fired)
}

func TestCursorWalk(t *testing.T) {
	p := NewPath(staircase(), nil, 15, DefaultTolerance)
	c := NewCursor(p)

	assert.False(t, c.IsComplete())
	assert.Equal(t, world.Pos(0, 64, 0), c.CurrentBlock())
	assert.Equal(t, 0.5, c.CurrentVector().X)

	c.Update()
	assert.Equal(t, world.Pos(10, 64, 0), c.CurrentBlock())
	assert.Equal(t, 2, c.Remaining())
	c.Update()
	c.Update()
	assert.True(t, c.IsComplete())
	assert.Equal(t, world.Pos(10, 64, 5), c.CurrentBlock())

	// Cursors are independent.
	assert.Equal(t, 0, p.Cursor().Index())
}

func TestFailedPath(t *testing.T) {
	p := FailedPath()
	assert.True(t, p.Failed())
	assert.True(t, math.IsInf(p.Cost(), 1))
	assert.Empty(t, p.Waypoints())
	assert.Empty(t, p.Blocks())
	_, ok := p.Start()
	assert.False(t, ok)
	assert.True(t, p.Cursor().IsComplete())

	assert.True(t, NewPath(nil, nil, 0, 0).Failed())
}

func TestLineIsContiguous(t *testing.T) {
	a, b := world.Pos(0, 60, 0), world.Pos(7, 63, -12)
	line := Line(a, b)
	require.Equal(t, a, line[0])
	require.Equal(t, b, line[len(line)-1])
	for i := 1; i < len(line); i++ {
		assert.LessOrEqual(t, line[i-1].ChebyshevDistance(line[i]), 1)
	}
	assert.Equal(t, []world.BlockPos{a}, Line(a, a))
}

func TestLazyResolvesOnDemand(t *testing.T) {
	calls := 0
	seg := func(from, to world.BlockPos) Segment {
		return Segment{From: from, To: to, Resolve: func(context.Context) (*Path, error) {
			calls++
			return NewPath(Line(from, to), nil, from.Distance(to), 0), nil
		}}
	}
	a, b, c := world.Pos(0, 64, 0), world.Pos(8, 64, 0), world.Pos(8, 64, 8)
	l := NewLazy([]Segment{seg(a, b), seg(b, c)})
	assert.Equal(t, 0, l.Resolved())

	assert.False(t, l.IsComplete())
	assert.Equal(t, a, l.CurrentBlock())
	assert.Equal(t, 1, l.Resolved())

	l.Update() // reach a
	assert.Equal(t, b, l.CurrentBlock())
	assert.Equal(t, 1, l.Resolved())

	l.Update() // reach b, junction with second segment is skipped
	assert.Equal(t, c, l.CurrentBlock())
	assert.Equal(t, 2, l.Resolved())

	l.Update()
	assert.True(t, l.IsComplete())
	assert.NoError(t, l.Err())
	assert.Equal(t, 2, calls)
}

func TestLazyResolvesUnderItsContext(t *testing.T) {
	a, b := world.Pos(0, 64, 0), world.Pos(8, 64, 0)
	l := NewLazy([]Segment{{From: a, To: b, Resolve: func(ctx context.Context) (*Path, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return Straight(a, b), nil
	}}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocks, err := l.BlocksContext(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, blocks)
	assert.True(t, l.IsComplete())
	assert.Zero(t, l.Resolved())

	fresh := NewLazy([]Segment{{From: a, To: b, Resolve: func(ctx context.Context) (*Path, error) {
		return Straight(a, b), ctx.Err()
	}}})
	blocks, err = fresh.BlocksContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, b, blocks[len(blocks)-1])
}

func TestLazyBlocksAreContiguous(t *testing.T) {
	a, b, c := world.Pos(0, 64, 0), world.Pos(5, 64, 3), world.Pos(9, 65, 9)
	l := NewLazy([]Segment{{From: a, To: b}, {From: b, To: c}})
	bs := l.Blocks()
	require.Equal(t, a, bs[0])
	require.Equal(t, c, bs[len(bs)-1])
	for i := 1; i < len(bs); i++ {
		assert.LessOrEqual(t, bs[i-1].ChebyshevDistance(bs[i]), 1)
	}
	assert.Equal(t, 2, l.Resolved())
}

func TestLazyResolveFailureEndsPlan(t *testing.T) {
	boom := errors.New("boom")
	a, b := world.Pos(0, 64, 0), world.Pos(3, 64, 0)
	l := NewLazy([]Segment{
		{From: a, To: b},
		{From: b, To: a, Resolve: func(context.Context) (*Path, error) { return nil, boom }},
	})
	for !l.IsComplete() {
		l.Update()
	}
	require.ErrorIs(t, l.Err(), boom)
	assert.Equal(t, b, l.CurrentBlock())

	l = NewLazy([]Segment{{From: a, To: b, Resolve: func(context.Context) (*Path, error) { return FailedPath(), nil }}})
	assert.True(t, l.IsComplete())
	assert.ErrorIs(t, l.Err(), ErrUnresolved)
}
