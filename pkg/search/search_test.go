package search

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type edge struct {
	to   string
	cost float64
}

// graphProblem is an explicit weighted digraph with a table heuristic.
type graphProblem struct {
	edges map[string][]edge
	h     map[string]float64
	goal  string
}

func (g graphProblem) Neighbors(k string, yield func(string, float64)) {
	for _, e := range g.edges[k] {
		yield(e.to, e.cost)
	}
}
func (g graphProblem) Heuristic(k string) float64 { return g.h[k] }
func (g graphProblem) IsGoal(k string) bool       { return k == g.goal }

type cell struct{ x, y int }

// gridProblem is a 4-connected open grid with optional walls.
type gridProblem struct {
	w, h  int
	walls map[cell]bool
	goal  cell
}

func (g gridProblem) Neighbors(c cell, yield func(cell, float64)) {
	for _, d := range []cell{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
		n := cell{c.x + d.x, c.y + d.y}
		if n.x < 0 || n.y < 0 || n.x >= g.w || n.y >= g.h || g.walls[n] {
			continue
		}
		yield(n, 1)
	}
}

func (g gridProblem) Heuristic(c cell) float64 {
	return math.Abs(float64(c.x-g.goal.x)) + math.Abs(float64(c.y-g.goal.y))
}

func (g gridProblem) IsGoal(c cell) bool { return c == g.goal }

func TestSearchFindsShortestPath(t *testing.T) {
	p := graphProblem{
		edges: map[string][]edge{
			"S": {{"A", 1}, {"B", 4}},
			"A": {{"B", 1}, {"G", 6}},
			"B": {{"G", 1}},
		},
		h:    map[string]float64{},
		goal: "G",
	}
	res, err := RunFully(context.Background(), p, "S")
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, []string{"S", "A", "B", "G"}, res.Path)
	assert.InDelta(t, 3.0, res.Cost, 1e-9)
}

func TestSearchStartIsGoal(t *testing.T) {
	p := gridProblem{w: 3, h: 3, goal: cell{1, 1}}
	res, err := RunFully(context.Background(), p, cell{1, 1})
	require.NoError(t, err)
	assert.Equal(t, []cell{{1, 1}}, res.Path)
	assert.Zero(t, res.Cost)
}

func TestSearchUnreachableIsFailure(t *testing.T) {
	walls := map[cell]bool{}
	for y := 0; y < 10; y++ {
		walls[cell{5, y}] = true
	}
	p := gridProblem{w: 10, h: 10, walls: walls, goal: cell{9, 9}}
	res, err := RunFully(context.Background(), p, cell{0, 0})
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.True(t, res.Failed())
	assert.True(t, math.IsInf(res.Cost, 1))
	assert.Empty(t, res.Path)
	// Every reachable cell on the left side was settled before giving up.
	assert.Equal(t, 50, res.Expanded)
}

func TestSearchReopensOnSignificantImprovement(t *testing.T) {
	// h(B) overestimates, so C is first closed via the expensive A branch and
	// must be reopened once B is expanded.
	build := func() graphProblem {
		return graphProblem{
			edges: map[string][]edge{
				"S": {{"A", 1}, {"B", 2}},
				"A": {{"C", 5}},
				"B": {{"C", 1}},
				"C": {{"G", 20}},
			},
			h:    map[string]float64{"B": 10},
			goal: "G",
		}
	}

	res, err := RunFully(context.Background(), build(), "S")
	require.NoError(t, err)
	assert.InDelta(t, 23.0, res.Cost, 1e-9)
	assert.Equal(t, []string{"S", "B", "C", "G"}, res.Path)

	// An improvement of 3 is below a threshold of 5, so C stays retired.
	res, err = RunFully(context.Background(), build(), "S", WithReopenThreshold(5))
	require.NoError(t, err)
	assert.InDelta(t, 26.0, res.Cost, 1e-9)
	assert.Equal(t, []string{"S", "A", "C", "G"}, res.Path)
}

func TestSearchIgnoresNoiseImprovements(t *testing.T) {
	p := graphProblem{
		edges: map[string][]edge{
			"S": {{"A", 1}, {"B", 1.001}},
			"A": {{"C", 1}},
			"B": {{"C", 0.995}},
			"C": {{"G", 1}},
		},
		h:    map[string]float64{"B": 1.5},
		goal: "G",
	}
	res, err := RunFully(context.Background(), p, "S")
	require.NoError(t, err)
	// B->C improves C by 0.004, under the default threshold.
	assert.Equal(t, []string{"S", "A", "C", "G"}, res.Path)
}

func TestSearchTieBreakReducesExpansions(t *testing.T) {
	p := gridProblem{w: 30, h: 30, goal: cell{20, 20}}

	plain, err := RunFully(context.Background(), p, cell{0, 0}, WithTieBreak(1))
	require.NoError(t, err)
	biased, err := RunFully(context.Background(), p, cell{0, 0})
	require.NoError(t, err)

	assert.InDelta(t, 40.0, plain.Cost, 1e-9)
	assert.InDelta(t, 40.0, biased.Cost, 1e-9)
	assert.LessOrEqual(t, biased.Expanded, plain.Expanded)
	// With the bias the frontier heads straight for the goal.
	assert.Equal(t, 41, biased.Expanded)
}

func TestSearchExpansionLimit(t *testing.T) {
	p := gridProblem{w: 50, h: 50, goal: cell{49, 49}}
	res, err := RunFully(context.Background(), p, cell{0, 0}, WithMaxExpansions(10))
	require.ErrorIs(t, err, ErrExpansionLimit)
	assert.False(t, res.Found)
	assert.Equal(t, 10, res.Expanded)
}

func TestSearchStepIsIncremental(t *testing.T) {
	p := gridProblem{w: 5, h: 1, goal: cell{4, 0}}
	s := New[cell](p, cell{0, 0})
	steps := 0
	for !s.Step() {
		steps++
		assert.False(t, s.Done())
		assert.False(t, s.Result().Found)
	}
	assert.True(t, s.Done())
	assert.Equal(t, 4, steps)
	assert.Equal(t, 5, s.Expanded())
	assert.Len(t, s.Result().Path, 5)
	// Further steps are no-ops.
	assert.True(t, s.Step())
	assert.Equal(t, 5, s.Expanded())
}

func TestSearchRunHonoursCancellation(t *testing.T) {
	walls := map[cell]bool{}
	for x := 0; x < 400; x++ {
		walls[cell{x, 399}] = true
	}
	p := gridProblem{w: 400, h: 401, walls: walls, goal: cell{0, 400}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New[cell](p, cell{0, 0}).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.Found)
	assert.Less(t, res.Expanded, 400*399)
}
