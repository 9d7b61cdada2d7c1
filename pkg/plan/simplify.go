package plan

import (
	"github.com/sanonone/voxpath/pkg/world"
)

// Simplify runs Douglas-Peucker over pts and returns the indices to keep, in
// order. The first and last points are always kept, as is every index for
// which pinned returns true; simplification never crosses a pinned point.
func Simplify(pts []world.BlockPos, tolerance float64, pinned func(int) bool) []int {
	switch len(pts) {
	case 0:
		return nil
	case 1:
		return []int{0}
	}
	keep := make([]bool, len(pts))
	keep[0], keep[len(pts)-1] = true, true

	lo := 0
	for i := 1; i < len(pts); i++ {
		if i == len(pts)-1 || (pinned != nil && pinned(i)) {
			keep[i] = true
			douglasPeucker(pts, lo, i, tolerance, keep)
			lo = i
		}
	}

	out := make([]int, 0, len(pts))
	for i, k := range keep {
		if k {
			out = append(out, i)
		}
	}
	return out
}

// douglasPeucker marks the points of (lo, hi) that deviate from the chord
// lo-hi by more than tolerance, recursing on both halves.
func douglasPeucker(pts []world.BlockPos, lo, hi int, tolerance float64, keep []bool) {
	if hi-lo < 2 {
		return
	}
	a, b := pts[lo].Vec(), pts[hi].Vec()
	worst, worstDist := -1, tolerance
	for i := lo + 1; i < hi; i++ {
		if d := SegmentDistance(pts[i].Vec(), a, b); d > worstDist {
			worst, worstDist = i, d
		}
	}
	if worst < 0 {
		return
	}
	keep[worst] = true
	douglasPeucker(pts, lo, worst, tolerance, keep)
	douglasPeucker(pts, worst, hi, tolerance, keep)
}
