package plan

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sanonone/voxpath/pkg/world"
)

// ErrUnresolved is recorded when a segment's resolver fails.
var ErrUnresolved = errors.New("plan: segment could not be resolved")

// Resolver concretizes one segment into a grid path.
type Resolver func(ctx context.Context) (*Path, error)

// Segment is a stretch of a lazy plan between two known blocks. A nil Resolve
// is expanded as a straight two-point path.
type Segment struct {
	From, To world.BlockPos
	Resolve  Resolver
}

// Lazy is a Plan whose segments are concretized only when the cursor enters
// them (or when Blocks is called). It is owned by one consumer.
//
// Plan methods take no context, so resolution runs under the context set with
// SetContext, context.Background by default.
type Lazy struct {
	ctx      context.Context
	segments []Segment
	paths    []*Path
	resolved int

	seg int
	idx int
	err error
}

var _ Plan = (*Lazy)(nil)

// NewLazy returns a plan over segs. Nothing is resolved until it is read.
func NewLazy(segs []Segment) *Lazy {
	l := &Lazy{
		ctx:      context.Background(),
		segments: segs,
		paths:    make([]*Path, len(segs)),
	}
	return l
}

// Segments returns the number of segments.
func (l *Lazy) Segments() int { return len(l.segments) }

// Resolved returns how many segments have been concretized so far.
func (l *Lazy) Resolved() int { return l.resolved }

// SetContext bounds every later segment resolution by ctx.
func (l *Lazy) SetContext(ctx context.Context) { l.ctx = ctx }

// Err returns the resolution failure that ended the plan early, if any.
func (l *Lazy) Err() error { return l.err }

func (l *Lazy) path(i int) (*Path, error) {
	if p := l.paths[i]; p != nil {
		return p, nil
	}
	s := l.segments[i]
	var p *Path
	if s.Resolve == nil {
		p = Straight(s.From, s.To)
	} else {
		var err error
		if p, err = s.Resolve(l.ctx); err != nil {
			return nil, fmt.Errorf("segment %d %s->%s: %w", i, s.From, s.To, err)
		}
		if p == nil || p.Failed() {
			return nil, fmt.Errorf("segment %d %s->%s: %w", i, s.From, s.To, ErrUnresolved)
		}
	}
	l.paths[i] = p
	l.resolved++
	return p, nil
}

// skipJunction reports whether the first waypoint of segment i repeats the
// last waypoint of segment i-1 and carries nothing to run.
func (l *Lazy) skipJunction(i int, p *Path) bool {
	if i == 0 || l.paths[i-1] == nil {
		return false
	}
	prev := l.paths[i-1].waypoints
	first := p.waypoints[0]
	return first.Pos == prev[len(prev)-1].Pos && len(first.Callbacks) == 0
}

// settle resolves segments until the cursor rests on a real waypoint or the
// plan is exhausted.
func (l *Lazy) settle() {
	for l.err == nil && l.seg < len(l.segments) {
		p, err := l.path(l.seg)
		if err != nil {
			l.err = err
			return
		}
		if l.idx == 0 && l.skipJunction(l.seg, p) {
			l.idx = 1
		}
		if l.idx < p.Len() {
			return
		}
		l.seg++
		l.idx = 0
	}
}

// IsComplete is true once every segment has been walked or a segment failed
// to resolve.
func (l *Lazy) IsComplete() bool {
	l.settle()
	return l.err != nil || l.seg >= len(l.segments)
}

func (l *Lazy) Update() {
	if l.IsComplete() {
		return
	}
	for _, cb := range l.paths[l.seg].waypoints[l.idx].Callbacks {
		cb()
	}
	l.idx++
	l.settle()
}

func (l *Lazy) CurrentBlock() world.BlockPos {
	if !l.IsComplete() {
		return l.paths[l.seg].waypoints[l.idx].Pos
	}
	if len(l.segments) == 0 {
		return world.BlockPos{}
	}
	if l.err != nil && l.seg < len(l.segments) {
		return l.segments[l.seg].From
	}
	return l.segments[len(l.segments)-1].To
}

func (l *Lazy) CurrentVector() r3.Vec {
	if len(l.segments) == 0 {
		return r3.Vec{}
	}
	return l.CurrentBlock().Center()
}

// Blocks resolves every remaining segment and concatenates their blocks. A
// resolution failure truncates the list at the failed segment.
func (l *Lazy) Blocks() []world.BlockPos {
	var out []world.BlockPos
	for i := range l.segments {
		p, err := l.path(i)
		if err != nil {
			if l.err == nil {
				l.err = err
			}
			break
		}
		bs := p.blocks
		if len(out) > 0 && len(bs) > 0 && bs[0] == out[len(out)-1] {
			bs = bs[1:]
		}
		out = append(out, bs...)
	}
	return out
}

// BlocksContext is Blocks with resolution bounded by ctx. It returns the
// failure that truncated the list, if any.
func (l *Lazy) BlocksContext(ctx context.Context) ([]world.BlockPos, error) {
	l.SetContext(ctx)
	blocks := l.Blocks()
	return blocks, l.err
}
