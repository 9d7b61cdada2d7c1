package plan

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sanonone/voxpath/pkg/world"
)

// Plan is the pull-based contract consumers use to follow a route. The
// consumer steers toward CurrentVector and calls Update when it arrives.
type Plan interface {
	// IsComplete reports whether every waypoint has been reached.
	IsComplete() bool
	// Update marks the current waypoint as reached, runs its callbacks and
	// advances to the next one.
	Update()
	// CurrentVector is the point to steer toward.
	CurrentVector() r3.Vec
	// CurrentBlock is the waypoint to steer toward.
	CurrentBlock() world.BlockPos
	// Blocks materializes the whole route as contiguous blocks.
	Blocks() []world.BlockPos
}

// Cursor walks a Path. Each consumer owns its own cursor; the Path itself is
// never mutated, so several cursors may share one.
type Cursor struct {
	path *Path
	idx  int
}

var _ Plan = (*Cursor)(nil)

// NewCursor returns a cursor on the first waypoint of p.
func NewCursor(p *Path) *Cursor { return &Cursor{path: p} }

// Path returns the underlying path.
func (c *Cursor) Path() *Path { return c.path }

// Index returns the position of the current waypoint.
func (c *Cursor) Index() int { return c.idx }

// Remaining returns how many waypoints have not been reached yet.
func (c *Cursor) Remaining() int { return c.path.Len() - c.idx }

func (c *Cursor) IsComplete() bool { return c.idx >= c.path.Len() }

func (c *Cursor) Update() {
	if c.IsComplete() {
		return
	}
	for _, cb := range c.path.waypoints[c.idx].Callbacks {
		cb()
	}
	c.idx++
}

// CurrentBlock returns the current waypoint, or the last one once complete.
// A failed path yields the zero position.
func (c *Cursor) CurrentBlock() world.BlockPos {
	n := c.path.Len()
	if n == 0 {
		return world.BlockPos{}
	}
	return c.path.waypoints[min(c.idx, n-1)].Pos
}

func (c *Cursor) CurrentVector() r3.Vec {
	if c.path.Len() == 0 {
		return r3.Vec{}
	}
	return c.CurrentBlock().Center()
}

func (c *Cursor) Blocks() []world.BlockPos { return c.path.Blocks() }
