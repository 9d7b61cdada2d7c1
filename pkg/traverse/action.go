package traverse

import (
	"fmt"
	"sync"

	"github.com/sanonone/voxpath/pkg/world"
)

// Action is a movement side effect an agent performs when it reaches a cell.
type Action uint8

const (
	ActionNone Action = iota
	ActionJump
	ActionClimb
	ActionSwim
	ActionOpenDoor
	ActionFall
)

var actionNames = [...]string{
	ActionNone:     "none",
	ActionJump:     "jump",
	ActionClimb:    "climb",
	ActionSwim:     "swim",
	ActionOpenDoor: "open_door",
	ActionFall:     "fall",
}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "unknown"
}

// MarshalText encodes the action name.
func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText decodes an action name.
func (a *Action) UnmarshalText(text []byte) error {
	for i, name := range actionNames {
		if name == string(text) {
			*a = Action(i)
			return nil
		}
	}
	return fmt.Errorf("traverse: unknown action %q", text)
}

// Mover is the agent side of a movement action.
type Mover interface {
	Perform(a Action, at world.BlockPos)
}

// MoverFunc adapts a function to Mover.
type MoverFunc func(a Action, at world.BlockPos)

func (f MoverFunc) Perform(a Action, at world.BlockPos) { f(a, at) }

// ActionEvent is one performed action.
type ActionEvent struct {
	Action Action         `json:"action"`
	At     world.BlockPos `json:"at"`
}

// Recorder is a Mover that remembers what it was asked to do.
type Recorder struct {
	mu     sync.Mutex
	events []ActionEvent
}

func (r *Recorder) Perform(a Action, at world.BlockPos) {
	r.mu.Lock()
	r.events = append(r.events, ActionEvent{Action: a, At: at})
	r.mu.Unlock()
}

// Events returns a copy of the recorded actions in order.
func (r *Recorder) Events() []ActionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ActionEvent(nil), r.events...)
}
