// Package traverse decides which cells an agent can occupy and what it costs
// to enter them.
//
// A Chain is a fixed, ordered table of Rules. Each rule may vote on
// passability and standability, add cost, name a movement Action and
// contribute neighbours. Votes are combined as follows:
//
//   - passable: OR over the rules that did not answer PassIgnore. Impassable is
//     an abstention from the OR, not a veto.
//   - standable: the first rule that does not answer StandIgnore decides.
//   - cost: the sum over all rules.
//   - neighbours: at most one rule replaces the default generator; any number
//     append extra candidates.
//
// A cell on which no rule asserts anything is neither passable nor standable.
package traverse

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sanonone/voxpath/pkg/world"
)

// ErrMultipleGenerators is returned by NewChain when two rules try to replace
// the default neighbour generator.
var ErrMultipleGenerators = errors.New("traverse: more than one replacement neighbour generator")

// PassableState is a rule's passability vote.
type PassableState uint8

const (
	PassIgnore PassableState = iota
	Passable
	Impassable
)

// StandableState is a rule's standability vote.
type StandableState uint8

const (
	StandIgnore StandableState = iota
	Standable
	NotStandable
)

// NeighbourMode says how a rule's Neighbours function combines with the
// default generator.
type NeighbourMode uint8

const (
	NeighboursNone NeighbourMode = iota
	NeighboursReplace
	NeighboursAppend
)

// Rule is one row of a Chain. Every function is optional.
type Rule struct {
	Name       string
	Passable   func(env *Env, p world.BlockPos) PassableState
	Standable  func(env *Env, p world.BlockPos) StandableState
	Cost       func(env *Env, p world.BlockPos) float64
	Action     func(env *Env, from, to world.BlockPos) Action
	Neighbours func(env *Env, from world.BlockPos, yield func(world.BlockPos))
	Mode       NeighbourMode
	// Vertical marks rules that let agents occupy cells without walkable
	// ground below, which rules out planar local searches.
	Vertical bool
}

// Chain is an immutable rule table.
type Chain struct {
	rules     []Rule
	generator *Rule
	appenders []*Rule
}

// NewChain validates rules and returns the chain evaluating them in order.
func NewChain(rules ...Rule) (*Chain, error) {
	c := &Chain{rules: append([]Rule(nil), rules...)}
	for i := range c.rules {
		r := &c.rules[i]
		if r.Neighbours == nil {
			continue
		}
		switch r.Mode {
		case NeighboursReplace:
			if c.generator != nil {
				return nil, fmt.Errorf("%w: %q and %q", ErrMultipleGenerators, c.generator.Name, r.Name)
			}
			c.generator = r
		case NeighboursAppend:
			c.appenders = append(c.appenders, r)
		}
	}
	return c, nil
}

// MustChain is NewChain that panics on error. It is meant for package-level
// presets built from known rules.
func MustChain(rules ...Rule) *Chain {
	c, err := NewChain(rules...)
	if err != nil {
		panic(err)
	}
	return c
}

// Names lists the rule names in evaluation order.
func (c *Chain) Names() []string {
	out := make([]string, len(c.rules))
	for i, r := range c.rules {
		out[i] = r.Name
	}
	return out
}

func (c *Chain) String() string { return strings.Join(c.Names(), "+") }

// Env binds a chain to a block source for the duration of a search.
func (c *Chain) Env(src world.BlockSource) *Env {
	return &Env{Blocks: src, chain: c}
}

// HasGenerator reports whether a rule replaces the default neighbour generator.
func (c *Chain) HasGenerator() bool { return c.generator != nil }

// Env is what rules see: the block source and the chain they belong to.
type Env struct {
	Blocks world.BlockSource
	chain  *Chain
}

// Chain returns the chain this environment evaluates.
func (e *Env) Chain() *Chain { return e.chain }

// Material is the block at p.
func (e *Env) Material(p world.BlockPos) world.Material {
	return world.At(e.Blocks, p)
}

// Clear reports whether p holds nothing solid and no liquid.
func (e *Env) Clear(p world.BlockPos) bool {
	m := e.Material(p)
	return !m.Collides() && !m.Liquid()
}

// Passable is true when at least one rule votes Passable for p.
func (e *Env) Passable(p world.BlockPos) bool {
	for i := range e.chain.rules {
		r := &e.chain.rules[i]
		if r.Passable != nil && r.Passable(e, p) == Passable {
			return true
		}
	}
	return false
}

// Standable returns the first non-ignoring rule's verdict for p.
func (e *Env) Standable(p world.BlockPos) bool {
	for i := range e.chain.rules {
		r := &e.chain.rules[i]
		if r.Standable == nil {
			continue
		}
		switch r.Standable(e, p) {
		case Standable:
			return true
		case NotStandable:
			return false
		}
	}
	return false
}

// Cost sums every rule's contribution for entering p.
func (e *Env) Cost(p world.BlockPos) float64 {
	var sum float64
	for i := range e.chain.rules {
		if r := &e.chain.rules[i]; r.Cost != nil {
			sum += r.Cost(e, p)
		}
	}
	return sum
}

// Action returns the first movement action any rule attaches to from -> to.
func (e *Env) Action(from, to world.BlockPos) Action {
	for i := range e.chain.rules {
		if r := &e.chain.rules[i]; r.Action != nil {
			if a := r.Action(e, from, to); a != ActionNone {
				return a
			}
		}
	}
	return ActionNone
}

// Neighbours runs the replacement generator, or def when there is none, and
// then every appending generator. Candidates are not filtered here.
func (e *Env) Neighbours(from world.BlockPos, def func(from world.BlockPos, yield func(world.BlockPos)), yield func(world.BlockPos)) {
	if g := e.chain.generator; g != nil {
		g.Neighbours(e, from, yield)
	} else if def != nil {
		def(from, yield)
	}
	for _, r := range e.chain.appenders {
		r.Neighbours(e, from, yield)
	}
}
