package search

import (
	"container/heap"
	"context"
	"errors"
	"math"
)

// ErrExpansionLimit is returned when Options.MaxExpansions is exceeded.
var ErrExpansionLimit = errors.New("search: expansion limit reached")

// cancelCheckInterval is how many expansions run between context checks.
const cancelCheckInterval = 256

// Problem describes a search space over keys of type K.
type Problem[K comparable] interface {
	// Neighbors calls yield for every successor of k with the step cost.
	Neighbors(k K, yield func(next K, cost float64))
	// Heuristic estimates the remaining cost from k to the goal.
	Heuristic(k K) float64
	// IsGoal reports whether k terminates the search.
	IsGoal(k K) bool
}

// Result contains the outcome of a search.
type Result[K comparable] struct {
	Path     []K
	Cost     float64
	Expanded int
	Found    bool
}

// Failed reports whether the search ended without reaching a goal.
func (r Result[K]) Failed() bool { return !r.Found }

type node[K comparable] struct {
	key    K
	g, h   float64
	parent int32
	index  int
}

// Search is the state of one A* run. It is not safe for concurrent use.
type Search[K comparable] struct {
	problem Problem[K]
	opts    Options

	nodes  []node[K]
	ids    map[K]int32
	open   frontier[K]
	closed map[K]float64

	expanded int
	goal     int32
	done     bool
	limited  bool
}

// New prepares a search from start. Nothing is expanded until Step or Run.
func New[K comparable](problem Problem[K], start K, options ...Option) *Search[K] {
	s := &Search[K]{
		problem: problem,
		opts:    buildOptions(options),
		nodes:   make([]node[K], 0, 64),
		ids:     make(map[K]int32, 64),
		closed:  make(map[K]float64, 64),
		goal:    -1,
	}
	s.open.s = s
	id := s.alloc(start, 0, -1)
	heap.Push(&s.open, id)
	return s
}

func (s *Search[K]) alloc(key K, g float64, parent int32) int32 {
	id := int32(len(s.nodes))
	s.nodes = append(s.nodes, node[K]{
		key:    key,
		g:      g,
		h:      s.problem.Heuristic(key),
		parent: parent,
		index:  -1,
	})
	s.ids[key] = id
	return id
}

// Step expands the cheapest open node and reports whether the search is over.
func (s *Search[K]) Step() bool {
	if s.done {
		return true
	}
	if s.open.Len() == 0 {
		s.done = true
		return true
	}

	id := heap.Pop(&s.open).(int32)
	key, g := s.nodes[id].key, s.nodes[id].g
	s.closed[key] = g
	s.expanded++

	if s.problem.IsGoal(key) {
		s.goal = id
		s.done = true
		return true
	}
	if s.opts.MaxExpansions > 0 && s.expanded >= s.opts.MaxExpansions {
		s.limited = true
		s.done = true
		return true
	}

	s.problem.Neighbors(key, func(next K, cost float64) {
		s.relax(id, g+cost, next)
	})
	return false
}

func (s *Search[K]) relax(from int32, tentative float64, next K) {
	if closedCost, ok := s.closed[next]; ok {
		if tentative >= closedCost-s.opts.ReopenThreshold {
			return
		}
		delete(s.closed, next)
	}

	nid, seen := s.ids[next]
	if !seen {
		nid = s.alloc(next, tentative, from)
		heap.Push(&s.open, nid)
		return
	}

	n := &s.nodes[nid]
	if n.index >= 0 {
		if tentative < n.g {
			n.g = tentative
			n.parent = from
			heap.Fix(&s.open, n.index)
		}
		return
	}
	// Reopened: was closed, now strictly cheaper.
	n.g = tentative
	n.parent = from
	heap.Push(&s.open, nid)
}

// Run steps until the search finishes or ctx is done.
func (s *Search[K]) Run(ctx context.Context) (Result[K], error) {
	for i := 0; !s.Step(); i++ {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return s.Result(), err
			}
		}
	}
	if s.limited {
		return s.Result(), ErrExpansionLimit
	}
	return s.Result(), nil
}

// Done reports whether the search has terminated.
func (s *Search[K]) Done() bool { return s.done }

// Expanded returns the number of nodes expanded so far.
func (s *Search[K]) Expanded() int { return s.expanded }

// Result returns the current outcome. Before termination, and after a failed
// search, it reports Found == false with an infinite cost.
func (s *Search[K]) Result() Result[K] {
	if s.goal < 0 {
		return Result[K]{Cost: math.Inf(1), Expanded: s.expanded}
	}
	return Result[K]{
		Path:     s.reconstruct(s.goal),
		Cost:     s.nodes[s.goal].g,
		Expanded: s.expanded,
		Found:    true,
	}
}

// reconstruct walks parent links from id back to the start and reverses.
func (s *Search[K]) reconstruct(id int32) []K {
	path := make([]K, 0, 16)
	for steps := 0; id >= 0 && steps <= len(s.nodes); steps++ {
		path = append(path, s.nodes[id].key)
		id = s.nodes[id].parent
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// RunFully executes a complete search from start.
func RunFully[K comparable](ctx context.Context, problem Problem[K], start K, options ...Option) (Result[K], error) {
	return New(problem, start, options...).Run(ctx)
}
