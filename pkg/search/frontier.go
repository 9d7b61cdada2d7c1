package search

// frontier is a min-heap of arena ids ordered by g + h*tieBreak.
// It keeps each node's heap index up to date so decrease-key can use heap.Fix.
type frontier[K comparable] struct {
	ids []int32
	s   *Search[K]
}

func (f *frontier[K]) priority(id int32) float64 {
	n := &f.s.nodes[id]
	return n.g + n.h*f.s.opts.TieBreak
}

func (f *frontier[K]) Len() int { return len(f.ids) }

func (f *frontier[K]) Less(i, j int) bool {
	pi, pj := f.priority(f.ids[i]), f.priority(f.ids[j])
	if pi != pj {
		return pi < pj
	}
	// Deterministic order for exact ties: the node closer to the goal first.
	return f.s.nodes[f.ids[i]].h < f.s.nodes[f.ids[j]].h
}

func (f *frontier[K]) Swap(i, j int) {
	f.ids[i], f.ids[j] = f.ids[j], f.ids[i]
	f.s.nodes[f.ids[i]].index = i
	f.s.nodes[f.ids[j]].index = j
}

func (f *frontier[K]) Push(x any) {
	id := x.(int32)
	f.s.nodes[id].index = len(f.ids)
	f.ids = append(f.ids, id)
}

func (f *frontier[K]) Pop() any {
	n := len(f.ids)
	id := f.ids[n-1]
	f.ids = f.ids[:n-1]
	f.s.nodes[id].index = -1
	return id
}
