package hpa

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Snapshot is the serialized form of a graph. Dead edges are left out, so
// edge ids may have gaps.
type Snapshot struct {
	Config   Config      `msgpack:"config"`
	Chain    string      `msgpack:"chain"`
	Regions  []RegionKey `msgpack:"regions"`
	Clusters []Cluster   `msgpack:"clusters"`
	Nodes    []Node      `msgpack:"nodes"`
	Edges    []Edge      `msgpack:"edges"`
	Stats    Stats       `msgpack:"stats"`
}

// Dump writes a msgpack snapshot of the graph to w.
func (g *Graph) Dump(w io.Writer) error {
	g.mu.RLock()
	snap := Snapshot{
		Config:  g.cfg,
		Chain:   g.chain.String(),
		Regions: sortedRegions(g.loaded),
		Nodes:   g.nodes,
		Stats:   g.statsLocked(),
	}
	g.orderedClusters(func(c *Cluster) {
		snap.Clusters = append(snap.Clusters, *c)
	})
	for i := range g.edges {
		if !g.edges[i].dead {
			snap.Edges = append(snap.Edges, g.edges[i])
		}
	}
	err := msgpack.NewEncoder(w).Encode(&snap)
	g.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("hpa dump: %w", err)
	}
	return nil
}

// ReadSnapshot decodes a snapshot written by Dump.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := msgpack.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("hpa snapshot: %w", err)
	}
	return &snap, nil
}
