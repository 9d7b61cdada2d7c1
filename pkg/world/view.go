package world

// SnapshotView is a BlockSource over a fixed set of chunk snapshots of one world.
// Blocks in chunks that are not part of the view read as Unknown, so a search can
// never wander into data it did not prefetch.
type SnapshotView struct {
	minY, maxY int
	chunks     map[[2]int]*ChunkSnapshot
}

// NewSnapshotView indexes snaps by chunk column. The Y bounds are taken from the
// first snapshot; an empty view spans [minY, maxY).
func NewSnapshotView(minY, maxY int, snaps ...*ChunkSnapshot) *SnapshotView {
	v := &SnapshotView{minY: minY, maxY: maxY, chunks: make(map[[2]int]*ChunkSnapshot, len(snaps))}
	for i, s := range snaps {
		if s == nil {
			continue
		}
		if i == 0 {
			v.minY, v.maxY = s.MinY, s.MaxY
		}
		v.chunks[[2]int{s.Key.X, s.Key.Z}] = s
	}
	return v
}

func (v *SnapshotView) MinY() int { return v.minY }
func (v *SnapshotView) MaxY() int { return v.maxY }

// Material implements BlockSource.
func (v *SnapshotView) Material(x, y, z int) Material {
	s, ok := v.chunks[[2]int{ChunkCoord(x), ChunkCoord(z)}]
	if !ok {
		return Unknown
	}
	return s.Material(x, y, z)
}

// Len is the number of chunk columns in the view.
func (v *SnapshotView) Len() int { return len(v.chunks) }
