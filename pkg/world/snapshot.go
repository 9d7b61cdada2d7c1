package world

import "fmt"

// ChunkKey identifies one chunk column of one world.
type ChunkKey struct {
	World string
	X, Z  int
}

func (k ChunkKey) String() string { return fmt.Sprintf("%s[%d,%d]", k.World, k.X, k.Z) }

// ChunkSnapshot is an immutable copy of one chunk column's block data. It is safe
// to read from any goroutine.
type ChunkSnapshot struct {
	Key        ChunkKey
	MinY, MaxY int // MaxY is exclusive
	blocks     []Material
}

// NewChunkSnapshot copies blocks into a snapshot. blocks is indexed by
// ((y-minY)*ChunkSize+lz)*ChunkSize+lx and must have the matching length.
func NewChunkSnapshot(key ChunkKey, minY, maxY int, blocks []Material) (*ChunkSnapshot, error) {
	want := (maxY - minY) * ChunkSize * ChunkSize
	if maxY < minY || len(blocks) != want {
		return nil, fmt.Errorf("chunk %s: got %d blocks, want %d", key, len(blocks), want)
	}
	cp := make([]Material, len(blocks))
	copy(cp, blocks)
	return &ChunkSnapshot{Key: key, MinY: minY, MaxY: maxY, blocks: cp}, nil
}

func chunkIndex(lx, y, lz, minY int) int {
	return ((y-minY)*ChunkSize+lz)*ChunkSize + lx
}

// Material returns the block at world coordinates (x, y, z). Coordinates outside
// this chunk column or its Y bounds report Unknown.
func (c *ChunkSnapshot) Material(x, y, z int) Material {
	if ChunkCoord(x) != c.Key.X || ChunkCoord(z) != c.Key.Z || y < c.MinY || y >= c.MaxY {
		return Unknown
	}
	return c.blocks[chunkIndex(x&(ChunkSize-1), y, z&(ChunkSize-1), c.MinY)]
}
