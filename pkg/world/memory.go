package world

import (
	"fmt"
	"sync"
)

type chunkColumn struct {
	blocks []Material
}

// MemoryWorld is a mutable in-memory world. It is the authoritative copy of the
// block data: mutate it on the authoritative context and hand snapshots to
// everything else. Unset blocks are Air.
type MemoryWorld struct {
	mu         sync.RWMutex
	id         string
	minY, maxY int
	chunks     map[[2]int]*chunkColumn
	loads      int
}

// NewMemoryWorld creates an empty world spanning [minY, maxY).
func NewMemoryWorld(id string, minY, maxY int) *MemoryWorld {
	if maxY <= minY {
		maxY = minY + 1
	}
	return &MemoryWorld{
		id:     id,
		minY:   minY,
		maxY:   maxY,
		chunks: make(map[[2]int]*chunkColumn),
	}
}

// ID returns the world identity used in chunk keys.
func (w *MemoryWorld) ID() string { return w.id }

func (w *MemoryWorld) MinY() int { return w.minY }
func (w *MemoryWorld) MaxY() int { return w.maxY }

// Material implements BlockSource. Positions outside the Y bounds are Unknown.
func (w *MemoryWorld) Material(x, y, z int) Material {
	if y < w.minY || y >= w.maxY {
		return Unknown
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	col, ok := w.chunks[[2]int{ChunkCoord(x), ChunkCoord(z)}]
	if !ok {
		return Air
	}
	return col.blocks[chunkIndex(x&(ChunkSize-1), y, z&(ChunkSize-1), w.minY)]
}

// SetBlock changes one block. Out-of-bounds Y is an error.
func (w *MemoryWorld) SetBlock(p BlockPos, m Material) error {
	if p.Y < w.minY || p.Y >= w.maxY {
		return fmt.Errorf("set block %s: y outside [%d,%d)", p, w.minY, w.maxY)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.columnLocked(ChunkCoord(p.X), ChunkCoord(p.Z)).
		blocks[chunkIndex(p.X&(ChunkSize-1), p.Y, p.Z&(ChunkSize-1), w.minY)] = m
	return nil
}

// Fill sets every block in the inclusive box [a, b]. Y is clamped to the bounds.
func (w *MemoryWorld) Fill(a, b BlockPos, m Material) {
	lo := BlockPos{X: min(a.X, b.X), Y: max(min(a.Y, b.Y), w.minY), Z: min(a.Z, b.Z)}
	hi := BlockPos{X: max(a.X, b.X), Y: min(max(a.Y, b.Y), w.maxY-1), Z: max(a.Z, b.Z)}

	w.mu.Lock()
	defer w.mu.Unlock()
	for x := lo.X; x <= hi.X; x++ {
		for z := lo.Z; z <= hi.Z; z++ {
			col := w.columnLocked(ChunkCoord(x), ChunkCoord(z))
			for y := lo.Y; y <= hi.Y; y++ {
				col.blocks[chunkIndex(x&(ChunkSize-1), y, z&(ChunkSize-1), w.minY)] = m
			}
		}
	}
}

func (w *MemoryWorld) columnLocked(cx, cz int) *chunkColumn {
	key := [2]int{cx, cz}
	col, ok := w.chunks[key]
	if !ok {
		col = &chunkColumn{blocks: make([]Material, (w.maxY-w.minY)*ChunkSize*ChunkSize)}
		w.chunks[key] = col
	}
	return col
}

// LoadChunk implements ChunkLoader by copying the column into a snapshot.
func (w *MemoryWorld) LoadChunk(worldID string, cx, cz int) (*ChunkSnapshot, error) {
	if worldID != w.id {
		return nil, fmt.Errorf("load chunk: unknown world %q", worldID)
	}
	key := ChunkKey{World: worldID, X: cx, Z: cz}

	w.mu.Lock()
	w.loads++
	col, ok := w.chunks[[2]int{cx, cz}]
	var blocks []Material
	if ok {
		blocks = col.blocks
	} else {
		blocks = make([]Material, (w.maxY-w.minY)*ChunkSize*ChunkSize)
	}
	snap, err := NewChunkSnapshot(key, w.minY, w.maxY, blocks)
	w.mu.Unlock()
	return snap, err
}

// Loads returns how many snapshots have been taken.
func (w *MemoryWorld) Loads() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.loads
}
