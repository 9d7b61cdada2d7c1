// Package world defines the read-only view of the voxel world that pathfinding
// consumes: block coordinates and their packed keys, materials, immutable chunk
// snapshots, and the sources those snapshots are fetched from.
package world

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ChunkShift is log2 of the horizontal chunk edge length.
const (
	ChunkShift = 4
	ChunkSize  = 1 << ChunkShift
)

// Packed key layout, most significant bits first: X (26) | Z (26) | Y (12).
// Each field holds a two's complement value, so unpacking sign-extends.
const (
	packBitsXZ = 26
	packBitsY  = 12

	packShiftX = packBitsXZ + packBitsY
	packShiftZ = packBitsY

	packMaskXZ = 1<<packBitsXZ - 1
	packMaskY  = 1<<packBitsY - 1

	// MinPackedXZ and MaxPackedXZ bound the X and Z axes that Pack encodes losslessly.
	MinPackedXZ = -(1 << (packBitsXZ - 1))
	MaxPackedXZ = 1<<(packBitsXZ-1) - 1
	// MinPackedY and MaxPackedY bound the Y axis.
	MinPackedY = -(1 << (packBitsY - 1))
	MaxPackedY = 1<<(packBitsY-1) - 1
)

// ErrOutOfRange is returned for coordinates that cannot be packed losslessly.
var ErrOutOfRange = errors.New("world: coordinate out of packable range")

// BlockPos is an integer block coordinate.
type BlockPos struct {
	X, Y, Z int
}

// Pos is shorthand for BlockPos{x, y, z}.
func Pos(x, y, z int) BlockPos { return BlockPos{X: x, Y: y, Z: z} }

func (p BlockPos) String() string { return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z) }

// Add returns p translated by (dx, dy, dz).
func (p BlockPos) Add(dx, dy, dz int) BlockPos {
	return BlockPos{X: p.X + dx, Y: p.Y + dy, Z: p.Z + dz}
}

// Up is the block directly above p.
func (p BlockPos) Up() BlockPos { return p.Add(0, 1, 0) }

// Down is the block directly below p.
func (p BlockPos) Down() BlockPos { return p.Add(0, -1, 0) }

// Vec returns the integer corner of p as a vector.
func (p BlockPos) Vec() r3.Vec {
	return r3.Vec{X: float64(p.X), Y: float64(p.Y), Z: float64(p.Z)}
}

// Center returns the point an agent stands on: the middle of the block's floor.
func (p BlockPos) Center() r3.Vec {
	return r3.Vec{X: float64(p.X) + 0.5, Y: float64(p.Y), Z: float64(p.Z) + 0.5}
}

// Distance is the Euclidean distance between two blocks.
func (p BlockPos) Distance(o BlockPos) float64 {
	return r3.Norm(r3.Sub(p.Vec(), o.Vec()))
}

// ChebyshevDistance is the largest per-axis delta.
func (p BlockPos) ChebyshevDistance(o BlockPos) int {
	return max(abs(p.X-o.X), abs(p.Y-o.Y), abs(p.Z-o.Z))
}

// InPackRange reports whether p survives Pack/Unpack unchanged.
func (p BlockPos) InPackRange() bool {
	return p.X >= MinPackedXZ && p.X <= MaxPackedXZ &&
		p.Z >= MinPackedXZ && p.Z <= MaxPackedXZ &&
		p.Y >= MinPackedY && p.Y <= MaxPackedY
}

// Pack encodes p into a single int64 suitable as a map key. Positions outside
// the packable range wrap; check InPackRange (or use PackChecked) first.
func (p BlockPos) Pack() int64 {
	return (int64(p.X)&packMaskXZ)<<packShiftX |
		(int64(p.Z)&packMaskXZ)<<packShiftZ |
		int64(p.Y)&packMaskY
}

// PackChecked is Pack with range validation.
func (p BlockPos) PackChecked() (int64, error) {
	if !p.InPackRange() {
		return 0, fmt.Errorf("pack %s: %w", p, ErrOutOfRange)
	}
	return p.Pack(), nil
}

// Unpack is the inverse of Pack.
func Unpack(k int64) BlockPos {
	return BlockPos{
		X: int(k >> packShiftX),
		Z: int((k << packBitsXZ) >> packShiftX),
		Y: int((k << (64 - packBitsY)) >> (64 - packBitsY)),
	}
}

// ChunkCoord returns the chunk column containing world x (or z).
func ChunkCoord(v int) int { return v >> ChunkShift }

// Floor rounds a vector component down to a block coordinate.
func Floor(v float64) int { return int(math.Floor(v)) }

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
