package world

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanonone/voxpath/pkg/loop"
)

func TestPackRoundTripAtBounds(t *testing.T) {
	cases := []BlockPos{
		Pos(0, 0, 0),
		Pos(-1, -1, -1),
		Pos(MaxPackedXZ, MaxPackedY, MaxPackedXZ),
		Pos(MinPackedXZ, MinPackedY, MinPackedXZ),
		Pos(MinPackedXZ, MaxPackedY, MaxPackedXZ),
		Pos(123456, -64, -987654),
	}
	for _, p := range cases {
		require.True(t, p.InPackRange(), "%s", p)
		assert.Equal(t, p, Unpack(p.Pack()), "%s", p)
	}
}

func TestPackDistinctNeighbours(t *testing.T) {
	seen := map[int64]BlockPos{}
	for x := -2; x <= 2; x++ {
		for y := -2; y <= 2; y++ {
			for z := -2; z <= 2; z++ {
				p := Pos(x, y, z)
				k := p.Pack()
				if prev, dup := seen[k]; dup {
					t.Fatalf("%s and %s share key %d", p, prev, k)
				}
				seen[k] = p
			}
		}
	}
}

func TestPackCheckedRejectsOutOfRange(t *testing.T) {
	_, err := Pos(0, MaxPackedY+1, 0).PackChecked()
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = Pos(MaxPackedXZ+1, 0, 0).PackChecked()
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestChunkCoordNegative(t *testing.T) {
	assert.Equal(t, -1, ChunkCoord(-1))
	assert.Equal(t, -1, ChunkCoord(-16))
	assert.Equal(t, -2, ChunkCoord(-17))
	assert.Equal(t, 0, ChunkCoord(15))
}

func TestMemoryWorldSnapshotIsCopy(t *testing.T) {
	w := NewMemoryWorld("w", 0, 16)
	require.NoError(t, w.SetBlock(Pos(-3, 5, 20), Stone))

	snap, err := w.LoadChunk("w", ChunkCoord(-3), ChunkCoord(20))
	require.NoError(t, err)
	assert.Equal(t, Stone, snap.Material(-3, 5, 20))

	require.NoError(t, w.SetBlock(Pos(-3, 5, 20), Air))
	assert.Equal(t, Stone, snap.Material(-3, 5, 20), "snapshot must not observe later edits")
	assert.Equal(t, Air, w.Material(-3, 5, 20))
	assert.Equal(t, Unknown, snap.Material(100, 5, 20))
	assert.Equal(t, Unknown, w.Material(0, 16, 0))
}

func TestSnapshotViewUnknownOutsideChunks(t *testing.T) {
	w := NewMemoryWorld("w", 0, 8)
	w.Fill(Pos(0, 0, 0), Pos(31, 0, 31), Stone)
	snap, err := w.LoadChunk("w", 0, 0)
	require.NoError(t, err)

	v := NewSnapshotView(0, 8, snap)
	assert.Equal(t, Stone, v.Material(3, 0, 3))
	assert.Equal(t, Unknown, v.Material(20, 0, 3))
	assert.Equal(t, 1, v.Len())
}

type asyncHost struct{ *MemoryWorld }

func (h asyncHost) LoadChunkAsync(_ context.Context, id string, cx, cz int, done func(*ChunkSnapshot, error)) {
	go func() { done(h.LoadChunk(id, cx, cz)) }()
}

func TestSelectSource(t *testing.T) {
	w := NewMemoryWorld("w", 0, 8)

	src, err := SelectSource(w, loop.Direct{}, ModeAuto)
	require.NoError(t, err)
	assert.Equal(t, ModeSync, src.Mode())

	src, err = SelectSource(asyncHost{w}, loop.Direct{}, ModeAuto)
	require.NoError(t, err)
	assert.Equal(t, ModeAsync, src.Mode())

	_, err = SelectSource(w, loop.Direct{}, ModeAsync)
	assert.Error(t, err)

	_, err = SelectSource(struct{}{}, loop.Direct{}, ModeAuto)
	assert.Error(t, err)
}

func TestParseScene(t *testing.T) {
	doc := `
world: test
min_y: 0
max_y: 32
fills:
  - material: grass
    from: [0, 3, 0]
    to: [7, 3, 7]
blocks:
  - material: ladder
    at: [2, 4, 2]
`
	scene, err := ParseScene(strings.NewReader(doc))
	require.NoError(t, err)
	w, err := scene.Build()
	require.NoError(t, err)

	assert.Equal(t, Grass, w.Material(7, 3, 7))
	assert.Equal(t, Ladder, w.Material(2, 4, 2))
	assert.Equal(t, Air, w.Material(8, 3, 8))

	_, err = ParseScene(strings.NewReader("world: x\nbogus: 1\n"))
	assert.Error(t, err)

	_, err = ParseScene(strings.NewReader("fills:\n  - material: marble\n"))
	assert.Error(t, err)
}
