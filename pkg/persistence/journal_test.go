package persistence

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanonone/voxpath/pkg/world"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	require.NoError(t, fw.WriteFrame(OpSetBlock, []byte("hello")))

	op, payload, n, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, byte(OpSetBlock), op)
	assert.Equal(t, []byte("hello"), payload)
	assert.Equal(t, HeaderSize+5, n)

	_, _, _, err = ReadFrame(&buf)
	assert.Equal(t, io.EOF, err)
}

func TestReadFrameDetectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFrameWriter(&buf).WriteFrame(OpSetBlock, []byte("payload")))
	raw := buf.Bytes()

	flipped := bytes.Clone(raw)
	flipped[len(flipped)-1] ^= 0xFF
	_, _, _, err := ReadFrame(bytes.NewReader(flipped))
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	badMagic := bytes.Clone(raw)
	badMagic[0] = 0
	_, _, _, err = ReadFrame(bytes.NewReader(badMagic))
	assert.ErrorIs(t, err, ErrInvalidMagic)

	_, _, _, err = ReadFrame(bytes.NewReader(raw[:len(raw)-2]))
	assert.ErrorIs(t, err, ErrIncompleteFrame)
	_, _, _, err = ReadFrame(bytes.NewReader(raw[:4]))
	assert.ErrorIs(t, err, ErrIncompleteFrame)
}

func newWorld(t *testing.T) *world.MemoryWorld {
	t.Helper()
	w, err := world.FlatScene("test", 32, 63, 80).Build()
	require.NoError(t, err)
	return w
}

func TestJournalReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edits.journal")
	j, err := Open(path, 0)
	require.NoError(t, err)

	jw := NewJournaled(newWorld(t), j)
	require.NoError(t, jw.SetBlock(world.Pos(5, 64, 5), world.Stone))
	require.NoError(t, jw.SetBlock(world.Pos(6, 64, 5), world.Ladder))
	require.NoError(t, jw.SetBlock(world.Pos(5, 64, 5), world.Air))
	assert.Error(t, jw.SetBlock(world.Pos(5, 500, 5), world.Stone))
	require.NoError(t, j.Close())
	assert.ErrorIs(t, j.Append(Edit{}), ErrClosed)

	fresh := newWorld(t)
	stats, err := Replay(path, fresh)
	require.NoError(t, err)
	assert.Equal(t, ReplayStats{Frames: 3, Positions: 2}, stats)
	assert.Equal(t, world.Air, fresh.Material(5, 64, 5))
	assert.Equal(t, world.Ladder, fresh.Material(6, 64, 5))
}

func TestReplayMissingFile(t *testing.T) {
	stats, err := Replay(filepath.Join(t.TempDir(), "none"), newWorld(t))
	require.NoError(t, err)
	assert.Zero(t, stats.Frames)
}

func TestReplayTruncatesTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edits.journal")
	j, err := Open(path, 0)
	require.NoError(t, err)
	require.NoError(t, j.Append(EditOf(world.Pos(1, 64, 1), world.Stone)))
	require.NoError(t, j.Close())

	good, err := os.Stat(path)
	require.NoError(t, err)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte{MagicByte, OpSetBlock, 40, 0})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	w := newWorld(t)
	stats, err := Replay(path, w)
	require.NoError(t, err)
	assert.True(t, stats.Truncated)
	assert.Equal(t, 1, stats.Frames)
	assert.Equal(t, world.Stone, w.Material(1, 64, 1))

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, good.Size(), after.Size())
}

func TestReplayRejectsCorruptFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edits.journal")
	j, err := Open(path, 0)
	require.NoError(t, err)
	require.NoError(t, j.Append(EditOf(world.Pos(1, 64, 1), world.Stone)))
	require.NoError(t, j.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = Replay(path, newWorld(t))
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestJournalCompact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edits.journal")
	j, err := Open(path, 0)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		m := world.Stone
		if i%2 == 1 {
			m = world.Glass
		}
		require.NoError(t, j.Append(EditOf(world.Pos(3, 64, 3), m)))
	}
	require.NoError(t, j.Append(EditOf(world.Pos(4, 64, 3), world.Dirt)))

	n, err := j.Compact()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Appends after compaction land in the new file.
	require.NoError(t, j.Append(EditOf(world.Pos(5, 64, 3), world.Sand)))
	require.NoError(t, j.Close())

	w := newWorld(t)
	stats, err := Replay(path, w)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Frames)
	assert.Equal(t, world.Glass, w.Material(3, 64, 3))
	assert.Equal(t, world.Dirt, w.Material(4, 64, 3))
	assert.Equal(t, world.Sand, w.Material(5, 64, 3))
}

type failingWriter struct{}

func (failingWriter) SetBlock(world.BlockPos, world.Material) error { return errors.New("read-only") }

func TestReplayStopsOnWorldError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edits.journal")
	j, err := Open(path, 0)
	require.NoError(t, err)
	require.NoError(t, j.Append(EditOf(world.Pos(1, 64, 1), world.Stone)))
	require.NoError(t, j.Close())

	_, err = Replay(path, failingWriter{})
	assert.ErrorContains(t, err, "read-only")
}
