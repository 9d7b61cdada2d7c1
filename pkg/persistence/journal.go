// Package persistence journals world edits so they survive a restart.
//
// Every successful block change is appended to a file as a checksummed frame.
// On startup Replay applies the journal to the freshly built world. A torn
// final frame, the usual result of a crash mid-write, is cut off; any other
// corruption stops the replay with an error.
package persistence

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/sanonone/voxpath/pkg/world"
)

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("persistence: journal closed")

// Edit is one journaled block change.
type Edit struct {
	X        int    `msgpack:"x"`
	Y        int    `msgpack:"y"`
	Z        int    `msgpack:"z"`
	Material string `msgpack:"m"`
}

// EditOf builds the edit that sets p to m.
func EditOf(p world.BlockPos, m world.Material) Edit {
	return Edit{X: p.X, Y: p.Y, Z: p.Z, Material: m.String()}
}

func (e Edit) Pos() world.BlockPos { return world.Pos(e.X, e.Y, e.Z) }

// BlockWriter changes blocks of a world.
type BlockWriter interface {
	SetBlock(p world.BlockPos, m world.Material) error
}

// Journal appends edits to a file.
//
// Append flushes to the OS before returning. With a sync interval, a
// background routine also fsyncs the file periodically, bounding what a
// power loss can take to roughly one interval.
type Journal struct {
	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	fw     *FrameWriter
	path   string
	closed bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Open opens or creates the journal at path for appending. syncInterval 0
// disables the background fsync.
func Open(path string, syncInterval time.Duration) (*Journal, error) {
	file, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	j := &Journal{
		file:   file,
		buf:    bufio.NewWriter(file),
		path:   path,
		stopCh: make(chan struct{}),
	}
	j.fw = NewFrameWriter(j.buf)

	if syncInterval > 0 {
		j.wg.Add(1)
		go j.syncRoutine(syncInterval)
	}
	return j, nil
}

func openAppend(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return file, nil
}

// Path returns the file path.
func (j *Journal) Path() string { return j.path }

// Append writes one edit and flushes it to the OS.
func (j *Journal) Append(e Edit) error {
	payload, err := msgpack.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode edit: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	if err := j.fw.WriteFrame(OpSetBlock, payload); err != nil {
		return err
	}
	return j.buf.Flush()
}

// Sync flushes and fsyncs the file.
func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	return j.syncLocked()
}

func (j *Journal) syncLocked() error {
	if err := j.buf.Flush(); err != nil {
		return err
	}
	return j.file.Sync()
}

func (j *Journal) syncRoutine(interval time.Duration) {
	defer j.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-j.stopCh:
			return
		case <-ticker.C:
			if err := j.Sync(); err != nil && !errors.Is(err, ErrClosed) {
				slog.Error("[Journal] periodic sync failed", "path", j.path, "error", err)
			}
		}
	}
}

// Close stops the sync routine, then syncs and closes the file.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.stopCh)
	err := j.syncLocked()
	if cerr := j.file.Close(); err == nil {
		err = cerr
	}
	j.mu.Unlock()

	j.wg.Wait()
	return err
}

// Compact rewrites the journal keeping only the last edit of each position
// and returns how many frames remain. The new file replaces the old one by
// rename.
func (j *Journal) Compact() (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return 0, ErrClosed
	}
	if err := j.buf.Flush(); err != nil {
		return 0, err
	}

	src, err := os.Open(j.path)
	if err != nil {
		return 0, fmt.Errorf("compact: %w", err)
	}
	var edits []Edit
	index := make(map[world.BlockPos]int)
	_, err = scan(bufio.NewReader(src), func(e Edit) error {
		if i, ok := index[e.Pos()]; ok {
			edits[i] = e
			return nil
		}
		index[e.Pos()] = len(edits)
		edits = append(edits, e)
		return nil
	})
	src.Close()
	if err != nil {
		return 0, fmt.Errorf("compact: %w", err)
	}

	tmpPath := j.path + ".compact"
	if err := writeEdits(tmpPath, edits); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("compact: %w", err)
	}

	_ = j.file.Close()
	if err := os.Rename(tmpPath, j.path); err != nil {
		return 0, fmt.Errorf("failed to replace journal: %w", err)
	}
	file, err := openAppend(j.path)
	if err != nil {
		j.closed = true
		return 0, fmt.Errorf("failed to reopen journal after compaction: %w", err)
	}
	j.file = file
	j.buf.Reset(file)
	return len(edits), nil
}

func writeEdits(path string, edits []Edit) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	buf := bufio.NewWriter(file)
	fw := NewFrameWriter(buf)
	for _, e := range edits {
		payload, err := msgpack.Marshal(e)
		if err != nil {
			file.Close()
			return err
		}
		if err := fw.WriteFrame(OpSetBlock, payload); err != nil {
			file.Close()
			return err
		}
	}
	if err := buf.Flush(); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// ReplayStats describes a replay.
type ReplayStats struct {
	Frames    int
	Positions int
	// Truncated is set when a torn final frame was cut off.
	Truncated bool
}

// Replay applies the journal at path to w. A missing file is an empty journal.
func Replay(path string, w BlockWriter) (ReplayStats, error) {
	var stats ReplayStats
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if errors.Is(err, os.ErrNotExist) {
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("failed to open journal: %w", err)
	}
	defer file.Close()

	seen := make(map[world.BlockPos]struct{})
	offset, err := scan(bufio.NewReader(file), func(e Edit) error {
		m, err := world.ParseMaterial(e.Material)
		if err != nil {
			return err
		}
		if err := w.SetBlock(e.Pos(), m); err != nil {
			return err
		}
		stats.Frames++
		seen[e.Pos()] = struct{}{}
		return nil
	})
	stats.Positions = len(seen)

	if errors.Is(err, ErrIncompleteFrame) {
		slog.Warn("[Journal] torn final frame, truncating", "path", path, "offset", offset)
		if terr := file.Truncate(offset); terr != nil {
			return stats, fmt.Errorf("truncate journal: %w", terr)
		}
		stats.Truncated = true
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("journal %s at offset %d: %w", path, offset, err)
	}
	return stats, nil
}

// scan decodes frames until EOF and calls fn for each edit. It returns the
// offset just past the last good frame.
func scan(r io.Reader, fn func(Edit) error) (int64, error) {
	var offset int64
	for {
		op, payload, n, err := ReadFrame(r)
		if err == io.EOF {
			return offset, nil
		}
		if err != nil {
			return offset, err
		}
		if op != OpSetBlock {
			return offset, fmt.Errorf("%w 0x%02x", ErrUnknownOp, op)
		}
		var e Edit
		if err := msgpack.Unmarshal(payload, &e); err != nil {
			return offset, fmt.Errorf("decode edit: %w", err)
		}
		if err := fn(e); err != nil {
			return offset, err
		}
		offset += int64(n)
	}
}

// Journaled records every successful SetBlock on a world. The world keeps
// the change even when the append fails; the error reports that the edit
// will not survive a restart.
type Journaled struct {
	world   BlockWriter
	journal *Journal
}

func NewJournaled(w BlockWriter, j *Journal) *Journaled {
	return &Journaled{world: w, journal: j}
}

func (jw *Journaled) SetBlock(p world.BlockPos, m world.Material) error {
	if err := jw.world.SetBlock(p, m); err != nil {
		return err
	}
	if err := jw.journal.Append(EditOf(p, m)); err != nil {
		return fmt.Errorf("journal %s: %w", p, err)
	}
	return nil
}
