package world

import (
	"context"
	"fmt"

	"github.com/sanonone/voxpath/pkg/loop"
)

// BlockSource answers synchronous block queries. Search code only ever talks to a
// BlockSource, so every lookup during a search is an in-memory read.
type BlockSource interface {
	Material(x, y, z int) Material
	// MinY and MaxY bound the valid Y range; MaxY is exclusive.
	MinY() int
	MaxY() int
}

// At is Material addressed by position.
func At(src BlockSource, p BlockPos) Material { return src.Material(p.X, p.Y, p.Z) }

// InYBounds reports whether y lies inside the source's Y range.
func InYBounds(src BlockSource, y int) bool { return y >= src.MinY() && y < src.MaxY() }

// ChunkLoader is a host that can produce a chunk snapshot synchronously. Its
// calls must happen on the authoritative execution context.
type ChunkLoader interface {
	LoadChunk(worldID string, cx, cz int) (*ChunkSnapshot, error)
}

// AsyncChunkLoader is a host that retrieves chunk snapshots asynchronously on its
// own, from any goroutine. done may be called on any goroutine.
type AsyncChunkLoader interface {
	LoadChunkAsync(ctx context.Context, worldID string, cx, cz int, done func(*ChunkSnapshot, error))
}

// SourceMode selects the chunk retrieval strategy.
type SourceMode string

const (
	ModeAuto  SourceMode = "auto"
	ModeSync  SourceMode = "sync"
	ModeAsync SourceMode = "async"
)

// ChunkSource is the capability the chunk cache fetches snapshots through.
type ChunkSource interface {
	Fetch(ctx context.Context, key ChunkKey, done func(*ChunkSnapshot, error))
	Mode() SourceMode
}

// SyncSource runs a synchronous loader on the authoritative context and delivers
// the snapshot from there.
type SyncSource struct {
	loader ChunkLoader
	exec   loop.Executor
}

// NewSyncSource wraps loader so that it always runs on exec.
func NewSyncSource(loader ChunkLoader, exec loop.Executor) *SyncSource {
	return &SyncSource{loader: loader, exec: exec}
}

func (s *SyncSource) Fetch(ctx context.Context, key ChunkKey, done func(*ChunkSnapshot, error)) {
	s.exec.Execute(func() {
		if err := ctx.Err(); err != nil {
			done(nil, err)
			return
		}
		snap, err := s.loader.LoadChunk(key.World, key.X, key.Z)
		done(snap, err)
	})
}

func (s *SyncSource) Mode() SourceMode { return ModeSync }

// AsyncSource delegates to a host-native asynchronous loader.
type AsyncSource struct {
	loader AsyncChunkLoader
}

// NewAsyncSource wraps an asynchronous loader.
func NewAsyncSource(loader AsyncChunkLoader) *AsyncSource {
	return &AsyncSource{loader: loader}
}

func (s *AsyncSource) Fetch(ctx context.Context, key ChunkKey, done func(*ChunkSnapshot, error)) {
	s.loader.LoadChunkAsync(ctx, key.World, key.X, key.Z, done)
}

func (s *AsyncSource) Mode() SourceMode { return ModeAsync }

// SelectSource picks the chunk retrieval strategy for host once, at startup.
// ModeAuto prefers the host's native asynchronous loader when it has one.
func SelectSource(host any, exec loop.Executor, mode SourceMode) (ChunkSource, error) {
	async, hasAsync := host.(AsyncChunkLoader)
	sync, hasSync := host.(ChunkLoader)

	switch mode {
	case ModeAsync:
		if !hasAsync {
			return nil, fmt.Errorf("chunk source: host %T has no asynchronous loader", host)
		}
		return NewAsyncSource(async), nil
	case ModeSync:
		if !hasSync {
			return nil, fmt.Errorf("chunk source: host %T has no synchronous loader", host)
		}
		return NewSyncSource(sync, exec), nil
	case ModeAuto, "":
		if hasAsync {
			return NewAsyncSource(async), nil
		}
		if hasSync {
			return NewSyncSource(sync, exec), nil
		}
		return nil, fmt.Errorf("chunk source: host %T exposes no chunk loader", host)
	default:
		return nil, fmt.Errorf("chunk source: unknown mode %q", mode)
	}
}
