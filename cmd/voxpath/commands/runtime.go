package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sanonone/voxpath/pkg/config"
	"github.com/sanonone/voxpath/pkg/engine"
	"github.com/sanonone/voxpath/pkg/loop"
	"github.com/sanonone/voxpath/pkg/persistence"
	"github.com/sanonone/voxpath/pkg/world"
)

// runtime is a world, the loop that owns it and an engine over both.
type runtime struct {
	world  *world.MemoryWorld
	loop   *loop.Loop
	engine *engine.Engine

	// writer applies block edits, through the journal when one is configured.
	writer  engine.BlockWriter
	journal *persistence.Journal

	wg sync.WaitGroup
}

// buildWorld loads the configured scene or lays out a flat world.
func buildWorld(c config.WorldConfig) (*world.MemoryWorld, error) {
	if c.Scene != "" {
		return world.LoadScene(c.Scene)
	}
	scene := world.FlatScene(c.ID, c.FlatSize, c.FloorY, c.MaxY)
	scene.MinY = c.MinY
	return scene.Build()
}

// startRuntime builds the world, runs its loop on a goroutine and opens the engine.
func startRuntime(cfg config.Config) (*runtime, error) {
	w, err := buildWorld(cfg.World)
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}

	rt := &runtime{world: w, loop: loop.New(), writer: w}
	if cfg.World.Journal != "" {
		j, err := openJournal(w, cfg.World)
		if err != nil {
			return nil, err
		}
		rt.journal = j
		rt.writer = persistence.NewJournaled(w, j)
	}

	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		if err := rt.loop.Run(context.Background()); err != nil && !errors.Is(err, loop.ErrStopped) {
			slog.Error("[Loop] stopped", "error", err)
		}
	}()

	opts := engine.DefaultOptions(w.ID(), w, rt.loop)
	opts.SourceMode = cfg.World.Source
	opts.PoolSize = cfg.Pool.Size
	opts.CacheTTL = cfg.Cache.TTL.Std()
	opts.SweepInterval = cfg.Cache.SweepInterval.Std()
	opts.Graph = cfg.HPA
	eng, err := engine.Open(opts)
	if err != nil {
		rt.loop.Stop()
		rt.wg.Wait()
		rt.closeJournal()
		return nil, fmt.Errorf("engine: %w", err)
	}
	rt.engine = eng
	return rt, nil
}

// Close shuts the engine down before the loop, so pending completions are
// still delivered.
func (rt *runtime) Close() {
	rt.engine.Close()
	rt.loop.Stop()
	rt.wg.Wait()
	rt.closeJournal()
}

func (rt *runtime) closeJournal() {
	if rt.journal == nil {
		return
	}
	if err := rt.journal.Close(); err != nil {
		slog.Error("[Journal] close failed", "error", err)
	}
}

// openJournal replays the edit journal over w and opens it for appending.
// A journal holding more than twice as many frames as edited positions is
// compacted first.
func openJournal(w *world.MemoryWorld, c config.WorldConfig) (*persistence.Journal, error) {
	stats, err := persistence.Replay(c.Journal, w)
	if err != nil {
		return nil, err
	}
	slog.Info("[Journal] replayed", "path", c.Journal, "frames", stats.Frames, "positions", stats.Positions, "truncated", stats.Truncated)

	j, err := persistence.Open(c.Journal, c.JournalSync.Std())
	if err != nil {
		return nil, err
	}
	if stats.Frames > 2*stats.Positions {
		n, err := j.Compact()
		if err != nil {
			j.Close()
			return nil, err
		}
		slog.Info("[Journal] compacted", "frames", n)
	}
	return j, nil
}
