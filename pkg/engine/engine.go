// Package engine provides the high-level interface of voxpath.
//
// It wires the chunk cache, the bounded worker pool and the authoritative
// executor together. Searches are submitted to the pool, read only prefetched
// snapshots while they run, and complete their futures back on the executor.
//
// Basic usage:
//
//	opts := engine.DefaultOptions("overworld", host, exec)
//	eng, err := engine.Open(opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
//
//	fut := eng.FindPathAsync(ctx, from, to, 16, grid.DefaultParams())
//	fut.OnComplete(func(p *plan.Path, err error) { ... })
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/sanonone/voxpath/pkg/chunkcache"
	"github.com/sanonone/voxpath/pkg/future"
	"github.com/sanonone/voxpath/pkg/grid"
	"github.com/sanonone/voxpath/pkg/hpa"
	"github.com/sanonone/voxpath/pkg/loop"
	"github.com/sanonone/voxpath/pkg/metrics"
	"github.com/sanonone/voxpath/pkg/plan"
	"github.com/sanonone/voxpath/pkg/traverse"
	"github.com/sanonone/voxpath/pkg/workpool"
	"github.com/sanonone/voxpath/pkg/world"
)

// ErrNoBlockSource is returned by NewGraph when the engine has no concurrent
// reader of the live world.
var ErrNoBlockSource = errors.New("engine: no block source for hierarchical graphs")

// Options configures an Engine.
type Options struct {
	// WorldID names the world whose chunks are fetched.
	WorldID string

	// Host provides chunk snapshots. It must implement world.ChunkLoader,
	// world.AsyncChunkLoader or both.
	Host any

	// Blocks reads the live world and must be safe for concurrent use. It backs
	// hierarchical graphs. When nil and Host is a world.BlockSource, Host is used.
	Blocks world.BlockSource

	// Executor is the authoritative execution context. Nil means loop.Direct.
	Executor loop.Executor

	// SourceMode selects the chunk retrieval strategy (default: auto).
	SourceMode world.SourceMode

	// PoolSize bounds concurrent searches. 0 means one per logical core.
	PoolSize int

	// CacheTTL is how long a resolved snapshot stays cached after its last use.
	CacheTTL time.Duration

	// SweepInterval is how often expired snapshots are removed.
	// Set to 0 to disable the background sweep.
	SweepInterval time.Duration

	// MetricsInterval is how often pool gauges are published.
	// Default: 1 second.
	MetricsInterval time.Duration

	// Graph is the geometry of graphs created by NewGraph.
	Graph hpa.Config
}

// DefaultOptions returns a standard configuration for host.
//
// Defaults:
//   - SourceMode: auto (the host's native asynchronous loader when it has one)
//   - CacheTTL: 30s, swept every 10s
//   - PoolSize: one worker per logical core
func DefaultOptions(worldID string, host any, exec loop.Executor) Options {
	return Options{
		WorldID:         worldID,
		Host:            host,
		Executor:        exec,
		SourceMode:      world.ModeAuto,
		CacheTTL:        30 * time.Second,
		SweepInterval:   10 * time.Second,
		MetricsInterval: time.Second,
		Graph:           hpa.DefaultConfig(),
	}
}

// Engine is the main entry point of voxpath.
//
// Use Open to create an Engine and Close to shut it down.
type Engine struct {
	opts   Options
	exec   loop.Executor
	source world.ChunkSource
	cache  *chunkcache.Cache
	pool   *workpool.Pool
	blocks world.BlockSource

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Open probes the host once for its chunk retrieval capability, then starts
// the cache sweeper, the worker pool and the metrics publisher.
func Open(opts Options) (*Engine, error) {
	exec := opts.Executor
	if exec == nil {
		exec = loop.Direct{}
	}
	src, err := world.SelectSource(opts.Host, exec, opts.SourceMode)
	if err != nil {
		return nil, fmt.Errorf("failed to select chunk source: %w", err)
	}

	cacheOpts := chunkcache.DefaultOptions()
	if opts.CacheTTL > 0 {
		cacheOpts.TTL = opts.CacheTTL
	}
	blocks := opts.Blocks
	if blocks == nil {
		blocks, _ = opts.Host.(world.BlockSource)
	}
	if opts.Graph == (hpa.Config{}) {
		opts.Graph = hpa.DefaultConfig()
	}

	e := &Engine{
		opts:   opts,
		exec:   exec,
		source: src,
		cache:  chunkcache.New(src, cacheOpts),
		pool:   workpool.New(opts.PoolSize),
		blocks: blocks,
		closed: make(chan struct{}),
	}
	if opts.SweepInterval > 0 {
		e.cache.StartSweeper(opts.SweepInterval)
	}

	e.wg.Add(1)
	go e.backgroundTasks()

	slog.Info("[Engine] opened",
		"world", opts.WorldID,
		"source", src.Mode(),
		"workers", e.pool.Size(),
		"ttl", cacheOpts.TTL)
	return e, nil
}

// Close stops background work, cancels running searches and waits for them.
// Futures of cancelled searches still complete, with the cancellation error.
// Close before stopping the executor so completions are delivered on it; an
// executor implementing loop.TryExecutor that has already stopped gets them
// run on the worker instead.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		close(e.closed)
		e.wg.Wait()
		e.pool.Close()
		e.cache.Close()
		slog.Info("[Engine] closed", "world", e.opts.WorldID)
	})
	return nil
}

func (e *Engine) backgroundTasks() {
	defer e.wg.Done()
	interval := e.opts.MetricsInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.closed:
			return
		case <-ticker.C:
			metrics.PoolWorkers.WithLabelValues("running").Set(float64(e.pool.Running()))
			metrics.PoolWorkers.WithLabelValues("blocked").Set(float64(e.pool.Blocked()))
		}
	}
}

// WorldID returns the world the engine serves.
func (e *Engine) WorldID() string { return e.opts.WorldID }

// Cache returns the chunk cache.
func (e *Engine) Cache() *chunkcache.Cache { return e.cache }

// Pool returns the worker pool.
func (e *Engine) Pool() *workpool.Pool { return e.pool }

// Executor returns the authoritative execution context.
func (e *Engine) Executor() loop.Executor { return e.exec }

// SourceMode returns the chunk retrieval strategy chosen at Open.
func (e *Engine) SourceMode() world.SourceMode { return e.source.Mode() }

// NewGraph creates a hierarchical graph over the engine's block source.
// A nil chain selects traverse.DefaultChain.
func (e *Engine) NewGraph(chain *traverse.Chain) (*hpa.Graph, error) {
	if e.blocks == nil {
		return nil, ErrNoBlockSource
	}
	return hpa.New(e.blocks, chain, e.opts.Graph), nil
}

// submit runs task on the pool and completes the returned future on the
// executor, or on the worker when the executor no longer accepts work.
// Cancelling the future cancels the task's context.
func submit[T any](e *Engine, ctx context.Context, fail T, task func(ctx context.Context) (T, error)) *future.Future[T] {
	fut := future.New[T]()
	taskCtx, cancel := context.WithCancel(ctx)
	fut.OnComplete(func(T, error) { cancel() })

	deliver := func(v T, err error) {
		loop.ExecuteOrRun(e.exec, func() { fut.Complete(v, err) })
	}
	err := e.pool.Submit(taskCtx, func(ctx context.Context) {
		v, err := task(ctx)
		deliver(v, err)
	})
	if err != nil {
		cancel()
		deliver(fail, err)
	}
	return fut
}

// FindPathAsync searches from -> to on the worker pool. The chunks within
// prefetchRadius of both endpoints are fetched first; the search reads
// nothing else, so cells outside that area count as blocked. An unreachable
// goal resolves to a failed path with a nil error.
func (e *Engine) FindPathAsync(ctx context.Context, from, to world.BlockPos, prefetchRadius int, params grid.Params) *future.Future[*plan.Path] {
	return submit(e, ctx, plan.FailedPath(), func(ctx context.Context) (*plan.Path, error) {
		region, err := e.cache.Prefetch(ctx, e.opts.WorldID,
			chunkcache.RectAround(from, prefetchRadius),
			chunkcache.RectAround(to, prefetchRadius))
		if err != nil {
			observe(kindGrid, time.Now(), false, err)
			return plan.FailedPath(), err
		}
		defer region.Release()
		return RunFully(ctx, region, to, from, params)
	})
}

// FindHierarchicalPathAsync loads every graph region between the endpoints,
// applies pending patches and runs a hierarchical query on the worker pool.
// The prefetch covers at least the endpoints' regions. No path resolves to an
// empty plan with a nil error.
func (e *Engine) FindHierarchicalPathAsync(ctx context.Context, g *hpa.Graph, from, to world.BlockPos, prefetchRadius int) *future.Future[plan.Plan] {
	var empty plan.Plan = plan.NewLazy(nil)
	return submit(e, ctx, empty, func(ctx context.Context) (plan.Plan, error) {
		res, err := e.Hierarchical(ctx, g, from, to, prefetchRadius)
		if err != nil {
			return empty, err
		}
		return res.Plan, nil
	})
}

// FindHierarchicalAsync is FindHierarchicalPathAsync resolving to the full
// query result.
func (e *Engine) FindHierarchicalAsync(ctx context.Context, g *hpa.Graph, from, to world.BlockPos, prefetchRadius int) *future.Future[hpa.Result] {
	return submit(e, ctx, failedResult(), func(ctx context.Context) (hpa.Result, error) {
		return e.Hierarchical(ctx, g, from, to, prefetchRadius)
	})
}

// Hierarchical is the body of FindHierarchicalPathAsync, run on the calling
// goroutine. It returns the full query result.
func (e *Engine) Hierarchical(ctx context.Context, g *hpa.Graph, from, to world.BlockPos, prefetchRadius int) (hpa.Result, error) {
	radius := max(prefetchRadius, g.Config().RegionSize())
	region, err := e.cache.Prefetch(ctx, e.opts.WorldID,
		chunkcache.RectAround(from, radius),
		chunkcache.RectAround(to, radius))
	if err != nil {
		observe(kindHierarchical, time.Now(), false, err)
		return failedResult(), err
	}
	defer region.Release()

	start := time.Now()
	LoadSpan(ctx, g, from, to)
	g.ApplyPendingPatchesContext(ctx)
	res, err := g.PathfindIn(ctx, region, from, to)
	observe(kindHierarchical, start, !res.Found(), err)
	return res, err
}

func failedResult() hpa.Result {
	return hpa.Result{Cost: math.Inf(1), Level: -1, Plan: plan.NewLazy(nil)}
}

// BlockWriter mutates the authoritative world. Engine.SetBlock only calls it on
// the executor.
type BlockWriter interface {
	SetBlock(p world.BlockPos, m world.Material) error
}

// SetBlock applies a block change on the executor and waits for it. On success
// the cached snapshot of the block's chunk is dropped, even while a running
// search still reads it, and every graph is marked dirty around p. It reports whether any loaded graph region became dirty.
func (e *Engine) SetBlock(ctx context.Context, w BlockWriter, p world.BlockPos, m world.Material, graphs ...*hpa.Graph) (bool, error) {
	done := future.New[struct{}]()
	e.exec.Execute(func() {
		done.Complete(struct{}{}, w.SetBlock(p, m))
	})
	if _, err := done.Get(ctx); err != nil {
		return false, fmt.Errorf("set block %s: %w", p, err)
	}

	key := world.ChunkKey{World: e.opts.WorldID, X: world.ChunkCoord(p.X), Z: world.ChunkCoord(p.Z)}
	if e.cache.Invalidate(key) {
		slog.Debug("[Engine] dropped cached chunk after edit", "chunk", key.String(), "block", p.String())
	}
	dirty := false
	for _, g := range graphs {
		if g.MarkDirtyBlock(p) {
			dirty = true
		}
	}
	return dirty, nil
}

// LoadSpan loads every graph region overlapping the rectangle spanned by a
// and b.
func LoadSpan(ctx context.Context, g *hpa.Graph, a, b world.BlockPos) int {
	r := g.Config().RegionSize()
	lo, hi := g.RegionOf(min(a.X, b.X), min(a.Z, b.Z)), g.RegionOf(max(a.X, b.X), max(a.Z, b.Z))
	loaded := 0
	for rx := lo.X; rx <= hi.X; rx++ {
		for rz := lo.Z; rz <= hi.Z; rz++ {
			if g.AddClustersContext(ctx, rx*r, rz*r) {
				loaded++
			}
		}
	}
	return loaded
}

// RunFully is a synchronous local search from start to goal, for callers that
// already run off the authoritative context. src must be safe to read from the
// calling goroutine.
func RunFully(ctx context.Context, src world.BlockSource, goal, start world.BlockPos, params grid.Params) (*plan.Path, error) {
	t := time.Now()
	p, err := grid.RunFully(ctx, src, start, goal, params)
	observe(kindGrid, t, p.Failed(), err)
	return p, err
}

const (
	kindGrid         = "grid"
	kindHierarchical = "hierarchical"
)

func observe(kind string, start time.Time, failed bool, err error) {
	outcome := "found"
	switch {
	case err != nil:
		outcome = "error"
	case failed:
		outcome = "unreachable"
	}
	metrics.SearchesTotal.WithLabelValues(kind, outcome).Inc()
	if err == nil {
		metrics.SearchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}
}
