// Package workpool runs search work on a bounded set of goroutines.
//
// The bound is a weighted semaphore: at most Size tasks hold a slot at once.
// A task that must wait for another asynchronous result (a chunk snapshot still
// being fetched, for example) wraps the wait in ManagedBlock, which hands its slot
// back for the duration of the wait. Without this, a pool whose every slot is held
// by waiters would deadlock as soon as the work they wait on needs a slot too.
package workpool

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/klauspost/cpuid/v2"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("workpool: closed")

type slotKey struct{}

// Pool is a bounded goroutine pool.
type Pool struct {
	sem  *semaphore.Weighted
	size int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	running atomic.Int64
	blocked atomic.Int64
}

// DefaultSize probes the CPU once and returns the number of logical cores,
// falling back to runtime.NumCPU when the probe reports nothing.
func DefaultSize() int {
	if n := cpuid.CPU.LogicalCores; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// New creates a pool with size slots. size <= 0 selects DefaultSize.
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		size:   size,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Size returns the number of slots.
func (p *Pool) Size() int { return p.size }

// Running returns the number of tasks currently holding a slot.
func (p *Pool) Running() int { return int(p.running.Load()) }

// Blocked returns the number of tasks parked in ManagedBlock.
func (p *Pool) Blocked() int { return int(p.blocked.Load()) }

// Submit schedules task without blocking the caller. The task receives a context
// that is cancelled when either ctx or the pool is done. If the pool shuts down
// before a slot frees up, task still runs (without a slot) with the cancelled
// context so it can resolve whatever its caller is waiting on.
func (p *Pool) Submit(ctx context.Context, task func(ctx context.Context)) error {
	if p.closed.Load() {
		return ErrClosed
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		taskCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(p.ctx, cancel)
		defer stop()

		if err := p.sem.Acquire(taskCtx, 1); err != nil {
			task(taskCtx)
			return
		}
		// The AfterFunc above cancels on its own goroutine; a task that wins
		// the slot freed by Close must not start with a live context.
		if p.ctx.Err() != nil {
			cancel()
		}
		p.running.Add(1)
		defer func() {
			p.running.Add(-1)
			p.sem.Release(1)
		}()
		task(context.WithValue(taskCtx, slotKey{}, p))
	}()
	return nil
}

// ManagedBlock runs wait, a blocking call, on behalf of a pool task. If ctx
// belongs to a task of this pool the task's slot is released while wait runs and
// reacquired afterwards. Called outside a pool task it simply runs wait.
func ManagedBlock(ctx context.Context, wait func() error) error {
	p, ok := ctx.Value(slotKey{}).(*Pool)
	if !ok {
		return wait()
	}
	p.running.Add(-1)
	p.blocked.Add(1)
	p.sem.Release(1)

	err := wait()

	// The slot must come back even if ctx is cancelled: the task's deferred
	// release would otherwise over-release the semaphore.
	_ = p.sem.Acquire(context.Background(), 1)
	p.blocked.Add(-1)
	p.running.Add(1)
	return err
}

// Close stops accepting work, cancels queued and running tasks and waits for
// them to return.
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.cancel()
	p.wg.Wait()
}
