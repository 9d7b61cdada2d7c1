// Package loop models the authoritative single-threaded execution context of the
// host world.
//
// World mutation and result delivery happen on one goroutine: the Loop drains a
// queue of submitted functions in FIFO order. Heavy computation never runs here;
// it is handed to a worker pool and only its completion is marshalled back with
// Execute.
package loop

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
)

// ErrStopped is returned by Run when the loop was stopped explicitly.
var ErrStopped = errors.New("loop: stopped")

// Executor runs functions on the authoritative context.
type Executor interface {
	// Execute schedules fn. It never blocks the caller on fn itself.
	Execute(fn func())
}

// TryExecutor is an Executor that can refuse work, typically after shutdown.
type TryExecutor interface {
	Executor
	// TryExecute schedules fn and reports whether it was accepted.
	TryExecute(fn func()) bool
}

// ExecuteOrRun schedules fn on exec. When exec refuses it, fn runs inline on
// the calling goroutine instead, so completions are never lost to shutdown.
func ExecuteOrRun(exec Executor, fn func()) {
	if te, ok := exec.(TryExecutor); ok {
		if !te.TryExecute(fn) {
			fn()
		}
		return
	}
	exec.Execute(fn)
}

// Direct runs every function inline on the calling goroutine.
// Used when the caller already is the authoritative context (and in tests).
type Direct struct{}

// Execute runs fn immediately.
func (Direct) Execute(fn func()) { fn() }

// Loop is a FIFO task queue drained by a single goroutine.
type Loop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	stopped bool
}

// New creates a loop. Nothing runs until Run is called.
func New() *Loop {
	l := &Loop{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Execute enqueues fn. Functions submitted after Stop are dropped.
func (l *Loop) Execute(fn func()) {
	if !l.TryExecute(fn) {
		slog.Warn("loop: task submitted after stop, dropping")
	}
}

// TryExecute enqueues fn unless the loop has stopped.
func (l *Loop) TryExecute(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.cond.Signal()
	return true
}

// Run drains the queue on the calling goroutine until ctx is done or Stop is
// called. A panicking task is logged and does not kill the loop.
func (l *Loop) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		l.mu.Lock()
		l.stopped = true
		l.mu.Unlock()
		l.cond.Broadcast()
	})
	defer stop()

	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.stopped {
			l.cond.Wait()
		}
		if l.stopped {
			l.mu.Unlock()
			if err := ctx.Err(); err != nil {
				return err
			}
			return ErrStopped
		}
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			runSafe(fn)
		}
	}
}

// Stop makes Run return after the batch it is currently executing.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.cond.Broadcast()
}

// Pending reports the number of queued functions.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func runSafe(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("loop: task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}
