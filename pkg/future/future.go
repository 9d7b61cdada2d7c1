// Package future provides a single-assignment result container shared by every
// party waiting on the same asynchronous computation.
package future

import (
	"context"
	"errors"
	"sync"
)

// ErrCancelled is the error a future resolves with after Cancel.
var ErrCancelled = errors.New("future: cancelled")

// Future holds a value of type T that becomes available exactly once.
// The zero value is not usable; create futures with New or Resolved.
type Future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	value     T
	err       error
	resolved  bool
	callbacks []func(T, error)
}

// New returns an unresolved future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future that already holds value and err.
func Resolved[T any](value T, err error) *Future[T] {
	f := New[T]()
	f.Complete(value, err)
	return f
}

// Complete resolves the future. Only the first call has an effect; it reports
// whether this call won. Callbacks registered with OnComplete run on the calling
// goroutine, in registration order.
func (f *Future[T]) Complete(value T, err error) bool {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		return false
	}
	f.value = value
	f.err = err
	f.resolved = true
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(value, err)
	}
	return true
}

// Cancel resolves the future with ErrCancelled if it is still pending.
// The producer only learns about it through OnComplete; a result it delivers
// later is dropped.
func (f *Future[T]) Cancel() bool {
	var zero T
	return f.Complete(zero, ErrCancelled)
}

// Done is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// IsDone reports whether the future is resolved.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get blocks until the future is resolved or ctx is done.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryGet returns the resolved value without blocking. ok is false while pending.
func (f *Future[T]) TryGet() (value T, ok bool, err error) {
	if !f.IsDone() {
		return value, false, nil
	}
	return f.value, true, f.err
}

// OnComplete registers cb. If the future is already resolved cb runs immediately
// on the calling goroutine.
func (f *Future[T]) OnComplete(cb func(T, error)) {
	f.mu.Lock()
	if !f.resolved {
		f.callbacks = append(f.callbacks, cb)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	cb(f.value, f.err)
}
