package pool

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrFutureTimeout is returned by GetWithTimeout when the future does not settle in time.
var ErrFutureTimeout = errors.New("pool: future timed out")

// Future is a single-assignment value that settles exactly once.
// Every reader observes the same value and error.
type Future[V any] struct {
	done  chan struct{}
	once  sync.Once
	value V
	err   error
}

func newFuture[V any]() *Future[V] {
	return &Future[V]{done: make(chan struct{})}
}

// resolve settles the future. Only the first call has any effect.
func (f *Future[V]) resolve(v V, err error) {
	f.once.Do(func() {
		f.value = v
		f.err = err
		close(f.done)
	})
}

// Done returns a channel that is closed once the future settles.
func (f *Future[V]) Done() <-chan struct{} {
	return f.done
}

// IsReady reports whether the future has settled.
func (f *Future[V]) IsReady() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get blocks until the future settles.
func (f *Future[V]) Get() (V, error) {
	<-f.done
	return f.value, f.err
}

// GetWithContext blocks until the future settles or ctx is done.
// A cancelled wait leaves the future untouched.
func (f *Future[V]) GetWithContext(ctx context.Context) (V, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// GetWithTimeout waits at most timeout for the future to settle.
func (f *Future[V]) GetWithTimeout(timeout time.Duration) (V, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.value, f.err
	case <-timer.C:
		var zero V
		return zero, ErrFutureTimeout
	}
}

// TryGet returns the settled value without blocking; ok is false while pending.
func (f *Future[V]) TryGet() (v V, err error, ok bool) {
	if !f.IsReady() {
		return v, nil, false
	}
	return f.value, f.err, true
}
