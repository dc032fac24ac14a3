package streams

import (
	"context"
	"sync"
)

// FutureState is the lifecycle position of a Future.
type FutureState int

const (
	Pending FutureState = iota
	Resolved
	Aborted
)

func (s FutureState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Future is a single-resolution promise. It moves from Pending to exactly
// one of Resolved or Aborted; later attempts to settle it are ignored.
type Future[T any] struct {
	mu    sync.Mutex
	state FutureState
	value T
	err   error
	done  chan struct{}
	// release withdraws the registration backing the future.
	release func()
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(v T) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Pending {
		return false
	}
	f.state, f.value = Resolved, v
	close(f.done)
	return true
}

func (f *Future[T]) abort(err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Pending {
		return false
	}
	f.state, f.err = Aborted, err
	close(f.done)
	return true
}

// Done is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

func (f *Future[T]) State() FutureState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Result returns the outcome without blocking, or ErrPending.
func (f *Future[T]) Result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Pending {
		var zero T
		return zero, ErrPending
	}
	return f.value, f.err
}

// Cancel gives up on a pending future: it is aborted with an
// *AbortedWaitError carrying context.Canceled and its registration is
// dropped. Settled futures are left as they are.
func (f *Future[T]) Cancel() {
	f.abort(&AbortedWaitError{Cause: context.Canceled})
	if f.release != nil {
		f.release()
	}
}

// Wait blocks until the future settles or ctx ends. Giving up on ctx leaves
// the future pending; call Cancel to withdraw it.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
