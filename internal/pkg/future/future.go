// Package future provides a single-assignment asynchronous result cell
// and the aggregation combinators the sync pipeline is built on.
package future

import (
	"context"
	"errors"
	"sync"
)

// ErrNilReason is substituted when a future is rejected with a nil error,
// so that rejected futures always carry a non-nil reason.
var ErrNilReason = errors.New("future: rejected with nil reason")

// Future is a single-assignment asynchronous result cell. It is resolved
// or rejected exactly once; later attempts are ignored. All methods are
// safe for concurrent use.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

// New creates an unsettled future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved creates a future already fulfilled with v.
func Resolved[T any](v T) *Future[T] {
	f := New[T]()
	f.Resolve(v)
	return f
}

// Rejected creates a future already rejected with err.
func Rejected[T any](err error) *Future[T] {
	f := New[T]()
	f.Reject(err)
	return f
}

// Resolve fulfills the future with v. Returns false if the future was
// already settled.
func (f *Future[T]) Resolve(v T) bool {
	settled := false
	f.once.Do(func() {
		f.val = v
		close(f.done)
		settled = true
	})
	return settled
}

// Reject settles the future with err. Returns false if the future was
// already settled.
func (f *Future[T]) Reject(err error) bool {
	if err == nil {
		err = ErrNilReason
	}
	settled := false
	f.once.Do(func() {
		f.err = err
		close(f.done)
		settled = true
	})
	return settled
}

// Done returns a channel closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the future has been resolved or rejected.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result returns the settled value or rejection reason. It must only be
// called after Done is closed; calling it earlier returns zero values.
func (f *Future[T]) Result() (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	default:
		var zero T
		return zero, nil
	}
}

// Await blocks until the future settles or ctx is cancelled. A cancelled
// wait does not settle the future itself.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Go runs fn in its own goroutine and returns a future settled with its
// outcome.
func Go[T any](fn func() (T, error)) *Future[T] {
	f := New[T]()
	go func() {
		v, err := fn()
		if err != nil {
			f.Reject(err)
			return
		}
		f.Resolve(v)
	}()
	return f
}

// Then chains a continuation onto f. The returned future settles with
// fn's outcome once f fulfills, or propagates f's rejection unchanged.
func Then[A, B any](f *Future[A], fn func(A) (B, error)) *Future[B] {
	out := New[B]()
	go func() {
		<-f.Done()
		v, err := f.Result()
		if err != nil {
			out.Reject(err)
			return
		}
		b, err := fn(v)
		if err != nil {
			out.Reject(err)
			return
		}
		out.Resolve(b)
	}()
	return out
}
