package future

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// State is the terminal state of an awaited future.
type State int

const (
	StateFulfilled State = iota + 1
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateFulfilled:
		return "fulfilled"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// SettleResult records one input future's outcome. Index matches the
// position of the future in the submitted slice regardless of
// completion order.
type SettleResult[T any] struct {
	Index  int
	State  State
	Value  T
	Reason error
}

// AggregateError collects the rejection reasons of several futures.
type AggregateError struct {
	Reasons []error
}

func (e *AggregateError) Error() string {
	if len(e.Reasons) == 0 {
		return "aggregate: no reasons"
	}
	msgs := make([]string, len(e.Reasons))
	for i, r := range e.Reasons {
		msgs[i] = r.Error()
	}
	return fmt.Sprintf("aggregate: %d rejected: %s", len(e.Reasons), strings.Join(msgs, "; "))
}

// Unwrap exposes the individual reasons to errors.Is/As.
func (e *AggregateError) Unwrap() []error {
	return e.Reasons
}

// All waits for every future and fulfills with the values in input
// order. It rejects as soon as any input rejects, propagating that
// reason; remaining waits are abandoned via the group context.
func All[T any](ctx context.Context, fs []*Future[T]) *Future[[]T] {
	out := New[[]T]()
	vals := make([]T, len(fs))

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range fs {
		g.Go(func() error {
			v, err := f.Await(gctx)
			if err != nil {
				return err
			}
			vals[i] = v
			return nil
		})
	}

	go func() {
		if err := g.Wait(); err != nil {
			out.Reject(err)
			return
		}
		out.Resolve(vals)
	}()
	return out
}

// Settle waits for every future and never short-circuits on individual
// failures. The result slice is index-aligned to the input. If every
// input rejected, the settle itself rejects with an AggregateError;
// otherwise it fulfills with the mixed list.
func Settle[T any](ctx context.Context, fs []*Future[T]) *Future[[]SettleResult[T]] {
	out := New[[]SettleResult[T]]()
	results := make([]SettleResult[T], len(fs))

	var wg sync.WaitGroup
	wg.Add(len(fs))
	for i, f := range fs {
		go func() {
			defer wg.Done()
			v, err := f.Await(ctx)
			if err != nil {
				results[i] = SettleResult[T]{Index: i, State: StateRejected, Reason: err}
				return
			}
			results[i] = SettleResult[T]{Index: i, State: StateFulfilled, Value: v}
		}()
	}

	go func() {
		wg.Wait()
		if len(fs) > 0 {
			rejected := 0
			reasons := make([]error, 0, len(fs))
			for _, r := range results {
				if r.State == StateRejected {
					rejected++
					reasons = append(reasons, r.Reason)
				}
			}
			if rejected == len(fs) {
				out.Reject(&AggregateError{Reasons: reasons})
				return
			}
		}
		out.Resolve(results)
	}()
	return out
}

// Some fulfills with the first count fulfilled values, in fulfillment
// order. Once the target is reached the remaining sibling waits are
// cancelled. If count successes become impossible, Some rejects with an
// AggregateError of the rejection reasons seen so far.
func Some[T any](ctx context.Context, fs []*Future[T], count int) *Future[[]T] {
	out := New[[]T]()
	if count <= 0 {
		out.Resolve(nil)
		return out
	}
	if count > len(fs) {
		out.Reject(&AggregateError{Reasons: []error{
			fmt.Errorf("some: need %d results from %d futures", count, len(fs)),
		}})
		return out
	}

	type outcome struct {
		val T
		err error
	}
	ch := make(chan outcome, len(fs))
	waitCtx, cancel := context.WithCancel(ctx)

	for _, f := range fs {
		go func() {
			v, err := f.Await(waitCtx)
			ch <- outcome{val: v, err: err}
		}()
	}

	go func() {
		defer cancel()
		vals := make([]T, 0, count)
		var reasons []error
		for range fs {
			o := <-ch
			if o.err != nil {
				reasons = append(reasons, o.err)
				// More rejections than we can absorb: no way to reach count.
				if len(fs)-len(reasons) < count {
					out.Reject(&AggregateError{Reasons: reasons})
					return
				}
				continue
			}
			vals = append(vals, o.val)
			if len(vals) == count {
				out.Resolve(vals)
				return
			}
		}
	}()
	return out
}

// Any is Some(1) unwrapped to the single fulfilled value.
func Any[T any](ctx context.Context, fs []*Future[T]) *Future[T] {
	return Then(Some(ctx, fs, 1), func(vals []T) (T, error) {
		return vals[0], nil
	})
}
