// Package pool implements a concurrency- and rate-limited request
// dispatcher. Tasks are started in submission order when slots and
// window quota allow; overflow queues FIFO and is woken as resources
// free up. The pool neither retries nor interprets failures: a failed
// task frees its slot exactly like a success.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/murkotick/marketplace-sync-service/internal/pkg/clock"
	"github.com/murkotick/marketplace-sync-service/internal/pkg/future"
)

// RateConfig caps dispatches per fixed wall-clock window. The window
// counter resets when at least WindowSeconds have elapsed since the
// window start (>=, so a dispatch exactly at the boundary opens a new
// window). A zero RateConfig means unlimited.
type RateConfig struct {
	Amount        int
	WindowSeconds int
}

// Config configures a Pool. Concurrency 0 means unlimited.
type Config struct {
	Concurrency int
	Rate        RateConfig
}

// Validate rejects unusable configuration at construction time.
func (c Config) Validate() error {
	if c.Concurrency < 0 {
		return fmt.Errorf("pool: concurrency must not be negative, got %d", c.Concurrency)
	}
	if c.Rate.Amount < 0 || c.Rate.WindowSeconds < 0 {
		return fmt.Errorf("pool: rate values must not be negative, got amount=%d window=%ds",
			c.Rate.Amount, c.Rate.WindowSeconds)
	}
	if (c.Rate.Amount == 0) != (c.Rate.WindowSeconds == 0) {
		return fmt.Errorf("pool: rate amount and window must be set together, got amount=%d window=%ds",
			c.Rate.Amount, c.Rate.WindowSeconds)
	}
	return nil
}

func (c Config) rateLimited() bool {
	return c.Rate.Amount > 0
}

func (c Config) window() time.Duration {
	return time.Duration(c.Rate.WindowSeconds) * time.Second
}

type task struct {
	ctx context.Context
	run func(context.Context) (any, error)
	fut *future.Future[any]
}

// Pool dispatches asynchronous request tasks under the configured
// limits. The zero value is not usable; construct with New.
type Pool struct {
	cfg Config
	clk clock.Clock

	mu          sync.Mutex
	inFlight    int
	queue       []*task
	windowStart time.Time
	windowCount int
	waking      bool
}

// New constructs a Pool. Configuration errors are fatal here, never
// deferred to dispatch time.
func New(cfg Config, clk clock.Clock) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Pool{cfg: cfg, clk: clk}, nil
}

// Submit enqueues fn and returns a future for its outcome. fn runs on
// its own goroutine once a slot and window quota are available.
// Cancelling ctx before dispatch removes the task from the queue and
// rejects the future with the context error; after dispatch the
// context is fn's to observe.
func Submit[T any](p *Pool, ctx context.Context, fn func(context.Context) (T, error)) *future.Future[T] {
	inner := p.submit(ctx, func(c context.Context) (any, error) {
		return fn(c)
	})
	return future.Then(inner, func(v any) (T, error) {
		return v.(T), nil
	})
}

// InFlight returns the number of currently running tasks.
func (p *Pool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

// QueueLen returns the number of tasks waiting for dispatch.
func (p *Pool) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *Pool) submit(ctx context.Context, run func(context.Context) (any, error)) *future.Future[any] {
	if ctx == nil {
		ctx = context.Background()
	}
	t := &task{ctx: ctx, run: run, fut: future.New[any]()}

	p.mu.Lock()
	p.queue = append(p.queue, t)
	p.mu.Unlock()

	if ctx.Done() != nil {
		go p.watchCancel(t)
	}
	p.pump()
	return t.fut
}

// pump dispatches queued tasks from the head while resources allow,
// keeping submission order.
func (p *Pool) pump() {
	p.mu.Lock()
	var ready []*task
	for len(p.queue) > 0 {
		if !p.slotFreeLocked() {
			break
		}
		if !p.quotaFreeLocked() {
			// Slot free but quota exhausted: the waker retries at the
			// window boundary. This is the pool's only blocking point.
			p.ensureWakerLocked()
			break
		}
		t := p.queue[0]
		p.queue = p.queue[1:]
		p.inFlight++
		p.windowCount++
		ready = append(ready, t)
	}
	p.mu.Unlock()

	for _, t := range ready {
		go p.runTask(t)
	}
}

func (p *Pool) runTask(t *task) {
	v, err := p.invoke(t)
	if err != nil {
		t.fut.Reject(err)
	} else {
		t.fut.Resolve(v)
	}

	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()
	p.pump()
}

// invoke runs the task function with a panic guard. A panicking task
// rejects its future instead of taking down the process.
func (p *Pool) invoke(t *task) (v any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pool: task panic: %v", rec)
		}
	}()
	return t.run(t.ctx)
}

func (p *Pool) slotFreeLocked() bool {
	return p.cfg.Concurrency == 0 || p.inFlight < p.cfg.Concurrency
}

// quotaFreeLocked reports whether the current window has dispatch quota
// left, resetting the window first when it has elapsed.
func (p *Pool) quotaFreeLocked() bool {
	if !p.cfg.rateLimited() {
		return true
	}
	now := p.clk.Now()
	if now.Sub(p.windowStart) >= p.cfg.window() {
		p.windowStart = now
		p.windowCount = 0
	}
	return p.windowCount < p.cfg.Rate.Amount
}

func (p *Pool) ensureWakerLocked() {
	if p.waking || !p.cfg.rateLimited() {
		return
	}
	p.waking = true
	wait := p.windowStart.Add(p.cfg.window()).Sub(p.clk.Now())
	ch := p.clk.After(wait)
	go func() {
		<-ch
		p.mu.Lock()
		p.waking = false
		p.mu.Unlock()
		p.pump()
	}()
}

// watchCancel removes a still-queued task whose context was cancelled.
// A task already dispatched is left to its function; the completion
// path is identical either way, so queued successors still get woken.
func (p *Pool) watchCancel(t *task) {
	select {
	case <-t.ctx.Done():
		p.mu.Lock()
		removed := false
		for i, queued := range p.queue {
			if queued == t {
				p.queue = append(p.queue[:i], p.queue[i+1:]...)
				removed = true
				break
			}
		}
		p.mu.Unlock()
		if removed {
			t.fut.Reject(t.ctx.Err())
		}
	case <-t.fut.Done():
	}
}
