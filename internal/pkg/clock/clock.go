package clock

import (
	"sync"
	"time"
)

// Clock is a small abstraction for obtaining the current time and
// waiting for it to pass. Use this in your application code to make
// time testable.
type Clock interface {
	Now() time.Time

	// After returns a channel that receives the clock's time once at
	// least d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// RealClock returns the real current time.
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// After waits on the wall clock.
func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// FakeClock is a controllable clock for tests. Waiters registered via
// After fire when Advance/Set moves the clock past their deadline.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

// NewFake creates a FakeClock set to the given time (expected in UTC).
func NewFake(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

// Now returns the fake current time.
func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After registers a waiter relative to the fake current time.
// A non-positive duration fires immediately.
func (f *FakeClock) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- f.now
		return ch
	}
	f.waiters = append(f.waiters, fakeWaiter{deadline: f.now.Add(d), ch: ch})
	return ch
}

// Set sets the fake clock to a specific time and fires due waiters.
func (f *FakeClock) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.fireLocked()
	f.mu.Unlock()
}

// Advance moves the fake clock forward by duration d and fires due waiters.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.fireLocked()
	f.mu.Unlock()
}

func (f *FakeClock) fireLocked() {
	remaining := f.waiters[:0]
	for _, w := range f.waiters {
		if !w.deadline.After(f.now) {
			w.ch <- f.now
		} else {
			remaining = append(remaining, w)
		}
	}
	f.waiters = remaining
}
