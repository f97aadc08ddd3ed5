// Package routertest provides test doubles for the router package.
package routertest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/flemzord/seline/internal/router"
)

// FakeClock is a manual router.Clock. Timers fire only from Advance or
// FakeTimer.Fire, on the calling goroutine.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*FakeTimer
}

// NewFakeClock creates a clock set to start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// FakeTimer is a timer created by FakeClock.
type FakeTimer struct {
	clock   *FakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules f to run once the clock has advanced by d.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) router.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &FakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward and runs every live timer that became
// due, in deadline order.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*FakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	slices.SortStableFunc(due, func(a, b *FakeTimer) int { return a.at.Compare(b.at) })
	for _, t := range due {
		t.f()
	}
}

// Timers returns every timer created so far, in creation order.
func (c *FakeClock) Timers() []*FakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.timers)
}

// Live returns the number of timers neither stopped nor fired.
func (c *FakeClock) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Stop prevents the timer from firing through Advance. It reports whether
// the call stopped a live timer.
func (t *FakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Fire runs the timer's task even if it was stopped, which simulates a
// cancellation that lost the race against the fire.
func (t *FakeTimer) Fire() {
	t.clock.mu.Lock()
	t.fired = true
	t.clock.mu.Unlock()
	t.f()
}

// Stopped reports whether Stop was called on a live timer.
func (t *FakeTimer) Stopped() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	return t.stopped
}

// Recorder is a router.BatchHandler that records every batch it receives.
type Recorder struct {
	// HandleFunc, if set, runs after the batch is recorded and waiters
	// are woken, so WaitFor sees a batch whose handler is still blocked.
	HandleFunc func(ctx context.Context, b router.Batch)

	mu      sync.Mutex
	batches []router.Batch
	notify  chan struct{}
}

// NewRecorder creates a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1024)}
}

// HandleBatch records b, then runs HandleFunc.
func (r *Recorder) HandleBatch(ctx context.Context, b router.Batch) {
	r.mu.Lock()
	r.batches = append(r.batches, b)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
	if r.HandleFunc != nil {
		r.HandleFunc(ctx, b)
	}
}

// Batches returns a copy of the recorded batches.
func (r *Recorder) Batches() []router.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.batches)
}

// WaitFor blocks until at least n batches were recorded or timeout elapses.
// It reports whether n was reached.
func (r *Recorder) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		r.mu.Lock()
		got := len(r.batches)
		r.mu.Unlock()
		if got >= n {
			return true
		}
		select {
		case <-r.notify:
		case <-deadline:
			return false
		}
	}
}

// Interface guards.
var (
	_ router.Clock        = (*FakeClock)(nil)
	_ router.Timer        = (*FakeTimer)(nil)
	_ router.BatchHandler = (*Recorder)(nil)
)
