// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/flemzord/seline/internal/cron"
)

// MockJob is a configurable test double for cron.Job.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	mu    sync.Mutex
	calls int
}

var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job and increments the call counter.
func (m *MockJob) Run(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// CallCount returns the number of times Run was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockRouter counts Sweep and EvictIdle calls.
type MockRouter struct {
	SweepFunc func() int
	EvictFunc func() int

	SweepCalls atomic.Int32
	EvictCalls atomic.Int32
}

var (
	_ cron.Sweeper = (*MockRouter)(nil)
	_ cron.Evicter = (*MockRouter)(nil)
)

// Sweep implements cron.Sweeper.
func (m *MockRouter) Sweep() int {
	m.SweepCalls.Add(1)
	if m.SweepFunc != nil {
		return m.SweepFunc()
	}
	return 0
}

// EvictIdle implements cron.Evicter.
func (m *MockRouter) EvictIdle() int {
	m.EvictCalls.Add(1)
	if m.EvictFunc != nil {
		return m.EvictFunc()
	}
	return 0
}

// ProberFunc adapts a function to cron.Prober.
type ProberFunc func(ctx context.Context) int

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context) int { return f(ctx) }
