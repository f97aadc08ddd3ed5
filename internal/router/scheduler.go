package router

import (
	"log/slog"
	"sync"
	"time"

	"github.com/flemzord/seline/internal/metrics"
	"github.com/google/uuid"
)

const defaultWindow = 2 * time.Second

// Clock abstracts time for the scheduler.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SystemClock is the wall clock backed by time.AfterFunc.
var SystemClock Clock = realClock{}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	// Window is the quiet period after the last fragment before a flush.
	Window time.Duration

	// Dispatch hands a taken batch off for processing. It must not block
	// and returns false when the batch could not be accepted.
	Dispatch func(Batch) bool

	// OnBurstStart, if set, is called asynchronously when a fragment
	// opens a new burst for a user.
	OnBurstStart func(userID string)

	Clock   Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Window <= 0 {
		c.Window = defaultWindow
	}
	if c.Clock == nil {
		c.Clock = SystemClock
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Scheduler implements the debounce contract on top of Buffers: a flush
// fires only after Window without a new fragment for that user, and every
// fragment pushes the flush back.
//
// Each append tags its timer with a fresh generation. A firing timer whose
// generation is no longer current is a superseded burst and does nothing,
// which keeps the flush exactly-once whether or not cancellation won the
// race against the fire.
type Scheduler struct {
	cfg     SchedulerConfig
	buffers *Buffers

	// mu orders fires and appends against Close: both hold the read side,
	// Close takes the write side once.
	mu     sync.RWMutex
	closed bool
}

// NewScheduler creates a Scheduler with its own buffer registry.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	cfg = cfg.withDefaults()
	return &Scheduler{
		cfg:     cfg,
		buffers: NewBuffers(cfg.Clock.Now),
	}
}

// Buffers returns the registry owned by the scheduler.
func (s *Scheduler) Buffers() *Buffers {
	return s.buffers
}

// Append buffers a fragment and (re)arms the user's flush timer.
func (s *Scheduler) Append(f Fragment) error {
	if f.UserID == "" || f.Text == "" {
		return ErrInvalidFragment
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrRouterStopped
	}

	first := s.buffers.Append(f, func(generation uint64) Timer {
		return s.cfg.Clock.AfterFunc(s.cfg.Window, func() {
			s.fire(f.UserID, generation, metrics.FlushDispatched)
		})
	})
	s.cfg.Metrics.Fragment()

	if first {
		s.cfg.Logger.Debug("router: burst started", "user", f.UserID)
		if s.cfg.OnBurstStart != nil {
			go s.cfg.OnBurstStart(f.UserID)
		}
	}
	return nil
}

// fire is the deferred flush task of one generation. It reports whether a
// batch was handed off.
func (s *Scheduler) fire(userID string, generation uint64, outcome string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		// Close drains whatever is still pending.
		return false
	}

	batch, ok := s.buffers.takeIfCurrent(userID, generation)
	if !ok {
		s.cfg.Metrics.Flush(metrics.FlushStale)
		s.cfg.Logger.Debug("router: stale flush ignored", "user", userID, "generation", generation)
		return false
	}
	if batch.Empty() {
		s.cfg.Metrics.Flush(metrics.FlushEmpty)
		return false
	}

	batch.ID = uuid.NewString()
	if s.cfg.Dispatch == nil || !s.cfg.Dispatch(batch) {
		s.buffers.restore(batch)
		s.cfg.Metrics.Flush(metrics.FlushRequeued)
		s.cfg.Logger.Warn("router: batch hand-off failed, kept for sweep",
			"user", userID,
			"fragments", len(batch.Fragments),
			"error", ErrInboxFull,
		)
		return false
	}

	s.cfg.Metrics.Flush(outcome)
	s.cfg.Logger.Info("router: batch flushed",
		"user", userID,
		"batch", batch.ID,
		"fragments", len(batch.Fragments),
	)
	return true
}

// Sweep flushes buffers whose window elapsed more than grace ago without
// a successful hand-off. It is the backstop for lost timers and requeued
// batches, and returns the number of batches handed off.
func (s *Scheduler) Sweep(grace time.Duration) int {
	cutoff := s.cfg.Clock.Now().Add(-(s.cfg.Window + grace))
	flushed := 0
	for _, ref := range s.buffers.overdue(cutoff) {
		if s.fire(ref.userID, ref.generation, metrics.FlushSwept) {
			flushed++
		}
	}
	s.cfg.Metrics.SetPending(s.buffers.Pending())
	if flushed > 0 {
		s.cfg.Logger.Info("router: sweep flushed stranded batches", "count", flushed)
	}
	return flushed
}

// Close stops accepting fragments, cancels every timer and returns the
// batches still pending so the caller can process them. It is safe to call
// more than once; later calls return nil.
func (s *Scheduler) Close() []Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	batches := s.buffers.drainAll()
	for i := range batches {
		batches[i].ID = uuid.NewString()
	}
	return batches
}
