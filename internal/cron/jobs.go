package cron

import (
	"context"
	"fmt"
	"log/slog"
)

// Sweeper flushes buffers whose debounce window elapsed without a flush.
type Sweeper interface {
	Sweep() int
}

// Evicter drops idle, empty buffers.
type Evicter interface {
	EvictIdle() int
}

// Prober health-checks unavailable providers.
type Prober interface {
	Probe(ctx context.Context) int
}

// SweepJob is the backstop for batches stranded by a failed hand-off.
type SweepJob struct {
	Router       Sweeper
	Logger       *slog.Logger
	ScheduleExpr string // empty = "@every 30s"
}

var _ Job = (*SweepJob)(nil)

// Name implements Job.
func (j *SweepJob) Name() string { return "buffer_sweep" }

// Schedule implements Job.
func (j *SweepJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "@every 30s"
}

// Run implements Job.
func (j *SweepJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: sweep cancelled: %w", ctx.Err())
	}
	if n := j.Router.Sweep(); n > 0 {
		j.Logger.Info("cron: flushed stranded buffers", "count", n)
	}
	return nil
}

// EvictionJob removes buffers that stayed empty past the idle limit.
type EvictionJob struct {
	Router       Evicter
	Logger       *slog.Logger
	ScheduleExpr string // empty = "*/5 * * * *"
}

var _ Job = (*EvictionJob)(nil)

// Name implements Job.
func (j *EvictionJob) Name() string { return "buffer_eviction" }

// Schedule implements Job.
func (j *EvictionJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run implements Job.
func (j *EvictionJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: eviction cancelled: %w", ctx.Err())
	}
	if n := j.Router.EvictIdle(); n > 0 {
		j.Logger.Info("cron: evicted idle buffers", "count", n)
	}
	return nil
}

// ProbeJob revives providers whose cooldown elapsed.
type ProbeJob struct {
	Providers    Prober
	Logger       *slog.Logger
	ScheduleExpr string // empty = "@every 1m"
}

var _ Job = (*ProbeJob)(nil)

// Name implements Job.
func (j *ProbeJob) Name() string { return "provider_probe" }

// Schedule implements Job.
func (j *ProbeJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "@every 1m"
}

// Run implements Job.
func (j *ProbeJob) Run(ctx context.Context) error {
	if n := j.Providers.Probe(ctx); n > 0 {
		j.Logger.Info("cron: providers revived", "count", n)
	}
	return ctx.Err()
}
