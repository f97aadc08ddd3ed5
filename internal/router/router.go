package router

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/seline/internal/metrics"
)

const (
	defaultInboxSize  = 256
	defaultRunTimeout = 2 * time.Minute
	defaultSweepGrace = 5 * time.Second
	defaultMaxIdle    = 30 * time.Minute
)

// BatchHandler processes one flushed batch. Calls for the same user never
// overlap.
type BatchHandler interface {
	HandleBatch(ctx context.Context, b Batch)
}

// HandlerFunc adapts a function to BatchHandler.
type HandlerFunc func(ctx context.Context, b Batch)

// HandleBatch calls f.
func (f HandlerFunc) HandleBatch(ctx context.Context, b Batch) { f(ctx, b) }

// Config holds the configuration for a Router.
type Config struct {
	Window      time.Duration
	WorkerCount int
	InboxSize   int

	// RunTimeout bounds one handler call. Runs are detached from the
	// router's context so shutdown never cuts a batch in half.
	RunTimeout time.Duration

	// SweepGrace is how long past its window a pending batch may wait
	// before Sweep flushes it.
	SweepGrace time.Duration

	// MaxIdle is how long an empty buffer is kept before eviction.
	MaxIdle time.Duration

	Handler      BatchHandler
	OnBurstStart func(userID string)
	Clock        Clock
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// withDefaults returns a copy of the config with zero values replaced by defaults.
func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = defaultWindow
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = DefaultWorkerCount
	}
	if c.InboxSize <= 0 {
		c.InboxSize = defaultInboxSize
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaultRunTimeout
	}
	if c.SweepGrace <= 0 {
		c.SweepGrace = defaultSweepGrace
	}
	if c.MaxIdle <= 0 {
		c.MaxIdle = defaultMaxIdle
	}
	if c.Clock == nil {
		c.Clock = SystemClock
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Router is the entry point for inbound fragments. It debounces them per
// user, hands each flushed batch to a worker pool, and serializes handler
// runs per user so two batches of one user never interleave.
type Router struct {
	config    Config
	scheduler *Scheduler
	inbox     chan Batch
	inboxMu   sync.RWMutex
	laneLock  *LaneLock
	pool      *WorkerPool
	baseCtx   context.Context
	stopOnce  sync.Once
	logger    *slog.Logger
	stopped   atomic.Bool
	started   atomic.Bool
}

// NewRouter creates a new Router with the given configuration.
func NewRouter(cfg Config) (*Router, error) {
	cfg = cfg.withDefaults()
	if cfg.Handler == nil {
		return nil, ErrNoHandler
	}

	r := &Router{
		config:   cfg,
		inbox:    make(chan Batch, cfg.InboxSize),
		laneLock: NewLaneLock(),
		pool:     NewWorkerPool(cfg.WorkerCount),
		baseCtx:  context.Background(),
		logger:   cfg.Logger,
	}
	r.scheduler = NewScheduler(SchedulerConfig{
		Window:       cfg.Window,
		Dispatch:     r.dispatch,
		OnBurstStart: cfg.OnBurstStart,
		Clock:        cfg.Clock,
		Logger:       cfg.Logger,
		Metrics:      cfg.Metrics,
	})
	return r, nil
}

// Start launches the worker pool. Values carried by ctx (not its
// cancellation) are passed to handler runs.
func (r *Router) Start(ctx context.Context) {
	r.inboxMu.Lock()
	if r.stopped.Load() {
		r.inboxMu.Unlock()
		r.logger.Warn("router: start ignored, router already stopped")
		return
	}
	r.baseCtx = context.WithoutCancel(ctx)
	r.inboxMu.Unlock()

	if !r.started.CompareAndSwap(false, true) {
		return
	}
	r.pool.Start(r.baseCtx, r.inbox, r.run)
	r.logger.Info("router: started",
		"workers", r.config.WorkerCount,
		"inbox_size", r.config.InboxSize,
		"window", r.config.Window,
	)
}

// Submit feeds one inbound fragment into the user's debounce buffer. It
// never blocks beyond the buffer append; processing happens later on a
// worker. Only malformed fragments and a stopped router are rejected.
func (r *Router) Submit(f Fragment) error {
	if r.stopped.Load() {
		return ErrRouterStopped
	}
	if err := r.scheduler.Append(f); err != nil {
		r.logger.Warn("router: fragment rejected", "user", f.UserID, "error", err)
		return err
	}
	return nil
}

// dispatch is the scheduler's non-blocking hand-off into the inbox.
func (r *Router) dispatch(b Batch) bool {
	r.inboxMu.RLock()
	defer r.inboxMu.RUnlock()
	if r.stopped.Load() {
		return false
	}
	select {
	case r.inbox <- b:
		return true
	default:
		return false
	}
}

// run processes one batch on a worker.
func (r *Router) run(ctx context.Context, b Batch) {
	r.laneLock.Acquire(b.UserID)
	defer r.laneLock.Release(b.UserID)

	ctx, cancel := context.WithTimeout(ctx, r.config.RunTimeout)
	defer cancel()

	r.config.Handler.HandleBatch(ctx, b)
}

// Sweep flushes batches stranded past their window. See Scheduler.Sweep.
func (r *Router) Sweep() int {
	return r.scheduler.Sweep(r.config.SweepGrace)
}

// EvictIdle drops empty buffers idle for longer than MaxIdle along with
// their lanes, and returns the number of buffers removed.
func (r *Router) EvictIdle() int {
	buffers := r.scheduler.Buffers()
	n := buffers.Evict(r.config.MaxIdle)
	r.laneLock.Cleanup(buffers.UserIDs())
	if n > 0 {
		r.logger.Debug("router: idle buffers evicted", "count", n)
	}
	return n
}

// Pending returns the number of users with fragments waiting.
func (r *Router) Pending() int {
	return r.scheduler.Buffers().Pending()
}

// Stop shuts the router down: it stops accepting fragments, flushes every
// pending buffer immediately, lets the workers finish those batches, and
// waits for them. Batches that cannot be queued before ctx expires are
// logged as lost.
func (r *Router) Stop(ctx context.Context) {
	r.stopOnce.Do(func() {
		r.logger.Info("router: stopping")

		drained := r.scheduler.Close()
		count := len(drained)

		r.inboxMu.Lock()
		r.stopped.Store(true)
		r.inboxMu.Unlock()

		if !r.started.Load() {
			// No workers will ever read the inbox; run everything inline.
			r.inboxMu.Lock()
			close(r.inbox)
			r.inboxMu.Unlock()
			var queued []Batch
			for b := range r.inbox {
				queued = append(queued, b)
			}
			drained = append(queued, drained...)
			for _, b := range drained {
				r.run(r.baseCtx, b)
				r.config.Metrics.Flush(metrics.FlushDrained)
			}
			r.logger.Info("router: stopped", "drained", len(drained))
			return
		}

		for _, b := range drained {
			select {
			case r.inbox <- b:
				r.config.Metrics.Flush(metrics.FlushDrained)
			case <-ctx.Done():
				r.config.Metrics.Flush(metrics.FlushLost)
				r.logger.Error("router: shutdown deadline reached, batch lost",
					"user", b.UserID,
					"batch", b.ID,
					"fragments", len(b.Fragments),
				)
			}
		}

		r.inboxMu.Lock()
		close(r.inbox)
		r.inboxMu.Unlock()

		r.pool.Wait()
		r.config.Metrics.SetPending(0)
		r.logger.Info("router: stopped", "drained", count)
	})
}
