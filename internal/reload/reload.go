// Package reload re-reads the configuration file while the service runs,
// either when its modification time moves forward or on SIGHUP.
package reload

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/flemzord/seline/internal/config"
)

const defaultPollInterval = 5 * time.Second

// Config configures a Reloader.
type Config struct {
	Path string

	// PollInterval defaults to 5s.
	PollInterval time.Duration

	// Signals trigger an immediate reload. Typically syscall.SIGHUP.
	Signals []os.Signal
}

// Loader reads and validates a configuration file.
type Loader func(path string) (*config.Config, error)

// Applier pushes the settings that can change at runtime into live
// components.
type Applier func(ctx context.Context, cfg *config.Config) error

// Reloader watches one configuration file. It implements the Start/Stop
// lifecycle of core.App.
type Reloader struct {
	cfg    Config
	load   Loader
	apply  Applier
	logger *slog.Logger

	mu      sync.Mutex
	lastMod time.Time
	stop    chan struct{}
	stopped chan struct{}
}

// New creates a Reloader. load and apply are required.
func New(cfg Config, load Loader, apply Applier, logger *slog.Logger) (*Reloader, error) {
	if cfg.Path == "" {
		return nil, errors.New("reload: config path is required")
	}
	if load == nil || apply == nil {
		return nil, errors.New("reload: loader and applier are required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader{cfg: cfg, load: load, apply: apply, logger: logger}, nil
}

// Start records the current modification time and begins polling.
func (r *Reloader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		return errors.New("reload: already started")
	}
	r.lastMod = r.modTime()
	r.stop = make(chan struct{})
	r.stopped = make(chan struct{})
	go r.loop(context.WithoutCancel(ctx), r.stop, r.stopped)
	return nil
}

// Stop ends polling. It is safe to call before Start.
func (r *Reloader) Stop(ctx context.Context) error {
	r.mu.Lock()
	stop, stopped := r.stop, r.stopped
	r.stop = nil
	r.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reload loads the file and applies it. A file that fails to load or
// validate leaves the running configuration untouched.
func (r *Reloader) Reload(ctx context.Context) error {
	cfg, err := r.load(r.cfg.Path)
	if err != nil {
		return err
	}
	if err := r.apply(ctx, cfg); err != nil {
		return err
	}
	r.logger.Info("reload: configuration applied", "path", r.cfg.Path)
	return nil
}

func (r *Reloader) loop(ctx context.Context, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	var sig chan os.Signal
	if len(r.cfg.Signals) > 0 {
		sig = make(chan os.Signal, 1)
		signal.Notify(sig, r.cfg.Signals...)
		defer signal.Stop(sig)
	}

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case s := <-sig:
			r.logger.Info("reload: signal received", "signal", s.String())
			r.run(ctx)
		case <-ticker.C:
			current := r.modTime()
			if current.IsZero() || !current.After(r.lastMod) {
				continue
			}
			r.lastMod = current
			r.run(ctx)
		}
	}
}

func (r *Reloader) run(ctx context.Context) {
	if err := r.Reload(ctx); err != nil {
		r.logger.Error("reload: keeping previous configuration", "path", r.cfg.Path, "error", err)
	}
}

func (r *Reloader) modTime() time.Time {
	info, err := os.Stat(r.cfg.Path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
