// Package core runs the lifecycle of the wired components: ordered start,
// rollback on failure and reverse-order shutdown.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// DefaultShutdownTimeout bounds the whole shutdown sequence.
const DefaultShutdownTimeout = 30 * time.Second

// App starts components in registration order and stops them in reverse.
type App struct {
	components      []component
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

type component struct {
	name    string
	value   any
	started bool
}

// NewApp creates an empty App.
func NewApp(logger *slog.Logger, shutdownTimeout time.Duration) *App {
	if logger == nil {
		logger = slog.Default()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &App{
		logger:          logger.With("component", "core"),
		shutdownTimeout: shutdownTimeout,
	}
}

// Add registers a component. It must implement at least one of Starter,
// Stopper or Closer.
func (a *App) Add(name string, c any) error {
	switch c.(type) {
	case Starter, Stopper, Closer:
	default:
		return fmt.Errorf("core: component %s has no lifecycle methods", name)
	}
	for _, existing := range a.components {
		if existing.name == name {
			return fmt.Errorf("core: duplicate component %s", name)
		}
	}
	a.components = append(a.components, component{name: name, value: c})
	return nil
}

// Start starts every component in order. Components without Start count
// as started so they are stopped on shutdown. If one fails, the ones
// already started are stopped in reverse order.
func (a *App) Start(ctx context.Context) error {
	for i := range a.components {
		c := &a.components[i]
		if s, ok := c.value.(Starter); ok {
			a.logger.Info("starting component", "name", c.name)
			if err := s.Start(ctx); err != nil {
				a.logger.Error("component start failed", "name", c.name, "error", err)
				a.stopFrom(i - 1)
				return fmt.Errorf("starting %s: %w", c.name, err)
			}
		}
		c.started = true
	}
	a.logger.Info("all components started", "count", len(a.components))
	return nil
}

// Stop stops every started component in reverse order within the
// shutdown timeout and returns the joined errors.
func (a *App) Stop() error {
	return a.stopFrom(len(a.components) - 1)
}

func (a *App) stopFrom(index int) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	var errs []error
	for i := index; i >= 0; i-- {
		c := &a.components[i]
		if !c.started {
			continue
		}
		c.started = false

		var err error
		switch v := c.value.(type) {
		case Stopper:
			a.logger.Info("stopping component", "name", c.name)
			err = v.Stop(ctx)
		case Closer:
			a.logger.Info("closing component", "name", c.name)
			err = v.Close()
		default:
			continue
		}
		if err != nil {
			a.logger.Error("component stop error", "name", c.name, "error", err)
			errs = append(errs, fmt.Errorf("stopping %s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

// Discard releases the components of an App that was never started, such
// as when wiring fails halfway.
func (a *App) Discard() error {
	for i := range a.components {
		a.components[i].started = true
	}
	err := a.Stop()
	a.components = nil
	return err
}

// Run starts the components and blocks until ctx is done or SIGINT or
// SIGTERM arrives, then stops them.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	a.logger.Info("shutdown requested", "cause", context.Cause(ctx))

	err := a.Stop()
	a.logger.Info("shutdown complete")
	return err
}
