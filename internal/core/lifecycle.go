package core

import "context"

// Starter is implemented by components with background work: listeners,
// timers, worker pools.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper is implemented by components that release resources on
// shutdown. Stop is called in reverse registration order.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Closer is implemented by stores and clients without a shutdown context.
type Closer interface {
	Close() error
}

// StopFunc adapts a function to Stopper.
type StopFunc func(ctx context.Context) error

// Stop calls f.
func (f StopFunc) Stop(ctx context.Context) error { return f(ctx) }
