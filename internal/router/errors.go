// Package router coalesces bursts of inbound message fragments per user
// and hands each completed batch to a handler exactly once.
package router

import "errors"

// Sentinel errors for router operations.
var (
	// ErrInboxFull indicates the hand-off queue is at capacity. The batch
	// stays buffered and is retried by the next sweep.
	ErrInboxFull = errors.New("router: inbox full, batch requeued")

	// ErrRouterStopped indicates the router has been shut down and is
	// no longer accepting fragments.
	ErrRouterStopped = errors.New("router: stopped")

	// ErrNoHandler indicates no batch handler has been configured.
	ErrNoHandler = errors.New("router: no batch handler configured")

	// ErrInvalidFragment indicates a fragment without a user or text.
	ErrInvalidFragment = errors.New("router: fragment needs a user id and text")
)
