package provider

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// ChainEntry configures a single provider in the chain.
type ChainEntry struct {
	Name     string
	Provider Provider
	Role     Role
	Health   HealthConfig

	// FallbackFor restricts a RoleFallback entry to these roles. Empty
	// means every role.
	FallbackFor []Role
}

type chainEntry struct {
	ChainEntry
	health *health
}

// ChainOption configures optional Chain behavior.
type ChainOption func(*Chain)

// WithLogger injects a structured logger into the Chain.
func WithLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

// WithClock replaces time.Now for backoff computations.
func WithClock(now func() time.Time) ChainOption {
	return func(c *Chain) { c.now = now }
}

// Chain routes completions by role and fails over between providers.
// Entries degrade on retryable errors and are revived by a success or by
// Probe.
type Chain struct {
	entries []*chainEntry
	logger  *slog.Logger
	now     func() time.Time
}

// NewChain creates a chain from the given entries.
func NewChain(entries []ChainEntry, opts ...ChainOption) (*Chain, error) {
	if len(entries) == 0 {
		return nil, ErrNoProvider
	}

	c := &Chain{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}

	for _, e := range entries {
		if e.Provider == nil {
			return nil, fmt.Errorf("%w: entry %q has nil provider", ErrNoProvider, e.Name)
		}
		ce := &chainEntry{ChainEntry: e, health: newHealth(e.Health, c.now)}
		name := e.Name
		ce.health.onChange = func(from, to Availability) {
			switch to {
			case Cooling:
				_, failures, backoff := ce.health.snapshot()
				c.logger.Warn("provider: cooling down", "provider", name, "backoff", backoff, "failures", failures)
			case Disabled:
				c.logger.Error("provider: disabled", "provider", name)
			case Healthy:
				c.logger.Info("provider: revived", "provider", name, "previous_state", from.String())
			}
		}
		c.entries = append(c.entries, ce)
	}
	return c, nil
}

// Complete sends req to the first available provider for role, failing
// over on retryable errors.
func (c *Chain) Complete(ctx context.Context, role Role, req CompletionRequest) (CompletionResponse, error) {
	candidates := c.candidates(role)
	if len(candidates) == 0 {
		return CompletionResponse{}, fmt.Errorf("%w for role %q", ErrNoProvider, role)
	}

	var lastErr error
	for _, e := range candidates {
		if err := ctx.Err(); err != nil {
			return CompletionResponse{}, err
		}
		if !e.health.available() {
			continue
		}

		resp, err := e.Provider.Complete(ctx, req)
		if err == nil {
			e.health.success()
			return resp, nil
		}
		if !IsRetryable(err) {
			return CompletionResponse{}, err
		}

		lastErr = err
		e.health.failure()
		c.logger.Warn("provider: request failed, failing over", "provider", e.Name, "role", role, "error", err)
	}

	if lastErr != nil {
		return CompletionResponse{}, fmt.Errorf("%w for role %q: %w", ErrAllProviders, role, lastErr)
	}
	return CompletionResponse{}, fmt.Errorf("%w for role %q: all candidates unavailable", ErrAllProviders, role)
}

// For returns a Provider bound to role.
func (c *Chain) For(role Role) Provider {
	return roleProvider{chain: c, role: role}
}

// Probe health-checks every entry that is disabled or whose cooldown has
// elapsed, and revives the ones that answer. It returns the number of
// revived entries.
func (c *Chain) Probe(ctx context.Context) int {
	revived := 0
	for _, e := range c.entries {
		if !e.health.needsProbe() {
			continue
		}
		checker, ok := e.Provider.(HealthChecker)
		if !ok {
			continue
		}
		if err := checker.HealthCheck(ctx); err != nil {
			c.logger.Debug("provider: probe failed", "provider", e.Name, "error", err)
			continue
		}
		e.health.success()
		revived++
	}
	return revived
}

// EntryStatus is a point-in-time view of one entry.
type EntryStatus struct {
	Name     string
	Role     Role
	State    Availability
	Failures int
}

// Status reports the health of every entry in declaration order.
func (c *Chain) Status() []EntryStatus {
	out := make([]EntryStatus, 0, len(c.entries))
	for _, e := range c.entries {
		state, failures, _ := e.health.snapshot()
		out = append(out, EntryStatus{Name: e.Name, Role: e.Role, State: state, Failures: failures})
	}
	return out
}

// candidates returns direct role matches first, then fallbacks.
func (c *Chain) candidates(role Role) []*chainEntry {
	var direct, fallbacks []*chainEntry
	for _, e := range c.entries {
		switch {
		case e.Role == role:
			direct = append(direct, e)
		case e.Role == RoleFallback && (len(e.FallbackFor) == 0 || slices.Contains(e.FallbackFor, role)):
			fallbacks = append(fallbacks, e)
		}
	}
	return append(direct, fallbacks...)
}

type roleProvider struct {
	chain *Chain
	role  Role
}

func (p roleProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return p.chain.Complete(ctx, p.role, req)
}

func (p roleProvider) ModelName() string {
	for _, e := range p.chain.candidates(p.role) {
		if e.health.available() {
			return e.Provider.ModelName()
		}
	}
	return ""
}
