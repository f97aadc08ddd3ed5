package provider

import (
	"sync"
	"time"
)

// Availability is the health state of one chain entry.
type Availability int

// Availability states.
const (
	Healthy  Availability = iota
	Cooling               // failed recently, retried after a backoff
	Disabled              // too many consecutive failures, only probes revive it
)

// String returns the state name used in logs.
func (a Availability) String() string {
	switch a {
	case Healthy:
		return "healthy"
	case Cooling:
		return "cooling"
	case Disabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// HealthConfig controls how failures degrade an entry.
type HealthConfig struct {
	// InitialBackoff is the cooldown after the first failure. Default: 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps the doubling cooldown. Default: 60s.
	MaxBackoff time.Duration

	// MaxFailures consecutive failures disable the entry. Default: 5.
	MaxFailures int
}

func (c HealthConfig) withDefaults() HealthConfig {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Minute
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	return c
}

// health tracks consecutive failures of one entry.
type health struct {
	cfg      HealthConfig
	now      func() time.Time
	onChange func(from, to Availability)

	mu       sync.Mutex
	state    Availability
	failures int
	backoff  time.Duration
	until    time.Time
}

func newHealth(cfg HealthConfig, now func() time.Time) *health {
	return &health{cfg: cfg.withDefaults(), now: now}
}

// available reports whether requests may be sent. A cooling entry becomes
// available again once its backoff has elapsed.
func (h *health) available() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case Healthy:
		return true
	case Cooling:
		return !h.now().Before(h.until)
	default:
		return false
	}
}

// needsProbe reports whether an active health check would be useful.
func (h *health) needsProbe() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == Disabled || (h.state == Cooling && !h.now().Before(h.until))
}

func (h *health) success() {
	h.mu.Lock()
	prev := h.state
	h.state, h.failures, h.backoff = Healthy, 0, 0
	h.mu.Unlock()
	h.notify(prev, Healthy)
}

func (h *health) failure() {
	h.mu.Lock()
	prev := h.state
	h.failures++
	if h.failures >= h.cfg.MaxFailures {
		h.state = Disabled
	} else {
		h.state = Cooling
		h.backoff = min(max(h.backoff*2, h.cfg.InitialBackoff), h.cfg.MaxBackoff)
		h.until = h.now().Add(h.backoff)
	}
	next := h.state
	h.mu.Unlock()
	h.notify(prev, next)
}

func (h *health) notify(from, to Availability) {
	if from != to && h.onChange != nil {
		h.onChange(from, to)
	}
}

func (h *health) snapshot() (Availability, int, time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state, h.failures, h.backoff
}
