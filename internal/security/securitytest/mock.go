// Package securitytest provides test doubles for the security package.
package securitytest

import (
	"sync"

	"github.com/flemzord/seline/internal/security"
)

// NewTestRedactor creates a Redactor without default patterns, so test
// fixtures that look like keys are left alone.
func NewTestRedactor(literals ...string) *security.Redactor {
	r := &security.Redactor{}
	r.AddLiteral(literals...)
	return r
}

// NewTestAuditLogger returns an AuditLogger that records events in memory
// and a function returning a copy of them.
func NewTestAuditLogger() (*security.AuditLogger, func() []security.AuditEvent) {
	var (
		mu     sync.Mutex
		events []security.AuditEvent
	)
	logger := security.NewAuditLogger(security.AuditLoggerConfig{
		OnEvent: func(e security.AuditEvent) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, e)
		},
	})
	return logger, func() []security.AuditEvent {
		mu.Lock()
		defer mu.Unlock()
		out := make([]security.AuditEvent, len(events))
		copy(out, events)
		return out
	}
}
