// Package security keeps credentials out of logs and records
// administrative actions.
package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder replaces redacted values.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern matches config keys that hold credentials.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|key|dsn)`)

// Redactor replaces known secret formats and registered literal values.
// It is safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor creates a Redactor loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddPattern registers an extra pattern.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
}

// AddLiteral registers a secret loaded at runtime, such as the LINE channel
// secret or the search API key. Empty strings are ignored.
func (r *Redactor) AddLiteral(secrets ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range secrets {
		if s != "" {
			r.literals = append(r.literals, s)
		}
	}
}

// Redact replaces every pattern match and literal in s.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	for _, lit := range literals {
		if strings.Contains(s, lit) {
			s = strings.ReplaceAll(s, lit, RedactPlaceholder)
		}
	}
	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	return s
}

// RedactMap walks a decoded config document in place. String values under
// credential-looking keys are replaced outright; other strings go through
// Redact.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		if secretKeyPattern.MatchString(k) {
			if s, ok := v.(string); ok && s != "" {
				m[k] = RedactPlaceholder
				continue
			}
		}
		switch val := v.(type) {
		case map[string]any:
			r.RedactMap(val)
		case []any:
			for _, item := range val {
				if sub, ok := item.(map[string]any); ok {
					r.RedactMap(sub)
				}
			}
		case string:
			if redacted := r.Redact(val); redacted != val {
				m[k] = redacted
			}
		}
	}
}

// DefaultPatterns returns the built-in secret formats.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// OpenAI keys, including project keys.
		regexp.MustCompile(`sk-(proj-)?[A-Za-z0-9_\-]{20,}`),
		// Authorization header values.
		regexp.MustCompile(`Bearer [A-Za-z0-9._~+/=\-]{20,}`),
		// Passwords embedded in connection URLs.
		regexp.MustCompile(`://[^:/@\s]+:[^@\s]+@`),
	}
}
