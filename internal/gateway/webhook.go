package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/flemzord/seline/internal/metrics"
	"github.com/flemzord/seline/internal/security"
	"github.com/go-chi/chi/v5"
)

// ErrBadPayload is wrapped by handlers rejecting a malformed body; the
// dispatcher answers 400 instead of 500.
var ErrBadPayload = errors.New("gateway: bad webhook payload")

// WebhookHandler processes a verified webhook payload.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, source string, body []byte, headers http.Header) error
}

// Verifier authenticates a raw webhook body. A nil Verifier accepts
// every request.
type Verifier func(body []byte, headers http.Header) bool

type webhookEntry struct {
	handler WebhookHandler
	verify  Verifier
}

// WebhookDispatcher routes incoming webhooks to registered handlers after
// signature verification.
type WebhookDispatcher struct {
	mu       sync.RWMutex
	handlers map[string]webhookEntry
	maxBody  int64
	logger   *slog.Logger
	metrics  *metrics.Metrics
	audit    *security.AuditLogger
}

// DispatcherOption customizes a WebhookDispatcher.
type DispatcherOption func(*WebhookDispatcher)

// WithMetrics records one counter per request.
func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *WebhookDispatcher) { d.metrics = m }
}

// WithAudit records signature failures.
func WithAudit(a *security.AuditLogger) DispatcherOption {
	return func(d *WebhookDispatcher) { d.audit = a }
}

// WithMaxBody caps the request body size.
func WithMaxBody(n int64) DispatcherOption {
	return func(d *WebhookDispatcher) { d.maxBody = n }
}

// NewWebhookDispatcher creates a ready-to-use dispatcher.
func NewWebhookDispatcher(logger *slog.Logger, opts ...DispatcherOption) *WebhookDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &WebhookDispatcher{
		handlers: make(map[string]webhookEntry),
		maxBody:  1 << 20,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds a handler for source.
func (d *WebhookDispatcher) Register(source string, h WebhookHandler, verify Verifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[source] = webhookEntry{handler: h, verify: verify}
}

// ServeHTTP implements http.Handler. The source comes from the chi URL
// parameter "source".
func (d *WebhookDispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	status := d.serve(w, r, source)
	d.metrics.Webhook(source, strconv.Itoa(status))
}

func (d *WebhookDispatcher) serve(w http.ResponseWriter, r *http.Request, source string) int {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return http.StatusMethodNotAllowed
	}

	d.mu.RLock()
	entry, ok := d.handlers[source]
	d.mu.RUnlock()
	if !ok {
		d.logger.Warn("gateway: webhook for unregistered source", "source", source)
		http.Error(w, "unknown source", http.StatusNotFound)
		return http.StatusNotFound
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, d.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
			return http.StatusRequestEntityTooLarge
		}
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return http.StatusBadRequest
	}

	if entry.verify != nil && !entry.verify(body, r.Header) {
		d.logger.Warn("gateway: webhook signature rejected", "source", source, "remote", r.RemoteAddr)
		d.audit.Log(security.AuditEvent{
			Type:     security.EventSignatureFailure,
			Source:   source,
			Metadata: map[string]string{"remote_addr": r.RemoteAddr},
		})
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return http.StatusUnauthorized
	}

	if err := entry.handler.HandleWebhook(r.Context(), source, body, r.Header); err != nil {
		if errors.Is(err, ErrBadPayload) {
			d.logger.Warn("gateway: webhook payload rejected", "source", source, "error", err)
			http.Error(w, "bad payload", http.StatusBadRequest)
			return http.StatusBadRequest
		}
		d.logger.Error("gateway: webhook handler failed", "source", source, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"ok":true}`))
	return http.StatusOK
}
