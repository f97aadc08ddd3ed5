// Package gateway is the HTTP surface of seline: signed webhooks, health,
// Prometheus metrics, and token-protected admin endpoints.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flemzord/seline/internal/conversation"
	"github.com/flemzord/seline/internal/provider"
	"github.com/flemzord/seline/internal/security"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// PendingCounter reports how many users have fragments waiting.
type PendingCounter interface {
	Pending() int
}

// ProviderStatus reports the health of the model providers.
type ProviderStatus interface {
	Status() []provider.EntryStatus
}

// Options wires a Gateway. Only Dispatcher is required.
type Options struct {
	Config     Config
	Dispatcher *WebhookDispatcher
	Router     PendingCounter
	Store      conversation.Store
	Providers  ProviderStatus
	Gatherer   prometheus.Gatherer

	// HistoryLimit caps the turns returned by the history endpoint.
	HistoryLimit int

	Audit  *security.AuditLogger
	Logger *slog.Logger
	Now    func() time.Time
}

// Gateway is the HTTP server.
type Gateway struct {
	opts      Options
	config    Config
	logger    *slog.Logger
	server    *http.Server
	limiter   *rate.Limiter
	startedAt time.Time
}

// New validates the options and builds a Gateway. The listener is opened
// by Start.
func New(opts Options) (*Gateway, error) {
	if opts.Dispatcher == nil {
		return nil, errors.New("gateway: webhook dispatcher is required")
	}
	opts.Config.Defaults()
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	return &Gateway{
		opts:    opts,
		config:  opts.Config,
		logger:  opts.Logger,
		limiter: rate.NewLimiter(rate.Every(time.Second), 10),
	}, nil
}

// Handler returns the routed handler without starting a server.
func (g *Gateway) Handler() http.Handler {
	return g.buildRouter()
}

// Start opens the listener and serves in the background.
func (g *Gateway) Start(ctx context.Context) error {
	g.startedAt = g.opts.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway: listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway: serve error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully within the configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway: shutting down")
	return g.server.Shutdown(shutdownCtx)
}
