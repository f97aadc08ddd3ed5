package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", g.handleHealth())
	if g.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	// Webhooks carry their own per-source signatures.
	r.Post("/webhooks/{source}", g.opts.Dispatcher.ServeHTTP)

	// Admin endpoints are not mounted without credentials.
	if g.config.Auth.IsConfigured() {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.config.Auth, g.opts.Audit, g.limiter))
			r.Get("/status", g.handleStatus())
			if g.opts.Store != nil {
				r.Route("/api/history/{user}", func(r chi.Router) {
					r.Get("/", g.handleGetHistory())
					r.Delete("/", g.handleClearHistory())
				})
			}
		})
	}

	return r
}
