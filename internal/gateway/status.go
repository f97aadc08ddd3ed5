package gateway

import (
	"net/http"
	"time"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime    float64        `json:"uptime_seconds"`
	Pending   int            `json:"pending"`
	Providers []ProviderJSON `json:"providers"`
}

func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{Providers: []ProviderJSON{}}
		if !g.startedAt.IsZero() {
			resp.Uptime = g.opts.Now().Sub(g.startedAt).Truncate(time.Second).Seconds()
		}
		if g.opts.Router != nil {
			resp.Pending = g.opts.Router.Pending()
		}
		if g.opts.Providers != nil {
			resp.Providers = providersJSON(g.opts.Providers.Status())
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
