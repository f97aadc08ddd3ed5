package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/flemzord/seline/internal/conversation"
	"github.com/flemzord/seline/internal/provider"
)

const pingTimeout = 2 * time.Second

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status  string `json:"status"` // "ok" or "degraded"
	Store   string `json:"store"`  // "ok", "unreachable" or "unknown"
	Pending int    `json:"pending"`
}

// handleHealth returns 503 when the conversation store cannot be reached.
// Provider cooldowns are transient and only surface in /status.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok", Store: "unknown"}

		if g.opts.Router != nil {
			resp.Pending = g.opts.Router.Pending()
		}

		if pinger, ok := g.opts.Store.(conversation.Pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
			err := pinger.Ping(ctx)
			cancel()
			if err != nil {
				g.logger.Warn("gateway: store ping failed", "error", err)
				resp.Status = "degraded"
				resp.Store = "unreachable"
			} else {
				resp.Store = "ok"
			}
		}

		code := http.StatusOK
		if resp.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}

// ProviderJSON is the serialized form of one provider chain entry.
type ProviderJSON struct {
	Name     string `json:"name"`
	Role     string `json:"role"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

func providersJSON(entries []provider.EntryStatus) []ProviderJSON {
	out := make([]ProviderJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, ProviderJSON{
			Name:     e.Name,
			Role:     string(e.Role),
			State:    e.State.String(),
			Failures: e.Failures,
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
