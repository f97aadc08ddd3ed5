package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/flemzord/seline/internal/security"
	"github.com/go-chi/chi/v5"
)

// TurnJSON is a serialized conversation turn.
type TurnJSON struct {
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Route     string `json:"route"`
}

// handleGetHistory returns the most recent turns of a user, oldest first.
// The optional "limit" query parameter is capped by Options.HistoryLimit.
func (g *Gateway) handleGetHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := chi.URLParam(r, "user")
		limit := g.opts.HistoryLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = min(n, g.opts.HistoryLimit)
		}

		turns, err := g.opts.Store.Recent(r.Context(), user, limit)
		if err != nil {
			g.logger.Error("gateway: history read failed", "user", user, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		g.opts.Audit.Log(security.AuditEvent{Type: security.EventHistoryRead, UserID: user})

		out := make([]TurnJSON, 0, len(turns))
		for _, t := range turns {
			out = append(out, TurnJSON{
				Sender:    string(t.Sender),
				Message:   t.Message,
				Timestamp: t.Timestamp.Format(time.RFC3339),
				Route:     t.Route.String(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleClearHistory removes every turn of a user.
func (g *Gateway) handleClearHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := chi.URLParam(r, "user")
		if err := g.opts.Store.Clear(r.Context(), user); err != nil {
			g.logger.Error("gateway: history clear failed", "user", user, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		g.opts.Audit.Log(security.AuditEvent{Type: security.EventHistoryClear, UserID: user})
		g.logger.Info("gateway: history cleared", "user", user)
		w.WriteHeader(http.StatusNoContent)
	}
}
