package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"ledger-dash/internal/dashboard"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleRegions returns the current view as JSON.
func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.appState.View())
}

// handleRefresh triggers a sync cycle.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	select {
	case s.triggerSync <- struct{}{}:
		writeJSON(w, http.StatusOK, map[string]string{"status": "triggered"})
	default:
		writeJSON(w, http.StatusConflict, map[string]string{"status": "already running"})
	}
}

// handleMine runs one mine action and reports the server's message. The
// action is not cancelled if the browser goes away mid-request.
func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	if sess, ok := sessionFrom(r.Context()); ok {
		slog.Info("Mine requested", "operator", sess.Operator, "session", sess.ID, "component", "Web")
	}
	res, err := s.miner.Mine(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, dashboard.ErrMineInProgress):
		writeJSON(w, http.StatusConflict, map[string]string{"status": "already running"})
	case err != nil:
		writeJSON(w, http.StatusBadGateway, map[string]string{"status": "error", "message": err.Error()})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"success": res.Success,
			"message": res.Message,
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
