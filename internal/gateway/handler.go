package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fishbowl/internal/results"
)

// Handler serves the gateway's HTTP surface: the WebSocket upgrade
// endpoint, connection stats, and the one-shot session outcome read.
type Handler struct {
	connectionManager *ConnectionManager
	reader            *results.Reader
}

// NewHandler creates the HTTP handler for the gateway.
func NewHandler(cm *ConnectionManager, reader *results.Reader) *Handler {
	return &Handler{connectionManager: cm, reader: reader}
}

// HandleLobbyConnection handles WebSocket connections for a session.
func (h *Handler) HandleLobbyConnection(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	if strings.ContainsAny(sessionID, "/.") {
		http.Error(w, "invalid session_id", http.StatusBadRequest)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, sessionID); err != nil {
		log.Error().
			Err(err).
			Str("session_id", sessionID).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections.
func (h *Handler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	total, sessions := h.connectionManager.Stats()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"total_connections": total,
		"active_sessions":   len(sessions),
		"sessions":          sessions,
	}); err != nil {
		log.Error().Err(err).Msg("failed to encode stats response")
	}
}

// HandleOutcome handles GET /api/sessions/{id}/outcome. An incomplete
// score reads as 404 so the client falls back to its home view instead of
// showing a partial result.
func (h *Handler) HandleOutcome(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := outcomeSessionID(r.URL.Path)
	if sessionID == "" {
		http.Error(w, "session id is required", http.StatusBadRequest)
		return
	}

	outcome, err := h.reader.ReadOutcome(r.Context(), sessionID)
	if err != nil {
		var incomplete *results.IncompleteDataError
		if errors.As(err, &incomplete) {
			log.Warn().
				Str("session_id", sessionID).
				Int("fields", incomplete.Got).
				Msg("outcome not complete yet")
			http.Error(w, "outcome not available", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to read outcome")
		http.Error(w, "failed to read outcome", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(outcome); err != nil {
		log.Error().Err(err).Msg("failed to encode outcome response")
	}
}

// outcomeSessionID extracts the session ID from a path like
// /api/sessions/{id}/outcome.
func outcomeSessionID(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 4 || parts[0] != "api" || parts[1] != "sessions" || parts[3] != "outcome" {
		return ""
	}
	return parts[2]
}

// RegisterRoutes registers the gateway routes with an HTTP mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/lobby", h.HandleLobbyConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
	mux.HandleFunc("/api/sessions/", h.HandleOutcome)
}
