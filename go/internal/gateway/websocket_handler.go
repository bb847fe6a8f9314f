package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/lastround/go/internal/auth"
)

// TokenVerifier validates the token a peer connects with.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// WebSocketHandler upgrades game connections and serves connection stats.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	verifier          TokenVerifier
	roomStats         func() map[string]int
}

// NewWebSocketHandler creates the handler. A nil verifier accepts anonymous
// peers, whose payload identity is then taken as claimed.
func NewWebSocketHandler(cm *ConnectionManager, verifier TokenVerifier, roomStats func() map[string]int) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		verifier:          verifier,
		roomStats:         roomStats,
	}
}

// HandleConnection authenticates the optional ?token= and upgrades.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	var userID, name string
	if h.verifier != nil {
		claims, err := h.verifier.Verify(bearer(r))
		if err != nil {
			status := http.StatusUnauthorized
			if !errors.Is(err, auth.ErrTokenRequired) && !errors.Is(err, auth.ErrTokenExpired) && !errors.Is(err, auth.ErrInvalidToken) {
				status = http.StatusInternalServerError
			}
			log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("Rejected websocket connection")
			http.Error(w, err.Error(), status)
			return
		}
		userID, name = claims.UserID, claims.Name
	}

	if _, err := h.connectionManager.UpgradeConnection(w, r, userID, name); err != nil {
		// The upgrader has already replied.
		log.Error().
			Err(err).
			Str("user_id", userID).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats reports connection and room counts as JSON.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.connectionManager.GetConnectionStats()
	if h.roomStats != nil {
		for k, v := range h.roomStats() {
			stats[k] = v
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to write connection stats")
	}
}

func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleConnection)
	mux.HandleFunc("/stats", h.HandleConnectionStats)
}

func bearer(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}
