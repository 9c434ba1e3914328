package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"chat-realtime/pkg/logger"
)

// SessionCloser force-closes a live session.
type SessionCloser interface {
	Disconnect(sessionID string) bool
}

type AdminHandlers struct {
	sessions SessionCloser
	token    string
}

func NewAdminHandlers(sessions SessionCloser, token string) *AdminHandlers {
	return &AdminHandlers{sessions: sessions, token: token}
}

// Enabled reports whether an admin token was configured.
func (h *AdminHandlers) Enabled() bool {
	return h.token != ""
}

// DisconnectSession handles DELETE /admin/sessions/{id}.
func (h *AdminHandlers) DisconnectSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.Enabled() || subtle.ConstantTimeCompare([]byte(bearerToken(r)), []byte(h.token)) != 1 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	sessionID := strings.TrimPrefix(r.URL.Path, "/admin/sessions/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		http.Error(w, "invalid session ID", http.StatusBadRequest)
		return
	}

	if !h.sessions.Disconnect(sessionID) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	logger.Info("Session %s disconnected by admin", sessionID)
	w.WriteHeader(http.StatusNoContent)
}
