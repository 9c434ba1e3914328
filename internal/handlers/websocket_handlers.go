package handlers

import (
	"net/http"
	"strconv"
	"time"

	"chat-realtime/internal/apperr"
	"chat-realtime/internal/auth"
	"chat-realtime/internal/config"
	ws "chat-realtime/internal/websocket"
	"chat-realtime/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	verifier auth.Verifier
	hub      *ws.Hub
	cfg      config.RealtimeConfig
	upgrader websocket.Upgrader
}

func NewWebSocketHandlers(verifier auth.Verifier, hub *ws.Hub, cfg config.RealtimeConfig) *WebSocketHandlers {
	return &WebSocketHandlers{
		verifier: verifier,
		hub:      hub,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

// HandleWebSocket opens a session. A rejected credential still completes the
// upgrade so the client can read close code 4001.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	claimed, _ := strconv.Atoi(r.URL.Query().Get("userId"))
	identity, authErr := h.verifier.Verify(r.Context(), bearerToken(r), claimed)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	if authErr != nil {
		logger.Info("Rejected connection for user %d: %v", claimed, authErr)
		deadline := time.Now().Add(h.cfg.WriteWait)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(apperr.CloseAuthenticationFailed, apperr.ErrAuthenticationFailed.Error()),
			deadline)
		conn.Close()
		return
	}

	client := ws.NewClient(h.hub, conn, identity, h.cfg)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
