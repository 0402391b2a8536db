package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/khelarena/arena-admin/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The admin console is served from configured origins; tighten
		// this check when the frontend domain is fixed.
		return true
	},
}

type WebSocketHandler struct {
	hub *events.Hub
}

func NewWebSocketHandler(hub *events.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// ServeStatusStream upgrades GET /ws/status and subscribes the connection
// to lifecycle transitions.
func (h *WebSocketHandler) ServeStatusStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Default().WarnContext(r.Context(), "failed to upgrade status stream connection", slog.Any("error", err))
		return
	}
	h.hub.Register(conn)
}
