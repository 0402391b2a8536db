package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/khelarena/arena-admin/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// StatusEvent is pushed to subscribed admin consoles whenever a
// tournament's lifecycle status changes, whether through reconciliation
// or an operator's manual completion.
type StatusEvent struct {
	Type         string                  `json:"type"`
	TournamentID int                     `json:"tournament_id"`
	From         models.TournamentStatus `json:"from"`
	To           models.TournamentStatus `json:"to"`
	At           time.Time               `json:"at"`
}

const eventTypeStatusChanged = "TOURNAMENT_STATUS_CHANGED"

// Hub fans status events out to connected websocket clients.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	clients map[*Client]bool
	mu      sync.RWMutex
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		clients:    make(map[*Client]bool),
		logger:     logger,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("status subscriber connected", slog.Int("subscribers", h.subscriberCount()))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				client.closeSend()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("status subscriber disconnected", slog.Int("subscribers", h.subscriberCount()))

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				client.trySend(message)
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) subscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NotifyStatusChange implements services.StatusNotifier. Safe for
// concurrent use; a slow or absent consumer never blocks the caller.
func (h *Hub) NotifyStatusChange(tournamentID int, from, to models.TournamentStatus) {
	event := StatusEvent{
		Type:         eventTypeStatusChanged,
		TournamentID: tournamentID,
		From:         from,
		To:           to,
		At:           time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal status event", slog.Any("error", err))
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn("status event dropped, broadcast queue full",
			slog.Int("tournament_id", tournamentID))
	}
}

// Register hands a fresh connection to the hub and starts its pumps.
func (h *Hub) Register(conn *websocket.Conn) {
	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 16),
	}
	h.register <- client
	go client.writePump()
	go client.readPump()
}
