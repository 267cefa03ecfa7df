// Package streaming broadcasts ACP session updates to WebSocket clients.
// Clients subscribe by session id and receive each session/update event as
// it arrives from the agent.
package streaming

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kandev/acpd/internal/common/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Event is one streamed session update.
type Event struct {
	SessionID  string          `json:"session_id"`
	UpdateType string          `json:"update_type"`
	Update     json.RawMessage `json:"update"`
	Timestamp  string          `json:"timestamp"`
}

// Hub tracks connected clients and their session subscriptions.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	sessions map[string]map[*Client]bool

	logger *logger.Logger
}

// NewHub creates an empty hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:  make(map[*Client]bool),
		sessions: make(map[string]map[*Client]bool),
		logger:   log.WithFields(zap.String("component", "acp-streaming")),
	}
}

// ServeWS upgrades an HTTP request and registers the client. An optional
// initial session subscription can be passed; further subscriptions arrive
// over the socket.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, 64),
		sessionIDs: make(map[string]bool),
		logger:     h.logger,
	}

	h.register(client)
	if sessionID != "" {
		client.Subscribe(sessionID)
	}

	go client.WritePump()
	go client.ReadPump()
	return nil
}

// Broadcast delivers a session update to every subscriber of that session.
// Slow clients drop the event rather than block the prompt.
func (h *Hub) Broadcast(sessionID, updateType string, update json.RawMessage) {
	event := Event{
		SessionID:  sessionID,
		UpdateType: updateType,
		Update:     update,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("failed to encode stream event", zap.Error(err))
		return
	}

	h.mu.RLock()
	subscribers := make([]*Client, 0, len(h.sessions[sessionID]))
	for client := range h.sessions[sessionID] {
		subscribers = append(subscribers, client)
	}
	h.mu.RUnlock()

	for _, client := range subscribers {
		if !client.Send(payload) {
			h.logger.Debug("dropping event for slow client",
				zap.String("session_id", sessionID))
		}
	}
}

// SubscriberCount returns the number of clients subscribed to a session.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		h.Unregister(client)
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	h.logger.Debug("client connected")
}

// Unregister removes a client and all its subscriptions.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	for sessionID, subscribers := range h.sessions {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.sessions, sessionID)
		}
	}
	close(client.send)
	h.mu.Unlock()
	h.logger.Debug("client disconnected")
}

// SubscribeClient adds a client to a session's subscriber set.
func (h *Hub) SubscribeClient(client *Client, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[*Client]bool)
	}
	h.sessions[sessionID][client] = true
}

// UnsubscribeClient removes a client from a session's subscriber set.
func (h *Hub) UnsubscribeClient(client *Client, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subscribers, ok := h.sessions[sessionID]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.sessions, sessionID)
		}
	}
}
