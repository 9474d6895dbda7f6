// Package websocket pushes license status transitions to connected UI
// clients so an expiry or revocation mid-session is reflected without a
// page reload. The per-second countdown shown in the UI is derived
// client-side and is never authoritative.
package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"clinicore/internal/config"
	"clinicore/internal/license"
)

// Message is the envelope sent to clients
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub maintains the set of active clients and broadcasts license status
// messages to them.
type Hub struct {
	cfg      config.WebSocketConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}

	// lastStatus is replayed to newly connected clients so they do not
	// wait a full check interval for their first status.
	lastStatus *Message
}

// NewHub creates a hub with the given websocket configuration
func NewHub(cfg config.WebSocketConfig, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "websocket_hub")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			// Local desktop application; the server only listens on loopback.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeWS upgrades an HTTP request to a websocket connection
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket upgrade failed",
			slog.String("error", err.Error()),
		)
		return
	}

	c := newClient(h, conn)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	replay := h.lastStatus
	h.mu.Unlock()

	h.logger.DebugContext(r.Context(), "websocket client connected",
		slog.String("remote", conn.RemoteAddr().String()),
	)

	if replay != nil {
		c.enqueue(*replay)
	}

	go c.writePump()
	go c.readPump()
}

// BroadcastLicenseStatus pushes a status transition to all clients
func (h *Hub) BroadcastLicenseStatus(result license.CheckResult) {
	msg := Message{
		Type: "license_status",
		Data: map[string]interface{}{
			"status":           string(result.Status),
			"can_proceed":      result.CanProceed,
			"remaining_days":   result.RemainingDays,
			"is_expiring_soon": result.IsExpiringSoon,
			"checked_at":       result.CheckedAt,
		},
		Timestamp: time.Now(),
	}

	h.mu.Lock()
	h.lastStatus = &msg
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.enqueue(msg)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// remove unregisters a client
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// marshal encodes a message, logging on failure
func (h *Hub) marshal(msg Message) ([]byte, bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal websocket message",
			slog.String("type", msg.Type),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	return data, true
}
