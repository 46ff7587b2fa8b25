package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tickwatch/internal/logger"
	"tickwatch/internal/models"
)

// ErrMalformedMessage is returned by ReadMessage when a frame is not a
// valid message. The connection is still usable.
var ErrMalformedMessage = errors.New("malformed message")

// WebSocketMessage represents a message sent over WebSocket
type WebSocketMessage struct {
	Type      string    `json:"type"` // "health", "ping", "pong", "subscribe", "unsubscribe", "error"
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// SnapshotSource supplies the payload of every health broadcast.
type SnapshotSource interface {
	Snapshot() models.HealthSnapshot
}

// ClientConnection represents a connected WebSocket client
type ClientConnection struct {
	ID   string
	Conn *websocket.Conn
	Send chan WebSocketMessage
}

// NewClientConnection wraps an upgraded connection with a buffered send queue.
func NewClientConnection(id string, conn *websocket.Conn) *ClientConnection {
	return &ClientConnection{
		ID:   id,
		Conn: conn,
		Send: make(chan WebSocketMessage, 256),
	}
}

// WebSocketHub manages all connected WebSocket clients and accounts their
// traffic on the meter the health monitor reads from.
type WebSocketHub struct {
	clients    map[string]*ClientConnection
	register   chan *ClientConnection
	unregister chan string
	mu         sync.RWMutex
	done       chan struct{}

	source   SnapshotSource
	meter    *TrafficMeter
	interval time.Duration
	log      *zap.Logger
}

// NewWebSocketHub creates a hub. Call Run to start it.
func NewWebSocketHub(source SnapshotSource, meter *TrafficMeter, interval time.Duration, log *zap.Logger) *WebSocketHub {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &WebSocketHub{
		clients:    make(map[string]*ClientConnection),
		register:   make(chan *ClientConnection),
		unregister: make(chan string),
		done:       make(chan struct{}),
		source:     source,
		meter:      meter,
		interval:   interval,
		log:        log.With(logger.Scope("ws.hub")),
	}
}

// Run manages the hub's event loop until ctx is cancelled. Every interval it
// rolls the traffic meter and broadcasts a health snapshot.
func (h *WebSocketHub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			if old, exists := h.clients[client.ID]; exists {
				close(old.Send)
			} else if h.meter != nil {
				h.meter.Opened()
			}
			h.clients[client.ID] = client
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info("client connected", zap.String("client", client.ID), zap.Int("total", total))

		case clientID := <-h.unregister:
			h.mu.Lock()
			if client, exists := h.clients[clientID]; exists {
				delete(h.clients, clientID)
				close(client.Send)
				if h.meter != nil {
					h.meter.Closed()
				}
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info("client disconnected", zap.String("client", clientID), zap.Int("total", total))

		case now := <-ticker.C:
			if h.meter != nil {
				h.meter.Roll(now)
			}
			if h.source == nil {
				continue
			}
			h.fanOut(WebSocketMessage{
				Type:      "health",
				Timestamp: now,
				Data:      h.source.Snapshot(),
			})
		}
	}
}

func (h *WebSocketHub) fanOut(msg WebSocketMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Send <- msg:
		default:
			// Client's send channel is full, skip this message
		}
	}
}

// shutdown closes every client queue so write pumps exit.
func (h *WebSocketHub) shutdown() {
	close(h.done)
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		close(client.Send)
		delete(h.clients, id)
		if h.meter != nil {
			h.meter.Closed()
		}
	}
}

// Register adds a new client to the hub. It returns false once the hub stopped.
func (h *WebSocketHub) Register(client *ClientConnection) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub
func (h *WebSocketHub) Unregister(clientID string) {
	select {
	case h.unregister <- clientID:
	case <-h.done:
	}
}

// SendMessage queues a message for one client. It reports whether the
// message was queued.
func (h *WebSocketHub) SendMessage(clientID string, msg WebSocketMessage) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, exists := h.clients[clientID]
	if !exists {
		return false
	}
	select {
	case client.Send <- msg:
		return true
	default:
		return false
	}
}

// ClientCount returns the number of registered clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// WriteMessage encodes msg and writes it to the client, counting the bytes sent.
func (h *WebSocketHub) WriteMessage(client *ClientConnection, msg WebSocketMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := client.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	if h.meter != nil {
		h.meter.AddTx(len(data))
	}
	return nil
}

// ReadMessage reads and decodes one message from the client, counting the
// bytes received.
func (h *WebSocketHub) ReadMessage(client *ClientConnection) (WebSocketMessage, error) {
	var msg WebSocketMessage
	_, data, err := client.Conn.ReadMessage()
	if err != nil {
		return msg, err
	}
	if h.meter != nil {
		h.meter.AddRx(len(data))
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return msg, nil
}
