// Package events streams execution lifecycle events to WebSocket subscribers.
package events

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/automend/automend/internal/database"
)

// ExecutionEvent is the wire format pushed to subscribers
type ExecutionEvent struct {
	Type          string                   `json:"type"`
	ActionType    string                   `json:"action_type"`
	ExecutionUUID string                   `json:"execution_uuid"`
	Status        database.ExecutionStatus `json:"status"`
	ErrorMessage  string                   `json:"error_message,omitempty"`
	Timestamp     time.Time                `json:"timestamp"`
}

// Hub fans execution events out to connected WebSocket clients. Implements
// the engine's event sink; publishing never blocks the engine, slow clients
// are dropped.
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	clients  map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan ExecutionEvent
}

// NewHub creates an event hub
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*client]struct{}),
	}
}

// SetupRoutes configures the WebSocket route
func (h *Hub) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/events", h.HandleWebSocket)
}

// HandleWebSocket upgrades the connection and subscribes it to the feed
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Events: websocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan ExecutionEvent, 32)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	log.Printf("Events: client connected (%d total)", count)

	go h.writeLoop(c)
	go h.readLoop(c)
}

// PublishExecution implements the engine's event sink
func (h *Hub) PublishExecution(eventType string, execution *database.ActionExecution, actionType string) {
	event := ExecutionEvent{
		Type:          eventType,
		ActionType:    actionType,
		ExecutionUUID: execution.UUID,
		Status:        execution.Status,
		ErrorMessage:  execution.ErrorMessage,
		Timestamp:     time.Now(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- event:
		default:
			// Slow client; drop the event rather than stall the engine
		}
	}
}

// SubscriberCount returns the number of connected clients
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) writeLoop(c *client) {
	defer h.drop(c)
	for event := range c.send {
		payload, err := json.Marshal(event)
		if err != nil {
			log.Printf("Events: failed to marshal event: %v", err)
			continue
		}
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// readLoop consumes client frames so pings and close frames are handled
func (h *Hub) readLoop(c *client) {
	defer h.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}
