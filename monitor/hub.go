package monitor

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Client is one connected dashboard WebSocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub manages connected dashboard clients and pushes Progress snapshots
// to all of them whenever the driver advances to a new iteration. It
// never re-sends a snapshot that hasn't changed, so an idle dashboard
// with no iterations in flight produces no WebSocket traffic.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	broadcast  chan Progress
	register   chan *Client
	unregister chan *Client

	lastIteration int
	haveLast      bool
}

// NewHub creates a new dashboard hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Progress, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's event loop. It blocks, so callers run it in its
// own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case progress := <-h.broadcast:
			data, err := json.Marshal(Message{Type: "progress", Payload: progress})
			if err != nil {
				slog.Error("monitor: failed to marshal progress", "error", err)
				continue
			}
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					go func(c *Client) { h.unregister <- c }(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Push queues progress for broadcast to every connected client if it
// reflects an iteration the hub hasn't already sent, dropping it
// instead if the hub's internal queue is full. Repeated calls with the
// same Iteration (the driver idling between events) are no-ops.
func (h *Hub) Push(progress Progress) {
	h.mu.Lock()
	if h.haveLast && progress.Iteration == h.lastIteration {
		h.mu.Unlock()
		return
	}
	h.lastIteration = progress.Iteration
	h.haveLast = true
	h.mu.Unlock()

	select {
	case h.broadcast <- progress:
	default:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
