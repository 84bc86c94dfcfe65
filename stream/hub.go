package stream

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/stem-connect/keyroute/eventlog"
	"github.com/stem-connect/keyroute/metrics"
)

// Hub tracks the active websocket clients and fans event entries out to
// them.
type Hub struct {
	mu         sync.Mutex
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is cancelled; all registration and
// fan-out happens on this goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			close(h.done)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			metrics.AddStreamClients(1)
			log.Printf("stream client registered: %s", client.Conn.RemoteAddr())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				metrics.AddStreamClients(-1)
				log.Printf("stream client unregistered: %s", client.Conn.RemoteAddr())
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// Slow consumer; drop it rather than stall the loop.
					delete(h.clients, client)
					close(client.Send)
					metrics.AddStreamClients(-1)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register hands a new client to the run loop. A client arriving after
// shutdown has its send channel closed so its pumps exit immediately.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

// Unregister removes a client from the run loop. A no-op after shutdown,
// when the loop has already closed every client.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastEvent pushes one event log entry to every connected client.
// Entries appended after shutdown are dropped.
func (h *Hub) BroadcastEvent(e eventlog.Entry) {
	b, err := json.Marshal(map[string]any{"type": "event", "payload": e})
	if err != nil {
		log.Printf("failed to marshal event for broadcast: %v", err)
		return
	}
	select {
	case h.broadcast <- b:
	case <-h.done:
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
