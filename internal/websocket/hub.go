// Package websocket pushes state-change events to connected UI
// collaborators so they re-render without polling.
package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Event is one state-change notification. Scope names the state slice
// that changed ("auth" or "inventory"); clients re-fetch it over the API.
type Event struct {
	Type  string `json:"type"`
	Scope string `json:"scope"`
	At    int64  `json:"at"`
}

// Hub maintains the set of connected clients and fans events out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
}

// NewHub creates a hub; call Run in a goroutine to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 16),
	}
}

// Run is the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			log.Printf("📱 UI client connected: %s", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
				log.Printf("📴 UI client disconnected: %s", client.id)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client buffer full; it will catch up on re-fetch.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Notify implements app.Notifier: it broadcasts a state-change event for
// the given scope.
func (h *Hub) Notify(scope string) {
	msg, err := json.Marshal(Event{Type: "state", Scope: scope, At: time.Now().UnixMilli()})
	if err != nil {
		log.Printf("Error marshaling event: %v", err)
		return
	}
	select {
	case h.broadcast <- msg:
	default:
	}
}
