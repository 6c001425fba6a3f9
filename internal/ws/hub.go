package ws

import (
	"encoding/json"
	"sync"
)

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// roleEvent is an internal struct for routing events to role rooms
type roleEvent struct {
	Roles []string
	Event Event
}

// Hub maintains the set of active clients and broadcasts messages to
// them. Clients join the room for their role, so cooks see the kitchen
// feed and cashiers the settlement feed without filtering client-side.
type Hub struct {
	// Registered clients by role
	rooms map[string]map[*Client]bool

	// Inbound messages from clients (register/unregister)
	register   chan *Client
	unregister chan *Client

	// Outbound messages to broadcast
	broadcast chan *roleEvent

	// Mutex for thread-safe room access
	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *roleEvent, 256),
	}
}

// Run starts the hub's main loop
// This should be called as a goroutine: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.role] == nil {
				h.rooms[client.role] = make(map[*Client]bool)
			}
			h.rooms[client.role][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.role]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					close(client.send)
					// Clean up empty rooms
					if len(clients) == 0 {
						delete(h.rooms, client.role)
					}
				}
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()

			// Marshal event to JSON once
			message, err := json.Marshal(event.Event)
			if err != nil {
				h.mu.Unlock()
				continue
			}

			for _, role := range event.Roles {
				for client := range h.rooms[role] {
					select {
					case client.send <- message:
					default:
						// Client's send buffer is full, close and unregister
						close(client.send)
						delete(h.rooms[role], client)
						if len(h.rooms[role]) == 0 {
							delete(h.rooms, role)
						}
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastToRoles sends an event to every client whose role is in the
// given set. This is the public API for handlers to broadcast events.
func (h *Hub) BroadcastToRoles(event Event, roles ...string) {
	h.broadcast <- &roleEvent{
		Roles: roles,
		Event: event,
	}
}
