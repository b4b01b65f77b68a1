package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"studycompanion/server/internal/metrics"
)

// Hub tracks open clients per room and relays room-wide events
type Hub struct {
	// Clients by room, then by connection id
	rooms map[string]map[string]*Client

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run processes registrations until ctx is done, then closes every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// Register adds a client. After the hub stopped the client is closed instead.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.rooms[c.Room]
	if !ok {
		clients = make(map[string]*Client)
		h.rooms[c.Room] = clients
	}
	clients[c.ID] = c
	metrics.WebsocketConnections.Inc()

	log.Debug().Str("client", c.ID).Str("user", c.User.ID).Str("room", c.Room).Msg("client connected")
}

func (h *Hub) unregisterClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.rooms[c.Room]
	if !ok {
		return
	}
	if _, ok := clients[c.ID]; !ok {
		return
	}

	delete(clients, c.ID)
	if len(clients) == 0 {
		delete(h.rooms, c.Room)
	}
	c.close()
	metrics.WebsocketConnections.Dec()

	log.Debug().Str("client", c.ID).Str("user", c.User.ID).Str("room", c.Room).Msg("client disconnected")
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room, clients := range h.rooms {
		for _, c := range clients {
			c.close()
			metrics.WebsocketConnections.Dec()
		}
		delete(h.rooms, room)
	}
}

// BroadcastToRoom sends an event to every client in room except excludeID
func (h *Hub) BroadcastToRoom(room string, message WSMessage, excludeID string) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal broadcast")
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[room]))
	for id, c := range h.rooms[room] {
		if id != excludeID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(data)
	}
}

// RoomCount returns the number of clients connected to room
func (h *Hub) RoomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// GetOnlineCount returns the number of currently connected clients
func (h *Hub) GetOnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, clients := range h.rooms {
		n += len(clients)
	}
	return n
}

// GetOnlineUsers returns the distinct user ids currently connected
func (h *Hub) GetOnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]bool)
	users := []string{}
	for _, clients := range h.rooms {
		for _, c := range clients {
			if !seen[c.User.ID] {
				seen[c.User.ID] = true
				users = append(users, c.User.ID)
			}
		}
	}
	return users
}
