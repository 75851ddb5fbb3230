// Package notify delivers trip_state change notifications from the store to
// subscribed devices. A Listener reports which trip key changed, Fanout
// reloads that document and the Hub pushes it to every client in the key's room.
package notify

import (
	"context"
	"sync"
)

// Client is one subscribed connection. Send is closed by the Hub when the
// client is unregistered or falls too far behind.
type Client struct {
	Room string
	Send chan []byte
}

// NewClient returns a client for room with a buffered send queue.
func NewClient(room string) *Client {
	return &Client{Room: room, Send: make(chan []byte, 16)}
}

type broadcastMsg struct {
	room string
	data []byte
}

// Hub groups clients into rooms keyed by trip address.
type Hub struct {
	rooms      map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMsg
	mu         sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMsg),
	}
}

// Run processes registrations and broadcasts until ctx is cancelled, then
// closes every remaining client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for room, clients := range h.rooms {
				for c := range clients {
					close(c.Send)
				}
				delete(h.rooms, room)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			if h.rooms[c.Room] == nil {
				h.rooms[c.Room] = make(map[*Client]struct{})
			}
			h.rooms[c.Room][c] = struct{}{}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			h.remove(c)
			h.mu.Unlock()

		case m := <-h.broadcast:
			h.mu.Lock()
			for c := range h.rooms[m.room] {
				select {
				case c.Send <- m.data:
				default:
					// Slow consumer; drop it rather than block the room.
					h.remove(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove must be called with mu held. It is safe to call twice for the same client.
func (h *Hub) remove(c *Client) {
	clients := h.rooms[c.Room]
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	close(c.Send)
	if len(clients) == 0 {
		delete(h.rooms, c.Room)
	}
}

// Register adds c to its room. It blocks until Run accepts it or ctx ends.
func (h *Hub) Register(ctx context.Context, c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unregister removes c from its room and closes its Send channel.
func (h *Hub) Unregister(ctx context.Context, c *Client) {
	select {
	case h.unregister <- c:
	case <-ctx.Done():
	}
}

// Broadcast queues data for every client in room.
func (h *Hub) Broadcast(ctx context.Context, room string, data []byte) {
	select {
	case h.broadcast <- broadcastMsg{room: room, data: data}:
	case <-ctx.Done():
	}
}

// Subscribers returns the number of clients currently in room.
func (h *Hub) Subscribers(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}
