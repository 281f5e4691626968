// Package live pushes running session totals to whoever is watching a session.
// The score entry path publishes after every saved end; HTTP clients subscribe through a
// Server-Sent Events stream and receive each update as it happens instead of polling.
package live

import (
	"context"
	"sync"
)

// Client is one subscriber watching one session.
type Client struct {
	SessionID int64
	// Send is buffered; the hub drops a client whose buffer is full rather than
	// stall every other subscriber.
	Send chan []byte
}

// Message is a payload for every subscriber of SessionID.
type Message struct {
	SessionID int64
	Data      []byte
}

// Hub fans messages out to clients grouped by session id.
// All membership changes happen on the Run goroutine through channels.
type Hub struct {
	clients map[int64]map[*Client]bool

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
	// done is closed when Run returns so late callers do not block.
	done chan struct{}

	// mu guards clients for Subscribers, which is read from other goroutines.
	mu sync.RWMutex

	bufferSize int
}

// NewHub returns a hub whose clients buffer up to bufferSize messages.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Hub{
		clients:    make(map[int64]map[*Client]bool),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		bufferSize: bufferSize,
	}
}

// Run is the hub's event loop. It returns when ctx is done, closing every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, clients := range h.clients {
				for c := range clients {
					close(c.Send)
				}
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			if h.clients[c.SessionID] == nil {
				h.clients[c.SessionID] = make(map[*Client]bool)
			}
			h.clients[c.SessionID][c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			h.remove(c)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients[msg.SessionID] {
				select {
				case c.Send <- msg.Data:
				default:
					// Too slow to keep up; the stream handler sees Send closed and ends.
					h.remove(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove must be called with mu held.
func (h *Hub) remove(c *Client) {
	clients, ok := h.clients[c.SessionID]
	if !ok || !clients[c] {
		return
	}
	delete(clients, c)
	close(c.Send)
	if len(clients) == 0 {
		delete(h.clients, c.SessionID)
	}
}

// Publish queues data for every subscriber of sessionID. It does not block on slow clients.
func (h *Hub) Publish(sessionID int64, data []byte) {
	select {
	case h.broadcast <- &Message{SessionID: sessionID, Data: data}:
	case <-h.done:
	}
}

// Subscribe registers a new client for sessionID.
func (h *Hub) Subscribe(sessionID int64) *Client {
	c := &Client{SessionID: sessionID, Send: make(chan []byte, h.bufferSize)}
	select {
	case h.register <- c:
	case <-h.done:
		close(c.Send)
	}
	return c
}

// Unsubscribe removes c. It is safe to call after the hub already dropped it.
func (h *Hub) Unsubscribe(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Subscribers reports how many clients watch sessionID.
func (h *Hub) Subscribers(sessionID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}
