// README: In-process hub tracking connected clients per channel; delivery never blocks publishers.
package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

const clientBuffer = 64

// Client is one live connection with a fixed set of channels.
type Client struct {
	ID       string
	Channels []string
	send     chan []byte
}

// Messages yields payloads for this client; it is closed on Unregister.
func (c *Client) Messages() <-chan []byte { return c.send }

type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Client]struct{}
	all      map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		channels: make(map[string]map[*Client]struct{}),
		all:      make(map[*Client]struct{}),
	}
}

func (h *Hub) Register(channels []string) *Client {
	c := &Client{
		ID:       uuid.NewString(),
		Channels: append([]string(nil), channels...),
		send:     make(chan []byte, clientBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[c] = struct{}{}
	for _, ch := range c.Channels {
		if h.channels[ch] == nil {
			h.channels[ch] = make(map[*Client]struct{})
		}
		h.channels[ch][c] = struct{}{}
	}
	return c
}

// Unregister removes c and closes its message channel. Calling it twice is a no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[c]; !ok {
		return
	}
	for _, ch := range c.Channels {
		if subs, ok := h.channels[ch]; ok {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.channels, ch)
			}
		}
	}
	delete(h.all, c)
	close(c.send)
}

// Deliver hands payload to every local subscriber of channel and returns how many took it.
// Clients whose buffer is full miss the message.
func (h *Hub) Deliver(channel string, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for c := range h.channels[channel] {
		select {
		case c.send <- payload:
			n++
		default:
			droppedTotal.Inc()
		}
	}
	return n
}

// Publish makes the hub usable as a single-instance Broker.
func (h *Hub) Publish(_ context.Context, channel string, payload []byte) error {
	h.Deliver(channel, payload)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) ChannelCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}
