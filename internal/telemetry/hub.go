// Package telemetry exposes a read-only TCP fan-out of decoded MDP events
// and periodic channel snapshots. Telemetry clients are observers only;
// they cannot issue commands to the device.
package telemetry

import (
	"sync"

	"github.com/kstaniek/mdp-host/internal/logging"
	"github.com/kstaniek/mdp-host/internal/metrics"
)

// BackpressurePolicy selects what happens when a client's outbound queue is
// full: drop the message, or kick the client.
type BackpressurePolicy int

const (
	PolicyDrop BackpressurePolicy = iota
	PolicyKick
)

// Client is one connected telemetry observer's outbound queue.
type Client struct {
	Out       chan []byte
	Closed    chan struct{}
	closeOnce sync.Once
}

// Close signals the client is closed; idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.Closed) })
}

// Hub fans out encoded messages to every connected telemetry client.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	OutBufSize int
	Policy     BackpressurePolicy
}

// NewHub returns an empty Hub.
func NewHub() *Hub { return &Hub{clients: make(map[*Client]struct{})} }

// Add registers a client with the hub.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	prev := len(h.clients)
	h.clients[c] = struct{}{}
	cur := len(h.clients)
	h.mu.Unlock()
	metrics.SetTelemetryClients(cur)
	if prev == 0 && cur == 1 {
		logging.L().Info("telemetry_clients_first_connected")
	}
}

// Remove unregisters a client; safe to call more than once.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	_, existed := h.clients[c]
	if existed {
		delete(h.clients, c)
	}
	cur := len(h.clients)
	h.mu.Unlock()
	c.Close()
	metrics.SetTelemetryClients(cur)
	if existed && cur == 0 {
		logging.L().Info("telemetry_clients_last_disconnected")
	}
}

// Broadcast enqueues msg for every connected client, honoring the
// backpressure policy when a client's queue is full.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		select {
		case c.Out <- msg:
		default:
			if h.Policy == PolicyKick {
				c.Close()
			} else {
				metrics.IncError(metrics.ErrTelemetryWrite)
			}
		}
	}
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
