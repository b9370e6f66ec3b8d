// Package realtime pushes events to connected dashboards over WebSocket.
//
// A single Hub goroutine owns the set of clients. Everything that touches
// that set or a client's send queue (registration, broadcast, direct sends
// to one client, dropping a slow client) happens on that goroutine, so a
// queue is never written after it has been closed.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/sakif/voteboard/internal/metrics"
	"github.com/sakif/voteboard/internal/model"
)

// ErrHubClosed is returned once Run has exited.
var ErrHubClosed = errors.New("realtime: hub closed")

type directMessage struct {
	client *Client
	data   []byte
}

// Hub fans events out to every registered client. It implements
// event.Publisher.
type Hub struct {
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	direct     chan directMessage
	done       chan struct{}

	count   atomic.Int64
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewHub(m *metrics.Metrics, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		direct:     make(chan directMessage, 64),
		done:       make(chan struct{}),
		metrics:    m,
		logger:     logger,
	}
}

// Run serves the hub until ctx is cancelled. On exit every client's queue is
// closed, which makes its write pump close the connection.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for c := range h.clients {
			h.remove(c)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.setCount(len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.remove(c)
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				h.deliver(c, msg)
			}

		case dm := <-h.direct:
			// The client may already have been dropped.
			if _, ok := h.clients[dm.client]; ok {
				h.deliver(dm.client, dm.data)
			}
		}
	}
}

// deliver queues msg without blocking; a client whose queue is full is
// dropped rather than slowing everyone else down.
func (h *Hub) deliver(c *Client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("dropping slow realtime client", slog.String("client_id", c.ID))
		h.remove(c)
		h.metrics.BroadcastDropped.Inc()
	}
}

func (h *Hub) remove(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.setCount(len(h.clients))
}

func (h *Hub) setCount(n int) {
	h.count.Store(int64(n))
	h.metrics.RealtimeClients.Set(float64(n))
}

// Clients is the number of registered clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// Register adds c to the broadcast set.
func (h *Hub) Register(ctx context.Context, c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unregister removes c. Calling it for a client the hub already dropped is
// a no-op.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish broadcasts ev to every client.
func (h *Hub) Publish(ctx context.Context, ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("realtime: encoding %s: %w", ev.Name, err)
	}

	select {
	case h.broadcast <- data:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send delivers ev to c only.
func (h *Hub) Send(ctx context.Context, c *Client, ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("realtime: encoding %s: %w", ev.Name, err)
	}

	select {
	case h.direct <- directMessage{client: c, data: data}:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
