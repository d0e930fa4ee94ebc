// internal/dashboard/hub.go
package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/tamzrod/pump-monitor/internal/metrics"
	"github.com/tamzrod/pump-monitor/internal/pump"
	"github.com/tamzrod/pump-monitor/internal/transition"
)

// Message is the envelope of every websocket frame.
type Message struct {
	Type    string `json:"type"` // "snapshot" | "event"
	Payload any    `json:"payload"`
}

// Hub maintains the set of active clients and broadcasts messages.
// All client bookkeeping happens on the Run goroutine.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewHub(log *slog.Logger, m *metrics.Metrics) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log.With("component", "hub"),
		metrics:    m,
	}
}

// Run owns the client set until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for c := range h.clients {
			close(c.send)
			delete(h.clients, c)
		}
		h.metrics.Subscribers(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = true
			h.metrics.Subscribers(len(h.clients))
			h.log.Info("websocket client registered", "remote", c.remote)

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.metrics.Subscribers(len(h.clients))
				h.log.Info("websocket client unregistered", "remote", c.remote)
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// a client that cannot keep up is dropped, never waited for
					h.log.Warn("websocket client too slow, removing", "remote", c.remote)
					close(c.send)
					delete(h.clients, c)
					h.metrics.Subscribers(len(h.clients))
				}
			}
		}
	}
}

// Pump broadcasts every snapshot received on in until ctx is done or in closes.
func (h *Hub) Pump(ctx context.Context, in <-chan pump.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-in:
			if !ok {
				return
			}
			h.Broadcast(Message{Type: "snapshot", Payload: snap})
		}
	}
}

// attach hands c to the hub. False once the hub has stopped.
func (h *Hub) attach(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) detach(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) SinkName() string { return "dashboard" }

// AppendEvent pushes a transition event to live clients. It never blocks.
func (h *Hub) AppendEvent(_ context.Context, e transition.Event) error {
	h.Broadcast(Message{Type: "event", Payload: e})
	return nil
}

// Broadcast queues msg for every client; when the queue is full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("marshal broadcast", "type", msg.Type, "err", err)
		return
	}
	select {
	case h.broadcast <- b:
	default:
		h.log.Warn("broadcast queue full, dropping", "type", msg.Type)
	}
}
