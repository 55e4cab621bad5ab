// Package feed pushes alert change notifications to websocket subscribers.
package feed

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/farmacia/farmacia-backend/pkg/logger"
)

// Message types sent to subscribers
const (
	MessageHello = "hello"
	MessageAlert = "alert"
)

// Message is the frame written to subscribers. Events are "something changed"
// signals; subscribers re-fetch the alert list rather than trust the payload.
type Message struct {
	Type  string                 `json:"type"`
	Event *repository.AlertEvent `json:"event,omitempty"`
}

// Hub maintains the set of active subscribers and fans alert events out to them
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	mu         sync.RWMutex
	logger     *logger.Logger
}

// NewHub creates a new Hub instance
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		logger:     log.WithComponent("alert_feed"),
	}
}

// Run starts the hub's main loop. Every subscriber is disconnected when ctx
// ends, and connections arriving after that are closed right away.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug().Str("client_id", c.ID).Msg("subscriber connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.logger.Debug().Str("client_id", c.ID).Msg("subscriber disconnected")
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// slow subscriber; it reconnects and re-fetches
					delete(h.clients, c)
					close(c.send)
					h.logger.Warn().Str("client_id", c.ID).Msg("dropping slow subscriber")
				}
			}
			h.mu.Unlock()
		}
	}
}

// PublishAlertEvents queues the events for every connected subscriber
func (h *Hub) PublishAlertEvents(_ context.Context, events []repository.AlertEvent) {
	for i := range events {
		msg, err := json.Marshal(Message{Type: MessageAlert, Event: &events[i]})
		if err != nil {
			h.logger.Error().Err(err).Str("alert_id", events[i].AlertID).Msg("failed to encode alert event")
			continue
		}

		select {
		case h.broadcast <- msg:
		default:
			h.logger.Warn().Str("alert_id", events[i].AlertID).Msg("feed backlog full, event dropped")
		}
	}
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
