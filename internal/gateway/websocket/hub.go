// Package websocket exposes the daemon's chat surface to front-ends over a
// WebSocket gateway: inbound frames become user messages on the event bus,
// and bus traffic fans out to every connected client.
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/thalassa-ai/thalassa/internal/common/logger"
	"github.com/thalassa-ai/thalassa/internal/events/bus"
)

// Hub manages all connected clients and pumps bus events out to them.
type Hub struct {
	eventBus bus.EventBus

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	logger *logger.Logger
}

func NewHub(eventBus bus.EventBus, log *logger.Logger) *Hub {
	return &Hub{
		eventBus:   eventBus,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     log.WithFields(zap.String("component", "ws_hub")),
	}
}

// Run processes client registration and relays bus events until the context
// is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	sub, err := h.eventBus.Subscribe()
	if err != nil {
		return err
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	h.logger.Info("websocket hub started")
	defer h.logger.Info("websocket hub stopped")

	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return ctx.Err()

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", zap.String("client_id", client.ID))

		case client := <-h.unregister:
			h.removeClient(client)

		case event, ok := <-sub.Events():
			if !ok {
				h.closeAllClients()
				return nil
			}
			h.relay(event)
		}
	}
}

// relay turns a bus event into an outbound frame and broadcasts it.
func (h *Hub) relay(event *bus.Event) {
	var frame *Frame
	var err error

	switch event.Type {
	case bus.EventChatMessage:
		frame, err = newFrame(FrameMessage, "", event.Chat)
	case bus.EventSystemNotification:
		frame, err = newFrame(FrameNotification, "", event.Notify)
	default:
		return
	}
	if err != nil {
		h.logger.Error("failed to encode outbound frame", zap.Error(err))
		return
	}
	h.Broadcast(frame)
}

// Broadcast sends a frame to every connected client. Slow clients are
// skipped; their write pump cleans them up.
func (h *Hub) Broadcast(frame *Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("failed to marshal broadcast frame", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.logger.Debug("client unregistered", zap.String("client_id", client.ID))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}
