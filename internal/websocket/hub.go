package websocket

import (
	"context"
	"encoding/json"
	"log/slog"

	"payment-console/internal/domain"
	"payment-console/internal/observability"
)

// Event types pushed to UI clients.
const (
	EventSession       = "session"
	EventNotifications = "notifications"
	EventChannel       = "channel"
	EventToast         = "toast"
	EventRedirect      = "redirect"
)

// Event is the frame pushed to every state subscriber.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type toastData struct {
	Message    string          `json:"message"`
	Severity   domain.Severity `json:"severity"`
	DurationMs int64           `json:"durationMs"`
}

// Hub fans state events out to connected UI clients
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	// Closed once Run returns
	done chan struct{}
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub shutting down gracefully")
			return ctx.Err()

		case client := <-h.register:
			h.clients[client] = true
			observability.StateSubscribersActive.Inc()
			slog.Debug("state subscriber registered", slog.String("client_id", client.id))

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow subscriber, drop it
					h.unregisterClient(client)
				}
			}
		}
	}
}

func (h *Hub) unregisterClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	observability.StateSubscribersActive.Dec()
	slog.Debug("state subscriber unregistered", slog.String("client_id", client.id))
}

func (h *Hub) shutdown() {
	close(h.done)

	for client := range h.clients {
		h.unregisterClient(client)
	}

	slog.Info("hub shutdown complete")
}

// Publish broadcasts an event of the given type.
func (h *Hub) Publish(eventType string, data any) {
	msg, err := Encode(eventType, data)
	if err != nil {
		slog.Error("failed to marshal state event",
			slog.String("error", err.Error()),
			slog.String("type", eventType))
		return
	}
	h.Broadcast(msg)
}

// Toast pushes a transient message to UI clients. Hub satisfies domain.Toaster.
func (h *Hub) Toast(t domain.Toast) {
	h.Publish(EventToast, toastData{
		Message:    t.Message,
		Severity:   t.Severity,
		DurationMs: t.Duration.Milliseconds(),
	})
}

// Broadcast sends a raw frame to all clients. It is dropped once the hub has stopped.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Encode marshals an event frame.
func Encode(eventType string, data any) ([]byte, error) {
	return json.Marshal(Event{Type: eventType, Data: data})
}
