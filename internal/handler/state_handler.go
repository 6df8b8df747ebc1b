package handler

import (
	"log/slog"
	"net/http"

	"payment-console/internal/observability"
	ws "payment-console/internal/websocket"

	"github.com/gorilla/websocket"
)

// SnapshotFunc returns the frames a new subscriber receives before live events.
type SnapshotFunc func() [][]byte

// StateHandler upgrades UI clients to the /ws/state push stream.
type StateHandler struct {
	hub      *ws.Hub
	snapshot SnapshotFunc
	upgrader websocket.Upgrader
}

// NewStateHandler accepts upgrades from the listed origins; "*" accepts any.
// Requests without an Origin header (non-browser clients) are always accepted.
func NewStateHandler(hub *ws.Hub, snapshot SnapshotFunc, allowedOrigins []string) *StateHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &StateHandler{
		hub:      hub,
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// HandleConnection handles WebSocket upgrade and connection
func (h *StateHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := ws.NewClient(h.hub, conn)
	if h.snapshot != nil {
		for _, frame := range h.snapshot() {
			if !client.Enqueue(frame) {
				logger.Warn("initial state frame dropped", slog.String("client_id", client.ID()))
			}
		}
	}

	h.hub.Register(client)
	logger.Info("state subscriber connected", slog.String("client_id", client.ID()))

	go client.WritePump()
	go client.ReadPump()
}
