package handler

import (
	"context"
	"log/slog"
	"net/http"

	"payment-console/internal/notification"
	"payment-console/internal/observability"
)

// ChannelController is the notification channel as driven by the control API.
// *notification.Channel satisfies it.
type ChannelController interface {
	Connect(ctx context.Context) error
	Disconnect()
	Status() notification.Status
}

type ChannelHandler struct {
	channel ChannelController
}

func NewChannelHandler(channel ChannelController) *ChannelHandler {
	return &ChannelHandler{channel: channel}
}

func (h *ChannelHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.channel.Status())
}

// Connect opens the channel. A dial failure is not an error here: the
// channel schedules its own reconnect and the status reflects it.
func (h *ChannelHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if err := h.channel.Connect(r.Context()); err != nil {
		observability.FromContext(r.Context()).Error("failed to connect notification channel",
			slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.channel.Status())
}

func (h *ChannelHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	h.channel.Disconnect()
	writeJSON(w, http.StatusOK, h.channel.Status())
}
