package handler

import (
	"errors"
	"net/http"

	"payment-console/internal/domain"
	"payment-console/internal/notification"

	"github.com/go-chi/chi/v5"
)

// Kinds accepted by POST /api/v1/notifications.
const (
	KindSystem        = "system"
	KindSecurity      = "security"
	KindPaymentStatus = "payment_status"
)

// NotificationRequest adds a local notification through one of the helpers.
type NotificationRequest struct {
	Kind      string          `json:"kind"`
	Message   string          `json:"message"`
	Severity  domain.Severity `json:"severity"`
	PaymentID string          `json:"paymentId"`
	Status    string          `json:"status"`
	Amount    string          `json:"amount"`
}

// NotificationHandler exposes the notification store.
type NotificationHandler struct {
	store *notification.Store
}

func NewNotificationHandler(store *notification.Store) *NotificationHandler {
	return &NotificationHandler{store: store}
}

// List returns notifications newest first with the unread count.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.State())
}

func (h *NotificationHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req NotificationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	var n domain.Notification
	switch req.Kind {
	case KindSystem:
		if req.Message == "" {
			writeError(w, http.StatusBadRequest, "message is required")
			return
		}
		n = h.store.System(ctx, req.Message, req.Severity)
	case KindSecurity:
		if req.Message == "" {
			writeError(w, http.StatusBadRequest, "message is required")
			return
		}
		n = h.store.Security(ctx, req.Message)
	case KindPaymentStatus:
		if req.PaymentID == "" || req.Status == "" {
			writeError(w, http.StatusBadRequest, "paymentId and status are required")
			return
		}
		n = h.store.PaymentStatus(ctx, req.PaymentID, req.Status, req.Amount)
	default:
		writeError(w, http.StatusBadRequest, "unknown notification kind")
		return
	}

	writeJSON(w, http.StatusCreated, n)
}

func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.store.MarkAsRead(chi.URLParam(r, "id")))
}

func (h *NotificationHandler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	h.store.MarkAllAsRead()
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) Remove(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.store.Remove(chi.URLParam(r, "id")))
}

func (h *NotificationHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	h.store.ClearAll()
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) respond(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, domain.ErrNotificationNotFound):
		writeError(w, http.StatusNotFound, "Notification not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
