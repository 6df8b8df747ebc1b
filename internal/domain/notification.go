package domain

import (
	"errors"
	"time"
)

var ErrNotificationNotFound = errors.New("notification not found")

// Severity controls how a notification is presented.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ToastDuration returns how long a toast for this severity stays visible.
func (s Severity) ToastDuration() time.Duration {
	switch s {
	case SeverityError:
		return 8 * time.Second
	case SeverityWarning:
		return 6 * time.Second
	case SeveritySuccess:
		return 4 * time.Second
	default:
		return 5 * time.Second
	}
}

// NotificationType classifies a notification.
type NotificationType string

const (
	TypePaymentCompleted  NotificationType = "payment_completed"
	TypePaymentFailed     NotificationType = "payment_failed"
	TypeRefundProcessed   NotificationType = "refund_processed"
	TypeAccountUpdated    NotificationType = "account_updated"
	TypeSecurityAlert     NotificationType = "security_alert"
	TypeSystemMaintenance NotificationType = "system_maintenance"
)

// Notification is a single entry in the user's notification list.
type Notification struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Severity    Severity         `json:"severity"`
	Timestamp   string           `json:"timestamp"`
	IsRead      bool             `json:"isRead"`
	ActionURL   string           `json:"actionUrl,omitempty"`
	ActionLabel string           `json:"actionLabel,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}

// NotificationInput is a notification before id, timestamp and read state are assigned.
type NotificationInput struct {
	Type        NotificationType
	Title       string
	Message     string
	Severity    Severity
	ActionURL   string
	ActionLabel string
	Metadata    map[string]any
}

// ChannelMessage is an inbound frame on the real-time channel.
type ChannelMessage struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// Toast is a transient, user-visible message.
type Toast struct {
	Message  string        `json:"message"`
	Severity Severity      `json:"severity"`
	Duration time.Duration `json:"duration"`
}

// Toaster surfaces transient messages to the user.
type Toaster interface {
	Toast(t Toast)
}
