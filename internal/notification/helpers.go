package notification

import (
	"context"
	"fmt"
	"strings"

	"payment-console/internal/domain"
)

var paymentStatusSeverity = map[string]domain.Severity{
	"COMPLETED": domain.SeveritySuccess,
	"FAILED":    domain.SeverityError,
	"CANCELLED": domain.SeverityWarning,
	"REFUNDED":  domain.SeverityInfo,
}

// PaymentStatus adds a notification for a payment status change.
func (s *Store) PaymentStatus(ctx context.Context, paymentID, status, amount string) domain.Notification {
	severity, ok := paymentStatusSeverity[status]
	if !ok {
		severity = domain.SeverityInfo
	}
	return s.Add(ctx, domain.NotificationInput{
		Type:        domain.TypePaymentCompleted,
		Title:       "Payment " + status,
		Message:     fmt.Sprintf("Payment of %s has been %s.", amount, strings.ToLower(status)),
		Severity:    severity,
		ActionURL:   "/payments/" + paymentID,
		ActionLabel: "View Payment",
	})
}

// System adds a general system notification. An empty severity means info.
func (s *Store) System(ctx context.Context, message string, severity domain.Severity) domain.Notification {
	return s.Add(ctx, domain.NotificationInput{
		Type:     domain.TypeSystemMaintenance,
		Title:    "System Notification",
		Message:  message,
		Severity: severity,
	})
}

func (s *Store) Security(ctx context.Context, message string) domain.Notification {
	return s.Add(ctx, domain.NotificationInput{
		Type:        domain.TypeSecurityAlert,
		Title:       "Security Alert",
		Message:     message,
		Severity:    domain.SeverityWarning,
		ActionURL:   "/settings/security",
		ActionLabel: "Review Security",
	})
}
