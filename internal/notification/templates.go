package notification

import (
	"errors"
	"fmt"
	"strings"

	"payment-console/internal/domain"

	"github.com/mitchellh/mapstructure"
)

// Inbound channel message types.
const (
	MessagePaymentCompleted  = "PAYMENT_COMPLETED"
	MessagePaymentFailed     = "PAYMENT_FAILED"
	MessageRefundProcessed   = "REFUND_PROCESSED"
	MessageAccountUpdated    = "ACCOUNT_UPDATED"
	MessageSecurityAlert     = "SECURITY_ALERT"
	MessageSystemMaintenance = "SYSTEM_MAINTENANCE"
)

var ErrUnknownMessageType = errors.New("unknown notification message type")

type paymentPayload struct {
	PaymentID       string `mapstructure:"paymentId"`
	FormattedAmount string `mapstructure:"formattedAmount"`
	Reason          string `mapstructure:"reason"`
}

type textPayload struct {
	Message string `mapstructure:"message"`
}

// Render maps an inbound channel message onto its notification template.
// The raw payload is kept as metadata.
func Render(msg domain.ChannelMessage) (domain.NotificationInput, error) {
	switch msg.Type {
	case MessagePaymentCompleted, MessagePaymentFailed, MessageRefundProcessed:
		var p paymentPayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			return domain.NotificationInput{}, err
		}
		return renderPayment(msg.Type, p, msg.Payload), nil

	case MessageAccountUpdated:
		var p textPayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			return domain.NotificationInput{}, err
		}
		return domain.NotificationInput{
			Type:        domain.TypeAccountUpdated,
			Title:       "Account Updated",
			Message:     orDefault(p.Message, "Your account has been updated."),
			Severity:    domain.SeverityInfo,
			ActionURL:   "/profile",
			ActionLabel: "View Profile",
			Metadata:    msg.Payload,
		}, nil

	case MessageSecurityAlert:
		var p textPayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			return domain.NotificationInput{}, err
		}
		return domain.NotificationInput{
			Type:        domain.TypeSecurityAlert,
			Title:       "Security Alert",
			Message:     orDefault(p.Message, "A security event has been detected on your account."),
			Severity:    domain.SeverityWarning,
			ActionURL:   "/settings/security",
			ActionLabel: "Review Security",
			Metadata:    msg.Payload,
		}, nil

	case MessageSystemMaintenance:
		var p textPayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			return domain.NotificationInput{}, err
		}
		return domain.NotificationInput{
			Type:     domain.TypeSystemMaintenance,
			Title:    "System Maintenance",
			Message:  orDefault(p.Message, "System maintenance is scheduled."),
			Severity: domain.SeverityInfo,
			Metadata: msg.Payload,
		}, nil

	default:
		return domain.NotificationInput{}, fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.Type)
	}
}

func renderPayment(kind string, p paymentPayload, raw map[string]any) domain.NotificationInput {
	in := domain.NotificationInput{
		ActionURL:   "/payments/" + p.PaymentID,
		ActionLabel: "View Payment",
		Metadata:    raw,
	}

	switch kind {
	case MessagePaymentCompleted:
		in.Type = domain.TypePaymentCompleted
		in.Title = "Payment Completed"
		in.Message = fmt.Sprintf("Payment of %s has been completed successfully.", p.FormattedAmount)
		in.Severity = domain.SeveritySuccess
	case MessagePaymentFailed:
		in.Type = domain.TypePaymentFailed
		in.Title = "Payment Failed"
		in.Message = strings.TrimSpace(fmt.Sprintf("Payment of %s has failed. %s", p.FormattedAmount, p.Reason))
		in.Severity = domain.SeverityError
	case MessageRefundProcessed:
		in.Type = domain.TypeRefundProcessed
		in.Title = "Refund Processed"
		in.Message = fmt.Sprintf("Refund of %s has been processed.", p.FormattedAmount)
		in.Severity = domain.SeverityInfo
		in.ActionLabel = "View Transaction"
	}
	return in
}

// decodePayload tolerates loosely typed payloads, e.g. numeric payment ids.
func decodePayload(payload map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to build payload decoder: %w", err)
	}
	if err := dec.Decode(payload); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
