package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"payment-console/internal/domain"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

// NotificationsExchange is the fanout exchange notifications are relayed to.
const NotificationsExchange = "payments.notifications"

// DefaultConnectTimeout bounds the connect retry loop.
const DefaultConnectTimeout = 30 * time.Second

// Relay publishes notifications to RabbitMQ for other consumers.
type Relay struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewRelay connects with exponential backoff until ctx is done or
// DefaultConnectTimeout elapses, then declares the exchange.
func NewRelay(ctx context.Context, url string) (*Relay, error) {
	var conn *amqp.Connection

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = DefaultConnectTimeout

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		c, err := amqp.Dial(url)
		if err != nil {
			slog.Warn("rabbitmq connect attempt failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			return err
		}
		conn = c
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	r := &Relay{
		conn:    conn,
		channel: ch,
	}

	if err := r.Setup(); err != nil {
		r.Close()
		return nil, err
	}

	return r, nil
}

func (r *Relay) Setup() error {
	if err := r.channel.ExchangeDeclare(
		NotificationsExchange, // name
		"fanout",              // type
		true,                  // durable
		false,                 // auto-deleted
		false,                 // internal
		false,                 // no-wait
		nil,                   // arguments
	); err != nil {
		return fmt.Errorf("failed to declare notifications exchange: %w", err)
	}

	slog.Info("rabbitmq setup completed successfully", slog.String("exchange", NotificationsExchange))
	return nil
}

// PublishNotification publishes n as persistent JSON.
func (r *Relay) PublishNotification(ctx context.Context, n domain.Notification) error {
	msg, err := newPublishing(n)
	if err != nil {
		return err
	}

	if err := r.channel.PublishWithContext(ctx, NotificationsExchange, "", false, false, msg); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	slog.Debug("relayed notification",
		slog.String("notification_id", n.ID),
		slog.String("type", string(n.Type)))
	return nil
}

// Consume binds a durable queue to the exchange and starts consuming it.
func (r *Relay) Consume(queue string) (<-chan amqp.Delivery, error) {
	if _, err := r.channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	if err := r.channel.QueueBind(queue, "", NotificationsExchange, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind queue %s: %w", queue, err)
	}

	msgs, err := r.channel.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}
	return msgs, nil
}

func (r *Relay) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

// Ping reports whether the broker connection is usable.
func (r *Relay) Ping(context.Context) error {
	if r.IsClosed() {
		return amqp.ErrClosed
	}
	return nil
}

func (r *Relay) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func newPublishing(n domain.Notification) (amqp.Publishing, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal notification: %w", err)
	}

	ts := time.Now().UTC()
	if parsed, err := time.Parse(time.RFC3339Nano, n.Timestamp); err == nil {
		ts = parsed
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.ID,
		Type:         string(n.Type),
		Timestamp:    ts,
		Body:         body,
	}, nil
}
