// Package notify publishes push notification requests for sent messages.
// Delivery to devices is done by a separate worker consuming the exchange.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/vedran77/chatcore/internal/domain"
)

const (
	EventMessageSent = "chat.message.sent"
	routingKeyPrefix = "push."
)

type Meta struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	OccurredAt    time.Time `json:"occurred_at"`
	CorrelationID string    `json:"correlation_id"`
}

type Envelope struct {
	Meta Meta                    `json:"meta"`
	Data domain.PushNotification `json:"data"`
}

// NewEnvelope wraps n. The message id doubles as correlation id so the
// consumer can dedupe redeliveries per message.
func NewEnvelope(n domain.PushNotification, now time.Time) Envelope {
	return Envelope{
		Meta: Meta{
			ID:            ulid.Make().String(),
			Type:          EventMessageSent,
			OccurredAt:    now.UTC(),
			CorrelationID: n.MessageID,
		},
		Data: n,
	}
}

// RoutingKey routes by content type, e.g. push.image.
func RoutingKey(n domain.PushNotification) string {
	return routingKeyPrefix + strings.ToLower(string(n.ContentType))
}

// AMQPPublisher publishes envelopes to a durable topic exchange.
type AMQPPublisher struct {
	conn     *amqp091.Connection
	exchange string
	log      zerolog.Logger
}

func NewAMQPPublisher(url, exchange string, log zerolog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{
		conn:     conn,
		exchange: exchange,
		log:      log.With().Str("component", "push_publisher").Logger(),
	}, nil
}

func (p *AMQPPublisher) NotifyMessageSent(ctx context.Context, n domain.PushNotification) error {
	env := NewEnvelope(n, time.Now())
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	key := RoutingKey(n)
	err = ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: env.Meta.CorrelationID,
		Timestamp:     env.Meta.OccurredAt,
		Type:          env.Meta.Type,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("publishing %s: %w", key, err)
	}

	p.log.Debug().
		Str("key", key).
		Str("message_id", n.MessageID).
		Int("devices", len(n.DeviceTokens)).
		Msg("push published")
	return nil
}

func (p *AMQPPublisher) Close() error {
	return p.conn.Close()
}

// LogNotifier only logs. It stands in when no broker is configured.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "push_log").Logger()}
}

func (n *LogNotifier) NotifyMessageSent(_ context.Context, p domain.PushNotification) error {
	n.log.Info().
		Str("room_id", p.RoomID).
		Str("message_id", p.MessageID).
		Str("preview", p.Preview).
		Int("devices", len(p.DeviceTokens)).
		Msg("push skipped, no broker configured")
	return nil
}
