// ABOUTME: RabbitMQ publisher for domain events using a durable topic exchange
// ABOUTME: Opens a short-lived channel per publish; the event type is the routing key

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher publishes envelopes to a RabbitMQ topic exchange.
type AMQPPublisher struct {
	conn     *amqp091.Connection
	exchange string
	producer string
	logger   *slog.Logger
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(url, exchange, producer string, logger *slog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening amqp channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{
		conn:     conn,
		exchange: exchange,
		producer: producer,
		logger:   logger.With("component", "events"),
	}, nil
}

// Producer is the name stamped into envelope metadata.
func (p *AMQPPublisher) Producer() string {
	return p.producer
}

// Publish marshals the envelope and sends it with the event type as routing key.
func (p *AMQPPublisher) Publish(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("opening amqp channel: %w", err)
	}
	defer ch.Close()

	msgID := env.Meta.ID
	if msgID == "" {
		msgID = uuid.NewString()
	}
	cid := msgID
	if env.Meta.CorrelationID != nil {
		cid = *env.Meta.CorrelationID
	}

	err = ch.PublishWithContext(ctx, p.exchange, string(env.Meta.Type), false, false,
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			MessageId:     msgID,
			CorrelationId: cid,
			Timestamp:     time.Now(),
			Type:          string(env.Meta.Type),
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("publishing %s: %w", env.Meta.Type, err)
	}
	p.logger.Debug("published", "type", env.Meta.Type, "id", msgID)
	return nil
}

// Close closes the broker connection.
func (p *AMQPPublisher) Close() error {
	return p.conn.Close()
}

var _ Publisher = (*AMQPPublisher)(nil)
