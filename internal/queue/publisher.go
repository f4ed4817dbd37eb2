package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"task_tracker/internal/observability"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// Publisher sends JSON messages to a single durable queue on the default
// exchange. A channel is opened per message.
type Publisher struct {
	conn    *amqp.Connection
	queue   string
	metrics *observability.Metrics
}

func NewPublisher(conn *amqp.Connection, queueName string, metrics *observability.Metrics) (*Publisher, error) {
	ch, err := CreateChannel(conn)
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	if _, err := DeclareQueue(ch, queueName); err != nil {
		return nil, err
	}

	return &Publisher{conn: conn, queue: queueName, metrics: metrics}, nil
}

func (p *Publisher) Publish(ctx context.Context, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	ch, err := CreateChannel(p.conn)
	if err != nil {
		p.metrics.QueuePublishFailures.WithLabelValues(p.queue).Inc()
		return err
	}
	defer ch.Close()

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(
		ctx,
		"",      // exchange
		p.queue, // routing key (queue name)
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		p.metrics.QueuePublishFailures.WithLabelValues(p.queue).Inc()
		return fmt.Errorf("publish to %s: %w", p.queue, err)
	}

	p.metrics.QueueMessagesPublished.WithLabelValues(p.queue).Inc()
	return nil
}

// NoopPublisher drops every message. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, interface{}) error { return nil }
