package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"task_tracker/internal/observability"
	"task_tracker/internal/task"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// ErrMalformedEvent marks a message that can never be processed.
var ErrMalformedEvent = errors.New("malformed task event")

// Delivery is the part of amqp.Delivery the worker acknowledges through.
type Delivery interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// Worker consumes task lifecycle events from one queue.
type Worker struct {
	id      int
	queue   string
	metrics *observability.Metrics
}

func New(id int, queueName string, metrics *observability.Metrics) *Worker {
	return &Worker{id: id, queue: queueName, metrics: metrics}
}

// Start consumes until ctx is cancelled or the channel closes.
func (w *Worker) Start(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("worker %d open channel: %w", w.id, err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("worker %d set QoS: %w", w.id, err)
	}

	msgs, err := ch.Consume(
		w.queue,
		fmt.Sprintf("task-events-worker-%d", w.id),
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("worker %d consume %s: %w", w.id, w.queue, err)
	}

	logrus.Infof("Worker %d started", w.id)

	for {
		select {
		case <-ctx.Done():
			logrus.Infof("Worker %d stopping", w.id)
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("worker %d: delivery channel closed", w.id)
			}
			w.Process(&msg, msg.Body)
		}
	}
}

// Process handles one delivery. A body that does not decode to a known event
// is rejected without requeue; everything else is acknowledged.
func (w *Worker) Process(d Delivery, body []byte) {
	w.metrics.QueueMessagesConsumed.WithLabelValues(w.queue).Inc()

	event, err := DecodeEvent(body)
	if err != nil {
		logrus.WithError(err).WithField("worker_id", w.id).Error("Rejecting task event")
		w.metrics.TaskEventHandlingErrors.WithLabelValues("decode").Inc()
		if nackErr := d.Nack(false, false); nackErr != nil {
			logrus.WithError(nackErr).Error("Failed to nack task event")
		}
		return
	}

	logrus.WithFields(logrus.Fields{
		"worker_id":   w.id,
		"event":       event.Type,
		"task_id":     event.TaskID,
		"user_id":     event.UserID,
		"status":      event.Status,
		"occurred_at": event.OccurredAt,
	}).Info("Task event")
	w.metrics.TaskEventsHandledTotal.WithLabelValues(string(event.Type)).Inc()

	if err := d.Ack(false); err != nil {
		logrus.WithError(err).Error("Failed to ack task event")
	}
}

// DecodeEvent parses a task event and checks it names a known type and a
// task and owner.
func DecodeEvent(body []byte) (*task.Event, error) {
	var event task.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch event.Type {
	case task.EventCreated, task.EventStatusChanged, task.EventDeleted:
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, event.Type)
	}
	if event.TaskID <= 0 || event.UserID <= 0 {
		return nil, fmt.Errorf("%w: missing task or user id", ErrMalformedEvent)
	}

	return &event, nil
}
