package queue

import (
	"fmt"
	"task_tracker/internal/config"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const maxRetries = 5

func SetupRabbitMQ(rabbitMQCfg *config.RabbitMQConfig) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error

	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(rabbitMQCfg.URL)
		if err != nil {
			logrus.WithError(err).Warnf("Failed to connect to RabbitMQ (attempt %d/%d)", i+1, maxRetries)
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}

		break
	}

	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ after %d attempts: %w", maxRetries, err)
	}

	logrus.Info("RabbitMQ connection established successfully")
	return conn, nil
}

func CreateChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	return ch, nil
}

func DeclareQueue(ch *amqp.Channel, queueName string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("failed to declare queue: %w", err)
	}

	return q, nil
}
