package mq

import (
	"context"
	"errors"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

const (
	DLQExchangeName = "events.dlq"
)

// ErrPermanent 标记不可重试的错误，consumer 会把消息转入 DLQ 并 ack
var ErrPermanent = errors.New("permanent failure")

// Permanent 包装错误为不可重试
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// DeclareDLQExchange declares the dead letter exchange.
func DeclareDLQExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		DLQExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// DeclareDLQQueue declares a dead letter queue for a specific routing key.
func DeclareDLQQueue(ch *amqp091.Channel, routingKey string) (amqp091.Queue, error) {
	q, err := ch.QueueDeclare(
		routingKey+".dlq",
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare DLQ queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, routingKey, DLQExchangeName, false, nil); err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to bind DLQ queue: %w", err)
	}

	return q, nil
}

// publishToDLQ publishes a failed message to the dead letter exchange.
func publishToDLQ(ctx context.Context, ch *amqp091.Channel, routingKey, source string, body []byte, cause error) error {
	return ch.PublishWithContext(ctx,
		DLQExchangeName,
		routingKey,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Headers: amqp091.Table{
				"x-original-error": cause.Error(),
				"x-failed-at":      source,
			},
		},
	)
}
