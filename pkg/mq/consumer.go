package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	gootel "go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"escrowflow/pkg/metrics"
	"escrowflow/pkg/otel"
	"escrowflow/pkg/trace"
)

type MessageHandler func(ctx context.Context, data json.RawMessage) error

type Consumer struct {
	channel    *amqp091.Channel
	queue      amqp091.Queue
	routingKey string
	handler    MessageHandler
	conn       *amqp091.Connection
	logger     *zap.Logger

	stopOnce sync.Once
	tag      string
}

// NewConsumer creates a consumer for a specific routing key.
func NewConsumer(url, queueName, routingKey string, logger *zap.Logger) (*Consumer, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	closeAll := func() {
		ch.Close()
		conn.Close()
	}

	if err := DeclareExchange(ch); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := DeclareDLQExchange(ch); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to declare dlq exchange: %w", err)
	}
	if _, err := DeclareDLQQueue(ch, routingKey); err != nil {
		closeAll()
		return nil, err
	}

	q, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, routingKey, ExchangeName, false, nil); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	logger.Info("Consumer initialized",
		zap.String("routing_key", routingKey),
		zap.String("queue", queueName),
		zap.String("exchange", ExchangeName),
	)

	return &Consumer{
		conn:       conn,
		channel:    ch,
		queue:      q,
		routingKey: routingKey,
		logger:     logger,
		tag:        queueName + ".consumer",
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

// IsConnected checks if the consumer connection is still alive
func (c *Consumer) IsConnected() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

// Stop cancels the delivery stream; StartConsuming returns once in-flight messages finish.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		if c.channel != nil {
			if err := c.channel.Cancel(c.tag, false); err != nil {
				c.logger.Warn("Failed to cancel consumer",
					zap.String("queue", c.queue.Name),
					zap.Error(err),
				)
			}
		}
	})
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming starts consuming messages. This method blocks and should be called in a goroutine.
func (c *Consumer) StartConsuming() error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		c.tag,
		false, // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
	)

	// 保证每条消息都会被 ack 或 nack
	for msg := range deliveries {
		c.process(msg)
	}

	c.logger.Info("Consumer stopped", zap.String("queue", c.queue.Name))
	return nil
}

func (c *Consumer) process(msg amqp091.Delivery) {
	start := time.Now()
	ctx := c.contextFromHeaders(msg.Headers)
	ctx, span := otel.MQConsumeSpan(ctx, c.routingKey, c.queue.Name)
	defer span.End()

	log := c.logger.With(
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Handler panic recovered", zap.Any("panic", r))
			// Panic → 拒绝消息并重新入队
			if err := msg.Nack(false, true); err != nil {
				log.Error("Failed to nack message after panic", zap.Error(err))
			}
		}
	}()

	err := c.handler(ctx, msg.Body)
	metrics.RecordMQConsumeLatency(c.routingKey, c.queue.Name, time.Since(start))

	switch {
	case err == nil:
		if ackErr := msg.Ack(false); ackErr != nil {
			log.Error("Failed to ack message", zap.Error(ackErr))
		}
	case errors.Is(err, ErrPermanent):
		// 不可重试 → 转入 DLQ 后 ack
		log.Error("Handler failed permanently, moving message to DLQ", zap.Error(err))
		if dlqErr := publishToDLQ(ctx, c.channel, c.routingKey, c.queue.Name, msg.Body, err); dlqErr != nil {
			log.Error("Failed to publish to DLQ, requeueing", zap.Error(dlqErr))
			_ = msg.Nack(false, true)
			return
		}
		if ackErr := msg.Ack(false); ackErr != nil {
			log.Error("Failed to ack message", zap.Error(ackErr))
		}
	default:
		// 业务失败 → 拒绝消息并重新入队，让 MQ 重试
		log.Error("Handler error", zap.Error(err))
		if nackErr := msg.Nack(false, true); nackErr != nil {
			log.Error("Failed to nack message", zap.Error(nackErr))
		}
	}
}

// contextFromHeaders 从消息头恢复 trace_id 和 traceparent
func (c *Consumer) contextFromHeaders(headers amqp091.Table) context.Context {
	ctx := context.Background()
	if headers == nil {
		return ctx
	}
	if traceID, ok := headers[trace.HeaderName()].(string); ok && traceID != "" {
		ctx = trace.WithContext(ctx, traceID)
	}
	return gootel.GetTextMapPropagator().Extract(ctx, otel.NewMQHeaderCarrier(headers))
}
