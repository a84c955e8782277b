package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"mailmirror/pkg/apperr"
	"mailmirror/pkg/metrics"
)

type MessageHandler func(ctx context.Context, data json.RawMessage) error

type Consumer struct {
	channel    *amqp091.Channel
	queue      amqp091.Queue
	routingKey string
	handler    MessageHandler
	conn       *amqp091.Connection
	dlq        *Publisher
	logger     *zap.Logger
}

// NewConsumer creates a consumer on a durable queue bound to a routing key
// pattern (topic wildcards allowed, e.g. "enrichment.*"). Messages survive
// a consumer restart; use this for fixed-name work queues.
func NewConsumer(url, queueName, routingKey string, logger *zap.Logger) (*Consumer, error) {
	return newConsumer(url, queueName, routingKey, true, false, false, logger)
}

// NewFanoutConsumer creates a consumer on an exclusive auto-delete queue.
// The queue dies with its connection, so a per-instance queue name never
// outlives the process that minted it and never accumulates events with
// nobody to drain them.
func NewFanoutConsumer(url, queueName, routingKey string, logger *zap.Logger) (*Consumer, error) {
	return newConsumer(url, queueName, routingKey, false, true, true, logger)
}

func newConsumer(url, queueName, routingKey string, durable, autoDelete, exclusive bool, logger *zap.Logger) (*Consumer, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		queueName,
		durable,
		autoDelete,
		exclusive,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		routingKey,
		ExchangeName,
		false,
		nil,
	)
	if err != nil {
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
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

// SetDLQ installs a publisher for poison messages. Without one,
// non-retryable failures are dropped after logging.
func (c *Consumer) SetDLQ(p *Publisher) {
	c.dlq = p
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming starts consuming messages. Blocks; run in a goroutine.
// Every delivery is either acked or nacked: retryable handler errors are
// nacked back onto the queue, non-retryable ones go to the DLQ and are acked.
func (c *Consumer) StartConsuming() error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		"worker",
		false, // manual ack
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

	for msg := range deliveries {
		c.consumeOne(msg)
	}

	// The broker closing the delivery channel is a failure, not a clean
	// stop; the caller decides whether to reconnect or crash.
	return fmt.Errorf("delivery channel closed for queue %s", c.queue.Name)
}

func (c *Consumer) consumeOne(msg amqp091.Delivery) {
	ctx := context.Background()
	start := time.Now()

	// Panic recovery: the message must still be nacked.
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Handler panic recovered",
				zap.String("routing_key", c.routingKey),
				zap.String("queue", c.queue.Name),
				zap.Any("panic", r),
			)
			if err := msg.Nack(false, true); err != nil {
				c.logger.Error("Failed to nack message after panic",
					zap.String("routing_key", c.routingKey),
					zap.Error(err),
				)
			}
		}
	}()

	if err := c.handler(ctx, msg.Body); err != nil {
		retryable, errType := apperr.IsRetryableError(err)
		c.logger.Error("Handler error",
			zap.String("routing_key", c.routingKey),
			zap.String("queue", c.queue.Name),
			zap.String("error_type", errType),
			zap.Bool("retryable", retryable),
			zap.Error(err),
		)

		if retryable {
			if err := msg.Nack(false, true); err != nil {
				c.logger.Error("Failed to nack message",
					zap.String("routing_key", c.routingKey),
					zap.Error(err),
				)
			}
			return
		}

		// Poison message: park it and move on.
		if c.dlq != nil {
			if dlqErr := c.dlq.PublishToDLQ(msg.RoutingKey, msg.Body, err.Error()); dlqErr != nil {
				c.logger.Error("Failed to publish to DLQ",
					zap.String("routing_key", msg.RoutingKey),
					zap.Error(dlqErr),
				)
			}
		}
		if err := msg.Ack(false); err != nil {
			c.logger.Error("Failed to ack poison message",
				zap.String("routing_key", c.routingKey),
				zap.Error(err),
			)
		}
		return
	}

	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack message",
			zap.String("routing_key", c.routingKey),
			zap.Error(err),
		)
		return
	}

	metrics.RecordMQConsumeLatency(msg.RoutingKey, c.queue.Name, time.Since(start))
}
