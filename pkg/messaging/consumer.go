package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/scentflow/scentflow-backend/pkg/logger"
)

// maxRedeliveries is how often a failing message is requeued before it is
// dead-lettered. A requeued message only carries the Redelivered flag, so
// anything above one relies on x-death headers from an upstream DLX.
const maxRedeliveries = 1

// MessageHandler is a function that handles a message
type MessageHandler func(ctx context.Context, event *Event) error

// Consumer handles consuming events from RabbitMQ
type Consumer struct {
	rmq       *RabbitMQ
	queueName string
	handlers  map[string]MessageHandler
	bindings  []binding
	logger    *logger.Logger
}

type binding struct {
	exchange   string
	routingKey string
}

// NewConsumer creates a new consumer for the given queue
func NewConsumer(rmq *RabbitMQ, queueName string, log *logger.Logger) (*Consumer, error) {
	if _, err := rmq.DeclareQueue(queueName); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	return &Consumer{
		rmq:       rmq,
		queueName: queueName,
		handlers:  make(map[string]MessageHandler),
		logger:    log.WithComponent("consumer"),
	}, nil
}

// Subscribe subscribes to an exchange with a routing key pattern
func (c *Consumer) Subscribe(exchange, routingKeyPattern string) error {
	if err := c.rmq.DeclareExchange(exchange); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if err := c.rmq.BindQueue(c.queueName, exchange, routingKeyPattern); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	c.remember(binding{exchange, routingKeyPattern})

	c.logger.Info().
		Str("queue", c.queueName).
		Str("exchange", exchange).
		Str("routing_key", routingKeyPattern).
		Msg("subscribed to exchange")

	return nil
}

func (c *Consumer) remember(b binding) {
	for _, existing := range c.bindings {
		if existing == b {
			return
		}
	}
	c.bindings = append(c.bindings, b)
}

// RegisterHandler registers a handler for a specific event type
func (c *Consumer) RegisterHandler(eventType string, handler MessageHandler) {
	c.handlers[eventType] = handler
}

// Start consumes the queue in the background until ctx is cancelled.
// Deliveries are processed one at a time. When the broker drops the channel
// the consumer reconnects and resumes.
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.consume()
	if err != nil {
		return err
	}

	c.logger.Info().Str("queue", c.queueName).Msg("consumer started")

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.logger.Info().Str("queue", c.queueName).Msg("consumer stopped")
				return
			case msg, ok := <-msgs:
				if ok {
					c.Dispatch(ctx, delivery{msg})
					continue
				}

				c.logger.Warn().Str("queue", c.queueName).Msg("delivery channel closed")
				if msgs, err = c.resume(ctx); err != nil {
					c.logger.Error().Err(err).Str("queue", c.queueName).Msg("consumer gave up")
					return
				}
			}
		}
	}()

	return nil
}

func (c *Consumer) consume() (<-chan amqp.Delivery, error) {
	msgs, err := c.rmq.Channel().Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	return msgs, nil
}

// resume reconnects and redeclares the queue with its bindings. A redeclare on
// a healthy connection is a no-op on the broker.
func (c *Consumer) resume(ctx context.Context) (<-chan amqp.Delivery, error) {
	if err := c.rmq.Reconnect(ctx); err != nil {
		return nil, err
	}
	if _, err := c.rmq.DeclareQueue(c.queueName); err != nil {
		return nil, fmt.Errorf("failed to redeclare queue %s: %w", c.queueName, err)
	}
	for _, b := range c.bindings {
		if err := c.Subscribe(b.exchange, b.routingKey); err != nil {
			return nil, err
		}
	}
	return c.consume()
}

// Delivery is the acknowledgement surface of an incoming message.
type Delivery interface {
	Body() []byte
	RoutingKey() string
	RetryCount() int
	Ack() error
	Nack(requeue bool) error
}

type delivery struct {
	amqp.Delivery
}

func (d delivery) Body() []byte { return d.Delivery.Body }

func (d delivery) RoutingKey() string { return d.Delivery.RoutingKey }

func (d delivery) Ack() error { return d.Delivery.Ack(false) }

func (d delivery) Nack(requeue bool) error { return d.Delivery.Nack(false, requeue) }

func (d delivery) RetryCount() int {
	if d.Headers == nil {
		return 0
	}

	if deaths, ok := d.Headers["x-death"].([]interface{}); ok {
		for _, death := range deaths {
			if t, ok := death.(amqp.Table); ok {
				if count, ok := t["count"].(int64); ok {
					return int(count)
				}
			}
		}
	}

	if d.Redelivered {
		return 1
	}
	return 0
}

// Dispatch routes one delivery to its handler and settles it. Malformed and
// unhandled messages are acknowledged or dead-lettered, never requeued.
func (c *Consumer) Dispatch(ctx context.Context, msg Delivery) {
	var event Event
	if err := json.Unmarshal(msg.Body(), &event); err != nil {
		c.logger.Error().Err(err).Msg("failed to unmarshal event")
		_ = msg.Nack(false)
		return
	}
	if event.Type == "" {
		event.Type = msg.RoutingKey()
	}

	ctx = WithCorrelationID(ctx, event.CorrelationID)
	log := c.logger.WithCorrelationID(event.CorrelationID)

	handler, ok := c.handlers[event.Type]
	if !ok {
		log.Debug().Str("event_type", event.Type).Msg("no handler registered for event type")
		_ = msg.Ack()
		return
	}

	log.Debug().Str("event_type", event.Type).Str("event_id", event.ID).Msg("processing event")

	err := handler(ctx, &event)
	if err == nil {
		_ = msg.Ack()
		return
	}

	retries := msg.RetryCount()
	requeue := retries < maxRedeliveries
	log.Error().
		Err(err).
		Str("event_type", event.Type).
		Str("event_id", event.ID).
		Int("retry_count", retries).
		Bool("requeue", requeue).
		Msg("failed to process event")
	_ = msg.Nack(requeue)
}
