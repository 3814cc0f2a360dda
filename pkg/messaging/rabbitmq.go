package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/scentflow/scentflow-backend/pkg/config"
	"github.com/scentflow/scentflow-backend/pkg/logger"
)

// ErrClosed is returned by Reconnect after Close.
var ErrClosed = errors.New("rabbitmq: connection permanently closed")

// RabbitMQ owns one connection and one channel shared by the publisher and
// the sales consumer. Both survive a broker restart through Reconnect.
type RabbitMQ struct {
	cfg     *config.RabbitMQConfig
	name    string
	logger  *logger.Logger
	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool
}

// New dials the broker. name shows up as the connection name in the
// management UI.
func New(cfg *config.RabbitMQConfig, name string, log *logger.Logger) (*RabbitMQ, error) {
	r := &RabbitMQ{
		cfg:    cfg,
		name:   name,
		logger: log.WithComponent("rabbitmq"),
	}

	if err := r.connect(); err != nil {
		return nil, err
	}
	return r, nil
}

// connect must be called with mu held or before r is shared.
func (r *RabbitMQ) connect() error {
	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(r.name)

	conn, err := amqp.DialConfig(r.cfg.URL, amqp.Config{Properties: props})
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	// prefetch bounds the unacknowledged sale events held by this instance
	if err := ch.Qos(r.cfg.PrefetchCount, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	r.conn, r.channel = conn, ch
	r.logger.Info().Str("connection", r.name).Msg("connected to RabbitMQ")
	return nil
}

// Channel returns the current channel. Callers must not cache it across a
// Reconnect.
func (r *RabbitMQ) Channel() *amqp.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channel
}

// Close closes the channel and the connection. Reconnect fails afterwards.
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	return r.closeLocked()
}

func (r *RabbitMQ) closeLocked() error {
	if r.channel != nil && !r.channel.IsClosed() {
		if err := r.channel.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("failed to close channel")
		}
	}
	if r.conn != nil && !r.conn.IsClosed() {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("failed to close connection: %w", err)
		}
	}
	return nil
}

// Health reports whether the connection is open.
func (r *RabbitMQ) Health() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.conn == nil || r.conn.IsClosed() {
		return map[string]string{"status": "down", "error": "connection closed"}
	}
	return map[string]string{"status": "up"}
}

// DeclareExchange declares a durable topic exchange.
func (r *RabbitMQ) DeclareExchange(name string) error {
	return r.Channel().ExchangeDeclare(name, "topic", true, false, false, false, nil)
}

// DeclareQueue declares a durable queue that dead-letters into ExchangeDeadLetter.
func (r *RabbitMQ) DeclareQueue(name string) (amqp.Queue, error) {
	args := amqp.Table{"x-dead-letter-exchange": ExchangeDeadLetter}
	return r.Channel().QueueDeclare(name, true, false, false, false, args)
}

// BindQueue binds a queue to an exchange with a routing key pattern.
func (r *RabbitMQ) BindQueue(queue, exchange, routingKey string) error {
	return r.Channel().QueueBind(queue, routingKey, exchange, false, nil)
}

// DeclareDeadLetterQueue declares the dead letter exchange and a dlq.<service>
// queue catching every rejected message.
func (r *RabbitMQ) DeclareDeadLetterQueue(service string) error {
	if err := r.DeclareExchange(ExchangeDeadLetter); err != nil {
		return fmt.Errorf("failed to declare DLX exchange: %w", err)
	}

	queue := "dlq." + service
	if _, err := r.Channel().QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ queue: %w", err)
	}
	if err := r.BindQueue(queue, ExchangeDeadLetter, "#"); err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}
	return nil
}

// Reconnect replaces a dropped connection, retrying cfg.MaxRetries times with
// cfg.ReconnectDelay between attempts.
func (r *RabbitMQ) Reconnect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.conn != nil && !r.conn.IsClosed() && r.channel != nil && !r.channel.IsClosed() {
		return nil
	}
	_ = r.closeLocked()

	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		r.logger.Info().Int("attempt", attempt).Msg("reconnecting to RabbitMQ")

		err := r.connect()
		if err == nil {
			return nil
		}
		r.logger.Warn().Err(err).Int("attempt", attempt).Msg("reconnect failed")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.cfg.ReconnectDelay):
		}
	}

	return fmt.Errorf("failed to reconnect after %d attempts", r.cfg.MaxRetries)
}
