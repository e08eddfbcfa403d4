package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// EventsExchange is the topic exchange every document event is published to.
	EventsExchange  = "docdrop.events"
	dlxExchangeName = "docdrop.dlx"

	connectTimeout   = 15 * time.Second
	reconnectBackoff = time.Second
	maxBackoff       = 30 * time.Second
)

var (
	// ErrNotConfirmed means the broker nacked a publish, so the event was not stored.
	ErrNotConfirmed = errors.New("event not confirmed by broker")

	errBrokerClosed = errors.New("rabbitmq client is closed")
)

// topologyDeclarer is the part of *amqp.Channel used to declare exchanges and queues.
type topologyDeclarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// RabbitMQ keeps one connection and one confirm-mode channel for document events.
// The topology is declared whenever a connection is established, never per publish.
type RabbitMQ struct {
	url  string
	dial func(url string) (*amqp.Connection, error)

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	r := &RabbitMQ{url: url, dial: amqp.Dial}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.connectLocked(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// PublishConfirmed publishes msg with routingKey on the events exchange and blocks until the
// broker acks it. A nack returns ErrNotConfirmed.
func (r *RabbitMQ) PublishConfirmed(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	r.mu.Lock()
	ch, err := r.channelLocked(ctx)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	confirmation, err := ch.PublishWithDeferredConfirmWithContext(ctx, EventsExchange, routingKey, false, false, msg)
	if err != nil {
		r.resetLocked()
		r.mu.Unlock()
		return fmt.Errorf("failed to publish %q event: %w", routingKey, err)
	}
	r.mu.Unlock()

	// Only nil when the channel is not in confirm mode, which connect rules out.
	if confirmation == nil {
		return fmt.Errorf("%w: channel is not in confirm mode", ErrNotConfirmed)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("waiting for %q confirm: %w", routingKey, err)
	}
	if !acked {
		return fmt.Errorf("%w: %s", ErrNotConfirmed, routingKey)
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	return r.resetLocked()
}

func (r *RabbitMQ) channelLocked(ctx context.Context) (*amqp.Channel, error) {
	if r.closed {
		return nil, errBrokerClosed
	}
	if r.conn != nil && !r.conn.IsClosed() && r.ch != nil && !r.ch.IsClosed() {
		return r.ch, nil
	}

	_ = r.resetLocked()
	if err := r.connectLocked(ctx); err != nil {
		return nil, err
	}
	return r.ch, nil
}

// connectLocked dials with exponential backoff until it succeeds or ctx ends.
func (r *RabbitMQ) connectLocked(ctx context.Context) error {
	wait := reconnectBackoff
	for {
		err := r.openLocked()
		if err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("rabbitmq connect canceled: %w (last error: %v)", ctx.Err(), err)
		case <-time.After(wait):
		}
		wait = nextBackoff(wait)
	}
}

func (r *RabbitMQ) openLocked() error {
	conn, err := r.dial(r.url)
	if err != nil {
		return fmt.Errorf("failed to dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	if err := declareTopology(ch); err != nil {
		_ = conn.Close()
		return err
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	r.conn = conn
	r.ch = ch
	return nil
}

func (r *RabbitMQ) resetLocked() error {
	conn := r.conn
	r.conn = nil
	r.ch = nil

	if conn == nil || conn.IsClosed() {
		return nil
	}
	// Closing the connection also closes its channel.
	return conn.Close()
}

func nextBackoff(wait time.Duration) time.Duration {
	wait *= 2
	if wait > maxBackoff {
		return maxBackoff
	}
	return wait
}

// declareTopology declares the events exchange, the dead-letter exchange and, per work queue,
// a durable queue bound to the events exchange plus its DLQ.
func declareTopology(ch topologyDeclarer) error {
	if err := ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare events exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(dlxExchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dlx exchange: %w", err)
	}

	for _, queueName := range WorkQueueNames() {
		dlqName := DLQName(queueName)

		if _, err := ch.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare dlq %q: %w", dlqName, err)
		}
		if err := ch.QueueBind(dlqName, queueName, dlxExchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind dlq %q: %w", dlqName, err)
		}

		args := amqp.Table{
			"x-dead-letter-exchange":    dlxExchangeName,
			"x-dead-letter-routing-key": queueName,
		}
		if _, err := ch.QueueDeclare(queueName, true, false, false, false, args); err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", queueName, err)
		}
		if err := ch.QueueBind(queueName, queueName, EventsExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %q: %w", queueName, err)
		}
	}

	return nil
}
