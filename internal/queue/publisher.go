package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	_ Publisher        = (*RabbitMQPublisher)(nil)
	_ confirmingBroker = (*RabbitMQ)(nil)
)

// confirmingBroker publishes and waits for the broker's ack.
type confirmingBroker interface {
	PublishConfirmed(ctx context.Context, routingKey string, msg amqp.Publishing) error
	Close() error
}

type RabbitMQPublisher struct {
	broker confirmingBroker
	now    func() time.Time
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	if client == nil {
		return &RabbitMQPublisher{now: time.Now}
	}
	return newPublisher(client)
}

func newPublisher(broker confirmingBroker) *RabbitMQPublisher {
	return &RabbitMQPublisher{broker: broker, now: time.Now}
}

// Publish returns only after the broker confirmed the event. The document id is the message id,
// so consumers can drop redeliveries.
func (p *RabbitMQPublisher) Publish(ctx context.Context, queue string, msg DocumentUploadedMessage) error {
	if p == nil || p.broker == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid document event: %w", err)
	}

	if msg.UploadedAt.IsZero() {
		msg.UploadedAt = p.now()
	}
	msg.UploadedAt = msg.UploadedAt.UTC()

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal document event: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     msg.UploadedAt,
		MessageId:     msg.DocumentID,
		CorrelationId: msg.CorrelationID,
		Type:          queue,
		Headers:       amqp.Table{"owner-id": msg.OwnerID},
		Body:          payload,
	}

	if err := p.broker.PublishConfirmed(ctx, queue, publishing); err != nil {
		return fmt.Errorf("document %s event: %w", msg.DocumentID, err)
	}
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.broker == nil {
		return nil
	}
	return p.broker.Close()
}
