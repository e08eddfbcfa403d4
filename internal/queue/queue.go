package queue

import (
	"context"
	"fmt"
)

// Publisher publishes document lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg DocumentUploadedMessage) error
	Close() error
}

const (
	// DocumentsUploadedQueue receives one message per committed document.
	DocumentsUploadedQueue = "documents.uploaded"

	dlqPrefix = "dlq."
)

// DLQName returns the dead-letter queue for a work queue, e.g. dlq.documents.uploaded.
func DLQName(queue string) string {
	return fmt.Sprintf("%s%s", dlqPrefix, queue)
}

// WorkQueueNames returns every work queue the topology declares.
func WorkQueueNames() []string {
	return []string{DocumentsUploadedQueue}
}

func DLQNames() []string {
	work := WorkQueueNames()
	queues := make([]string, 0, len(work))
	for _, q := range work {
		queues = append(queues, DLQName(q))
	}
	return queues
}

// NopPublisher drops every event. Used when RABBITMQ_URL is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, DocumentUploadedMessage) error { return nil }

func (NopPublisher) Close() error { return nil }
