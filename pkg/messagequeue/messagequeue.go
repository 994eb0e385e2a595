package messagequeue

import "context"

// MessageQueue defines the interface for message queue services.
type MessageQueue interface {
	Publish(ctx context.Context, queueName string, body []byte) error
	// Consume delivers messages to handler until ctx is cancelled or the broker closes the
	// channel. A handler error requeues the message once; redelivered failures are dropped.
	Consume(ctx context.Context, queueName string, handler func(ctx context.Context, body []byte) error) error
	Close() error
}
