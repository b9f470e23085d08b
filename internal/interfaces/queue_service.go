package interfaces

import (
	"context"
	"time"

	"github.com/linuxfirst/docscan/internal/models"
)

// QueueDelivery is one received message plus its acknowledgement hooks.
// Ack deletes the message after successful persistence; an unacked message
// becomes visible again when its visibility timeout expires (at-least-once
// delivery). Extend pushes the timeout out for long-running units.
type QueueDelivery struct {
	Message models.QueueMessage
	Ack     func() error
	Extend  func(d time.Duration) error
}

// Queue is a named, durable work queue with visibility-timeout semantics
type Queue interface {
	Enqueue(ctx context.Context, msg models.QueueMessage) error
	// Receive returns the next visible message or models.ErrNoMessage
	Receive(ctx context.Context) (*QueueDelivery, error)
	// Len reports the number of messages currently stored (visible or not)
	Len(ctx context.Context) (int, error)
	Close() error
}
