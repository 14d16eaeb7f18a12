package queue

import (
	"context"
	"time"
)

// Message is the queue payload: just enough to route work. The durable
// record and the notification body live in Postgres.
type Message struct {
	NotificationID string `json:"notification_id"`
	RecipientID    string `json:"recipient_id"`
}

// Delivery is one queue message handed to a consumer.
type Delivery struct {
	Message
	// Ack removes the message from the broker.
	Ack func() error
	// Nack routes the message to the dead-letter queue.
	Nack func() error
}

// Queue is the broker transport behind the durable queue. The Postgres
// delivery_records table is the source of truth; losing a broker message
// only delays a record until the next sweep re-enqueues it.
type Queue interface {
	Enqueue(ctx context.Context, msg Message) error
	// EnqueueDelayed schedules redelivery after the given backoff.
	EnqueueDelayed(ctx context.Context, msg Message, delay time.Duration) error
	Consume(ctx context.Context) (<-chan Delivery, error)
	Close() error
}
