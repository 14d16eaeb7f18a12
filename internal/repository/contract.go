package repository

import (
	"context"
	"time"

	"realtime-notifier/internal/domain"
)

type Cache interface {
	Set(ctx context.Context, id string, notif *domain.Notification, ttl time.Duration) error
	Del(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*domain.Notification, error)
}

type NotificationStore interface {
	Create(ctx context.Context, notif *domain.Notification) error
	Get(ctx context.Context, id string) (*domain.Notification, error)
	MarkDelivered(ctx context.Context, id string) error
	// MarkRead is idempotent; marking an already-read or missing
	// notification reports domain.ErrNotFound without side effects.
	MarkRead(ctx context.Context, id, recipientID string) error
	MarkAllRead(ctx context.Context, recipientID string) error
	Delete(ctx context.Context, id, recipientID string) error
	DeleteAll(ctx context.Context, recipientID string) error
	ListByRecipient(ctx context.Context, recipientID string, limit int) ([]*domain.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
}

type DeliveryStore interface {
	CreateDelivery(ctx context.Context, rec *domain.DeliveryRecord) error
	GetDelivery(ctx context.Context, notificationID string) (*domain.DeliveryRecord, error)
	// MarkPublished moves queued -> pending_ack and bumps the attempt count.
	MarkPublished(ctx context.Context, notificationID string) (attempts int, err error)
	// Acknowledge removes the record; missing records are a no-op so stale
	// or duplicate acks never error.
	Acknowledge(ctx context.Context, notificationID string) error
	// Requeue resurrects a dead-lettered record with a fresh attempt budget,
	// for operator-driven redelivery.
	Requeue(ctx context.Context, notificationID string) error
	MarkDeadLettered(ctx context.Context, notificationID string) error
	DeleteDelivery(ctx context.Context, notificationID string) error
	DeleteAllDeliveriesForRecipient(ctx context.Context, recipientID string) error
	// ExpirePendingAcks flips records stuck in pending_ack longer than
	// deadline back to queued and returns them for re-enqueueing.
	ExpirePendingAcks(ctx context.Context, deadline time.Duration) ([]*domain.DeliveryRecord, error)
	// StaleQueued returns queued records untouched for olderThan, whose
	// broker message is presumed lost.
	StaleQueued(ctx context.Context, olderThan time.Duration) ([]*domain.DeliveryRecord, error)
	// Backlog lists undelivered notifications for a recipient, oldest
	// first, for the connect-time flush.
	Backlog(ctx context.Context, recipientID string) ([]*domain.Notification, error)
	// ListDeadLettered exposes exhausted deliveries for manual inspection.
	ListDeadLettered(ctx context.Context, limit int) ([]*domain.DeliveryRecord, error)
}

type PreferenceStore interface {
	// GetPreferences returns stored preferences, or defaults when the
	// recipient has never configured any.
	GetPreferences(ctx context.Context, recipientID string) (*domain.UserPreferences, error)
	UpsertPreferences(ctx context.Context, prefs *domain.UserPreferences) error
}
