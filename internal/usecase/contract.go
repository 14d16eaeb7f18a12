package usecase

import (
	"context"
	"time"

	"realtime-notifier/internal/domain"
	"realtime-notifier/internal/queue"
)

type NotificationStore interface {
	Create(ctx context.Context, notif *domain.Notification) error
	Get(ctx context.Context, id string) (*domain.Notification, error)
	MarkDelivered(ctx context.Context, id string) error
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
	MarkPublished(ctx context.Context, notificationID string) (int, error)
	Acknowledge(ctx context.Context, notificationID string) error
	MarkDeadLettered(ctx context.Context, notificationID string) error
	Requeue(ctx context.Context, notificationID string) error
	ListDeadLettered(ctx context.Context, limit int) ([]*domain.DeliveryRecord, error)
	DeleteDelivery(ctx context.Context, notificationID string) error
	DeleteAllDeliveriesForRecipient(ctx context.Context, recipientID string) error
	ExpirePendingAcks(ctx context.Context, deadline time.Duration) ([]*domain.DeliveryRecord, error)
	StaleQueued(ctx context.Context, olderThan time.Duration) ([]*domain.DeliveryRecord, error)
	Backlog(ctx context.Context, recipientID string) ([]*domain.Notification, error)
}

type PreferenceStore interface {
	GetPreferences(ctx context.Context, recipientID string) (*domain.UserPreferences, error)
	UpsertPreferences(ctx context.Context, prefs *domain.UserPreferences) error
}

type Queue interface {
	Enqueue(ctx context.Context, msg queue.Message) error
	EnqueueDelayed(ctx context.Context, msg queue.Message, delay time.Duration) error
}

type Registry interface {
	Lookup(ctx context.Context, recipientID string) ([]domain.RegistryEntry, error)
}

type Broadcaster interface {
	Publish(ctx context.Context, serverInstanceID string, env *domain.Envelope) error
}

type SideChannelSender interface {
	Send(ctx context.Context, channel domain.Channel, notification *domain.Notification) error
}
