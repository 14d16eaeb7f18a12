package session

import (
	"context"

	"realtime-notifier/internal/domain"
)

// NotificationService is the slice of the usecase a live session drives.
type NotificationService interface {
	Backlog(ctx context.Context, recipientID string) ([]*domain.Notification, error)
	UnreadCount(ctx context.Context, recipientID string) (int, error)
	Ack(ctx context.Context, recipientID, notificationID string) error
	MarkRead(ctx context.Context, recipientID, notificationID string) error
	MarkAllRead(ctx context.Context, recipientID string) error
	Delete(ctx context.Context, recipientID, notificationID string) error
	ClearAll(ctx context.Context, recipientID string) error
}

// AuthFunc turns a client-supplied token into a verified recipient id.
// Token issuance is someone else's problem; this core only consumes it.
type AuthFunc func(ctx context.Context, authToken string) (recipientID string, err error)
