package handler

import (
	"context"

	"realtime-notifier/internal/domain"
)

type NotificationService interface {
	Send(ctx context.Context, req *domain.CreateNotification) (*domain.Notification, error)
	List(ctx context.Context, recipientID string, limit int) ([]*domain.Notification, error)
	UnreadCount(ctx context.Context, recipientID string) (int, error)
	GetPreferences(ctx context.Context, recipientID string) (*domain.UserPreferences, error)
	SetPreferences(ctx context.Context, prefs *domain.UserPreferences) error
	DeadLetters(ctx context.Context, limit int) ([]*domain.DeliveryRecord, error)
	RequeueDeadLetter(ctx context.Context, notificationID string) error
}
