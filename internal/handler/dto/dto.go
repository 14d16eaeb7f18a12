package dto

import (
	"time"

	"realtime-notifier/internal/domain"
)

type SendNotificationRequest struct {
	RecipientID string            `json:"recipient_id" validate:"required"`
	Type        string            `json:"type" validate:"required"`
	Title       string            `json:"title" validate:"required"`
	Body        string            `json:"body"`
	Priority    string            `json:"priority" validate:"required,oneof=low medium high"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ActionURL   string            `json:"action_url,omitempty"`
}

type SendNotificationResponse struct {
	NotificationID string `json:"notification_id"`
}

type NotificationResponse struct {
	ID          string            `json:"id"`
	RecipientID string            `json:"recipient_id"`
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Priority    string            `json:"priority"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ActionURL   string            `json:"action_url,omitempty"`
	Delivered   bool              `json:"delivered"`
	Read        bool              `json:"read"`
	CreatedAt   time.Time         `json:"created_at"`
}

type DeadLetterResponse struct {
	NotificationID string     `json:"notification_id"`
	RecipientID    string     `json:"recipient_id"`
	AttemptCount   int        `json:"attempt_count"`
	EnqueuedAt     time.Time  `json:"enqueued_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
}

func DeadLetterFromDomain(rec *domain.DeliveryRecord) DeadLetterResponse {
	return DeadLetterResponse{
		NotificationID: rec.NotificationID,
		RecipientID:    rec.RecipientID,
		AttemptCount:   rec.AttemptCount,
		EnqueuedAt:     rec.EnqueuedAt,
		UpdatedAt:      rec.UpdatedAt,
		PublishedAt:    rec.PublishedAt,
	}
}

type UnreadCountResponse struct {
	RecipientID string `json:"recipient_id"`
	Count       int    `json:"count"`
}

type PreferencesRequest struct {
	TypesEnabled map[string]bool `json:"types_enabled"`
	DoNotDisturb bool            `json:"do_not_disturb"`
	QuietHours   struct {
		Enabled bool   `json:"enabled"`
		Start   string `json:"start" validate:"omitempty,len=5"`
		End     string `json:"end" validate:"omitempty,len=5"`
	} `json:"quiet_hours"`
	Channels struct {
		InApp bool `json:"in_app"`
		Email bool `json:"email"`
		Push  bool `json:"push"`
	} `json:"channels"`
}

func FromDomain(n *domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Type:        n.Type,
		Title:       n.Title,
		Body:        n.Body,
		Priority:    string(n.Priority),
		Metadata:    n.Metadata,
		ActionURL:   n.ActionURL,
		Delivered:   n.Delivered,
		Read:        n.Read,
		CreatedAt:   n.CreatedAt,
	}
}

func ToDomain(req SendNotificationRequest) *domain.CreateNotification {
	return &domain.CreateNotification{
		RecipientID: req.RecipientID,
		Type:        req.Type,
		Title:       req.Title,
		Body:        req.Body,
		Priority:    domain.Priority(req.Priority),
		Metadata:    req.Metadata,
		ActionURL:   req.ActionURL,
	}
}

func PreferencesToDomain(recipientID string, req PreferencesRequest) (*domain.UserPreferences, error) {
	prefs := &domain.UserPreferences{
		RecipientID:  recipientID,
		TypesEnabled: req.TypesEnabled,
		DoNotDisturb: req.DoNotDisturb,
		Channels: domain.ChannelToggles{
			InApp: req.Channels.InApp,
			Email: req.Channels.Email,
			Push:  req.Channels.Push,
		},
	}
	if prefs.TypesEnabled == nil {
		prefs.TypesEnabled = map[string]bool{}
	}
	prefs.QuietHours.Enabled = req.QuietHours.Enabled
	if req.QuietHours.Enabled {
		start, err := domain.ParseClockTime(req.QuietHours.Start)
		if err != nil {
			return nil, err
		}
		end, err := domain.ParseClockTime(req.QuietHours.End)
		if err != nil {
			return nil, err
		}
		prefs.QuietHours.Start = start
		prefs.QuietHours.End = end
	}
	return prefs, nil
}

func PreferencesFromDomain(p *domain.UserPreferences) PreferencesRequest {
	var resp PreferencesRequest
	resp.TypesEnabled = p.TypesEnabled
	resp.DoNotDisturb = p.DoNotDisturb
	resp.QuietHours.Enabled = p.QuietHours.Enabled
	resp.QuietHours.Start = p.QuietHours.Start.String()
	resp.QuietHours.End = p.QuietHours.End.String()
	resp.Channels.InApp = p.Channels.InApp
	resp.Channels.Email = p.Channels.Email
	resp.Channels.Push = p.Channels.Push
	return resp
}
