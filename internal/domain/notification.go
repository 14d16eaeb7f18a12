package domain

import (
	"errors"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// Notification is the unit the pipeline moves. ID is immutable and globally
// unique; every stage dedups on it.
type Notification struct {
	ID          string            `json:"id"`
	RecipientID string            `json:"recipient_id"`
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Priority    Priority          `json:"priority"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ActionURL   string            `json:"action_url,omitempty"`
	Delivered   bool              `json:"delivered"`
	Read        bool              `json:"read"`
	CreatedAt   time.Time         `json:"created_at"`
}

type CreateNotification struct {
	RecipientID string
	Type        string
	Title       string
	Body        string
	Priority    Priority
	Metadata    map[string]string
	ActionURL   string
}

func (c *CreateNotification) Validate() error {
	if c.RecipientID == "" {
		return ErrMissingRecipient
	}
	if c.Type == "" || c.Title == "" {
		return ErrMalformed
	}
	if !c.Priority.Valid() {
		return ErrInvalidPriority
	}
	return nil
}

// DeliveryStatus tracks a delivery record through the worker state machine.
// Queued and PendingAck are the only states a record can be redelivered from.
type DeliveryStatus string

const (
	StatusQueued       DeliveryStatus = "queued"
	StatusPendingAck   DeliveryStatus = "pending_ack"
	StatusAcknowledged DeliveryStatus = "acknowledged"
	StatusDeadLettered DeliveryStatus = "dead_lettered"
)

// DeliveryRecord exists from accept until at least one device acks. It is the
// durable at-least-once anchor; exactly-once is client-side dedup on the
// notification id.
type DeliveryRecord struct {
	NotificationID string
	RecipientID    string
	Channels       []Channel
	Status         DeliveryStatus
	AttemptCount   int
	EnqueuedAt     time.Time
	PublishedAt    *time.Time
	UpdatedAt      time.Time
}

var (
	ErrNotFound         = errors.New("notification not found")
	ErrMissingRecipient = errors.New("recipient_id is required")
	ErrMalformed        = errors.New("notification is missing required fields")
	ErrInvalidPriority  = errors.New("priority must be low, medium or high")
	ErrEnqueueFailed    = errors.New("notification could not be durably queued")
	ErrUnauthorized     = errors.New("connection token rejected")
)
