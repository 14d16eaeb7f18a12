package domain

import "encoding/json"

// Client -> server message types.
const (
	MsgConnect     = "connect"
	MsgAck         = "ack"
	MsgMarkRead    = "mark_read"
	MsgMarkAllRead = "mark_all_read"
	MsgDelete      = "delete"
	MsgClearAll    = "clear_all"
)

// Server -> client message types.
const (
	MsgConnected    = "connected"
	MsgNotification = "notification"
	MsgUnreadCount  = "unread_count"
	MsgError        = "error"
)

// ClientMessage is the envelope for everything a client sends after the
// websocket upgrade. NotificationID is set for ack/mark_read/delete.
type ClientMessage struct {
	Type           string `json:"type"`
	AuthToken      string `json:"auth_token,omitempty"`
	DeviceID       string `json:"device_id,omitempty"`
	NotificationID string `json:"notification_id,omitempty"`
}

// ServerMessage is the envelope for everything the server pushes.
type ServerMessage struct {
	Type         string          `json:"type"`
	Backlog      []*Notification `json:"backlog,omitempty"`
	Notification *Notification   `json:"notification,omitempty"`
	UnreadCount  *int            `json:"unread_count,omitempty"`
	Error        string          `json:"error,omitempty"`
}

func (m *ServerMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Envelope is what travels over the fanout layer: a notification addressed
// to one recipient on one server instance. Lossy by design; the durable
// queue is the source of truth.
type Envelope struct {
	RecipientID  string        `json:"recipient_id"`
	Notification *Notification `json:"notification,omitempty"`
	UnreadCount  *int          `json:"unread_count,omitempty"`
}
