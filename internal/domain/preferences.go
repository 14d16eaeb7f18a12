package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClockTime is a wall-clock minute of day ("HH:MM"), compared in the user's
// local time zone by the caller.
type ClockTime struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return ClockTime{}, fmt.Errorf("invalid clock time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return ClockTime{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return ClockTime{}, fmt.Errorf("invalid minute in %q", s)
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// QuietHours is a daily suppression window. Start > End means the window
// wraps across midnight (e.g. 22:00 -> 07:00).
type QuietHours struct {
	Enabled bool      `json:"enabled"`
	Start   ClockTime `json:"start"`
	End     ClockTime `json:"end"`
}

// Contains reports whether t falls inside the window. Start is inclusive,
// End exclusive.
func (q QuietHours) Contains(t time.Time) bool {
	if !q.Enabled {
		return false
	}
	now := t.Hour()*60 + t.Minute()
	start, end := q.Start.Minutes(), q.End.Minutes()
	if start == end {
		return false
	}
	if start < end {
		return now >= start && now < end
	}
	// wraps midnight
	return now >= start || now < end
}

type ChannelToggles struct {
	InApp bool `json:"in_app"`
	Email bool `json:"email"`
	Push  bool `json:"push"`
}

type UserPreferences struct {
	RecipientID  string          `json:"recipient_id"`
	TypesEnabled map[string]bool `json:"types_enabled"`
	DoNotDisturb bool            `json:"do_not_disturb"`
	QuietHours   QuietHours      `json:"quiet_hours"`
	Channels     ChannelToggles  `json:"channels"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// DefaultPreferences is what a recipient gets before they ever touch their
// settings: everything on, no quiet hours.
func DefaultPreferences(recipientID string) *UserPreferences {
	return &UserPreferences{
		RecipientID:  recipientID,
		TypesEnabled: map[string]bool{},
		Channels:     ChannelToggles{InApp: true, Email: true, Push: true},
	}
}

// TypeEnabled defaults to enabled for types never explicitly configured.
func (p *UserPreferences) TypeEnabled(typ string) bool {
	enabled, ok := p.TypesEnabled[typ]
	if !ok {
		return true
	}
	return enabled
}
