// Package filter decides whether a notification reaches a recipient at all
// and over which channels. Pure functions only; safe for concurrent use.
package filter

import (
	"time"

	"realtime-notifier/internal/domain"
)

type Decision struct {
	Deliver  bool
	Channels []domain.Channel
}

// Decide applies the recipient's preferences to a notification.
//
// High priority bypasses do-not-disturb and quiet hours entirely. Otherwise
// DND drops, an active quiet-hours window drops, and a disabled type drops.
// When delivering, in-app is always included; email only for high priority
// with email enabled; push whenever push is enabled.
func Decide(n *domain.Notification, prefs *domain.UserPreferences, now time.Time) Decision {
	high := n.Priority == domain.PriorityHigh

	if !high {
		if prefs.DoNotDisturb {
			return Decision{}
		}
		if prefs.QuietHours.Contains(now) {
			return Decision{}
		}
		if !prefs.TypeEnabled(n.Type) {
			return Decision{}
		}
	}

	channels := []domain.Channel{domain.ChannelInApp}
	if high && prefs.Channels.Email {
		channels = append(channels, domain.ChannelEmail)
	}
	if prefs.Channels.Push {
		channels = append(channels, domain.ChannelPush)
	}
	return Decision{Deliver: true, Channels: channels}
}
