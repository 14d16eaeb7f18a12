// Package channels holds the side-channel senders (email, push) the worker
// drives for non-in-app delivery. The in-app channel goes through the
// fanout layer instead.
package channels

import (
	"context"
	"fmt"

	"realtime-notifier/internal/config"
	"realtime-notifier/internal/domain"
)

type Sender interface {
	Send(ctx context.Context, channel domain.Channel, notification *domain.Notification) error
}

type MultiSender struct {
	Email *EmailSender
	Push  *PushSender
}

func NewMultiSender(cfg *config.Config) *MultiSender {
	return &MultiSender{
		Email: NewEmailSender(EmailConfig{
			SmtpHost: cfg.Email.SmtpHost,
			SmtpPort: cfg.Email.SmtpPort,
			User:     cfg.Email.User,
			Pass:     cfg.Email.Pass,
		}),
		Push: NewPushSender(PushConfig{
			BotToken: cfg.Telegram.BotToken,
		}),
	}
}

func (m *MultiSender) Send(ctx context.Context, channel domain.Channel, notification *domain.Notification) error {
	switch channel {
	case domain.ChannelEmail:
		if m.Email == nil {
			return fmt.Errorf("email sender not configured")
		}
		return m.Email.Send(ctx, notification)
	case domain.ChannelPush:
		if m.Push == nil {
			return fmt.Errorf("push sender not configured")
		}
		return m.Push.Send(ctx, notification)
	default:
		return fmt.Errorf("unknown side channel %q", channel)
	}
}
