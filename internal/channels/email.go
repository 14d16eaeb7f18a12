package channels

import (
	"context"
	"fmt"
	"net/smtp"

	"realtime-notifier/internal/domain"

	"github.com/wb-go/wbf/zlog"
)

type EmailSender struct {
	cfg EmailConfig
}

type EmailConfig struct {
	SmtpHost string
	SmtpPort int
	User     string
	Pass     string
}

func NewEmailSender(cfg EmailConfig) *EmailSender {
	return &EmailSender{cfg: cfg}
}

func (e *EmailSender) Send(ctx context.Context, notification *domain.Notification) error {
	auth := smtp.PlainAuth("", e.cfg.User, e.cfg.Pass, e.cfg.SmtpHost)
	to := []string{notification.RecipientID}
	msg := []byte(fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", e.cfg.User, notification.RecipientID, notification.Title, notification.Body))
	addr := fmt.Sprintf("%s:%d", e.cfg.SmtpHost, e.cfg.SmtpPort)
	zlog.Logger.Info().
		Str("to", notification.RecipientID).
		Str("channel", "email").
		Str("id", notification.ID).
		Msg("Sending email notification")
	return smtp.SendMail(addr, auth, e.cfg.User, to, msg)
}
