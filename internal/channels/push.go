package channels

import (
	"context"
	"strconv"

	"realtime-notifier/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/wb-go/wbf/zlog"
)

// PushSender delivers the push channel through a Telegram bot. The chat id
// comes from the notification metadata (key "telegram_chat_id") so push
// stays optional per notification.
type PushSender struct {
	cfg PushConfig
}

type PushConfig struct {
	BotToken string
}

func NewPushSender(cfg PushConfig) *PushSender {
	return &PushSender{cfg: cfg}
}

func (p *PushSender) Send(ctx context.Context, notification *domain.Notification) error {
	rawChatID, ok := notification.Metadata["telegram_chat_id"]
	if !ok {
		zlog.Logger.Debug().Str("id", notification.ID).Msg("No push target, skipping")
		return nil
	}
	bot, err := tgbotapi.NewBotAPI(p.cfg.BotToken)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("id", notification.ID).Msg("Failed to create push bot")
		return err
	}
	chatID, err := strconv.ParseInt(rawChatID, 10, 64)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("id", notification.ID).Msg("Invalid chat ID")
		return err
	}
	msg := tgbotapi.NewMessage(chatID, notification.Title+"\n"+notification.Body)
	zlog.Logger.Info().
		Int64("chat_id", chatID).
		Str("channel", "push").
		Str("id", notification.ID).
		Msg("Sending push notification")
	_, err = bot.Send(msg)
	return err
}
