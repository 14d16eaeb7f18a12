package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	wbfrabbit "github.com/wb-go/wbf/rabbitmq"
	"github.com/wb-go/wbf/zlog"

	"realtime-notifier/internal/queue"
)

func (q *Queue) Enqueue(ctx context.Context, msg queue.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	zlog.Logger.Debug().Str("id", msg.NotificationID).Msg("Enqueueing delivery")
	return q.publisher.Publish(ctx, body, routingKey)
}

func (q *Queue) EnqueueDelayed(ctx context.Context, msg queue.Message, delay time.Duration) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	delayMs := int(delay.Milliseconds())
	if delayMs < 0 {
		delayMs = 0
	}
	headers := amqp.Table{"x-delay": delayMs}
	zlog.Logger.Info().Str("id", msg.NotificationID).Int("delay_ms", delayMs).Msg("Enqueueing delayed redelivery")
	return q.publisher.Publish(ctx, body, routingKey, wbfrabbit.WithHeaders(headers))
}
