package rabbitmq

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"realtime-notifier/internal/queue"
)

// Consume opens a consumer channel and adapts broker deliveries to the
// queue contract. The channel stays open until ctx is cancelled.
func (q *Queue) Consume(ctx context.Context) (<-chan queue.Delivery, error) {
	var deliveries <-chan amqp.Delivery
	var ch *amqp.Channel
	err := retry.DoContext(ctx, q.retries, func() error {
		var err error
		ch, err = q.client.GetChannel()
		if err != nil {
			return err
		}
		deliveries, err = ch.Consume(queueName, "", false, false, false, false, nil)
		if err != nil {
			ch.Close()
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make(chan queue.Delivery)
	go func() {
		defer close(out)
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				var msg queue.Message
				if err := json.Unmarshal(d.Body, &msg); err != nil {
					zlog.Logger.Error().Err(err).Msg("Dropping malformed queue message")
					d.Nack(false, false)
					continue
				}
				out <- queue.Delivery{
					Message: msg,
					Ack:     func() error { return d.Ack(false) },
					Nack:    func() error { return d.Nack(false, false) },
				}
			}
		}
	}()
	return out, nil
}
