// Package redisfan implements the fanout broadcaster over Redis pub/sub.
package redisfan

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/wb-go/wbf/zlog"

	"realtime-notifier/internal/domain"
)

const channelPrefix = "fanout:"

type Broadcaster struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Broadcaster {
	return &Broadcaster{rdb: rdb}
}

func (b *Broadcaster) Publish(ctx context.Context, serverInstanceID string, env *domain.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, channelPrefix+serverInstanceID, payload).Err(); err != nil {
		return fmt.Errorf("fanout publish to %s: %w", serverInstanceID, err)
	}
	return nil
}

func (b *Broadcaster) Subscribe(ctx context.Context, serverInstanceID string) (<-chan *domain.Envelope, error) {
	sub := b.rdb.Subscribe(ctx, channelPrefix+serverInstanceID)
	// force the subscription before anyone publishes to us
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("fanout subscribe: %w", err)
	}

	out := make(chan *domain.Envelope, 64)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var env domain.Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					zlog.Logger.Error().Err(err).Msg("Dropping malformed fanout envelope")
					continue
				}
				select {
				case out <- &env:
				default:
					// slow instance; the sweep will re-deliver
					zlog.Logger.Warn().Str("recipient", env.RecipientID).Msg("Fanout buffer full, dropping envelope")
				}
			}
		}
	}()
	return out, nil
}
