package redis

import (
	"context"
	"encoding/json"
	"time"

	"realtime-notifier/internal/domain"

	wbfredis "github.com/wb-go/wbf/redis"
	"github.com/wb-go/wbf/retry"
)

// RedisCache is a cache-aside front for the notification store. The wbf
// client exposes no TTL-capable set, so expiry travels inside the payload
// and stale entries are evicted on read.
type RedisCache struct {
	client  *wbfredis.Client
	retries retry.Strategy
	now     func() time.Time
}

type cacheEntry struct {
	Notification *domain.Notification `json:"notification"`
	ExpiresAt    time.Time            `json:"expires_at,omitempty"`
}

// expired reports whether the entry is past its expiry. A zero ExpiresAt
// means the entry never expires.
func (e *cacheEntry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

func cacheKey(id string) string {
	return "notification:" + id
}

func NewRedisCache(client *wbfredis.Client, retries retry.Strategy) *RedisCache {
	return &RedisCache{
		client:  client,
		retries: retries,
		now:     time.Now,
	}
}

// Get returns (nil, nil) on a miss, including a lazily-evicted stale hit.
func (r *RedisCache) Get(ctx context.Context, id string) (*domain.Notification, error) {
	val, err := r.client.GetWithRetry(ctx, r.retries, cacheKey(id))
	if err != nil || val == "" {
		return nil, err
	}
	var entry cacheEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, err
	}
	if entry.expired(r.now()) {
		if err := r.client.DelWithRetry(ctx, r.retries, cacheKey(id)); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return entry.Notification, nil
}

func (r *RedisCache) Set(ctx context.Context, id string, notif *domain.Notification, ttl time.Duration) error {
	entry := cacheEntry{Notification: notif}
	if ttl > 0 {
		entry.ExpiresAt = r.now().Add(ttl)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.client.SetWithRetry(ctx, r.retries, cacheKey(id), string(data))
}

func (r *RedisCache) Del(ctx context.Context, id string) error {
	return r.client.DelWithRetry(ctx, r.retries, cacheKey(id))
}
