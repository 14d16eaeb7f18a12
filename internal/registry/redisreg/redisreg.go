// Package redisreg backs the connection registry with Redis TTL keys, so it
// composes across many server processes without any liveness consensus.
package redisreg

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"realtime-notifier/internal/domain"
)

const (
	entryPrefix  = "conn:"
	devicePrefix = "conn_devices:"
)

type Registry struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates a registry whose entries expire after ttl without a heartbeat.
func New(rdb *redis.Client, ttl time.Duration) *Registry {
	return &Registry{rdb: rdb, ttl: ttl}
}

func entryKey(recipientID, deviceID string) string {
	return entryPrefix + recipientID + ":" + deviceID
}

func deviceSetKey(recipientID string) string {
	return devicePrefix + recipientID
}

// Register creates or overwrites the entry for (recipient, device).
// Last write wins; concurrent registers for the same pair are harmless.
func (r *Registry) Register(ctx context.Context, recipientID, deviceID, serverInstanceID string) error {
	entry := domain.RegistryEntry{
		RecipientID:      recipientID,
		DeviceID:         deviceID,
		ServerInstanceID: serverInstanceID,
		LastHeartbeat:    time.Now().UTC(),
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, entryKey(recipientID, deviceID), payload, r.ttl)
	pipe.SAdd(ctx, deviceSetKey(recipientID), deviceID)
	// the device set outlives entries slightly; Lookup prunes stale members
	pipe.Expire(ctx, deviceSetKey(recipientID), 2*r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("registry register: %w", err)
	}
	return nil
}

// Heartbeat refreshes the entry TTL and last-heartbeat timestamp. Returns
// domain.ErrNotFound if the entry already expired, so the caller can
// re-register.
func (r *Registry) Heartbeat(ctx context.Context, recipientID, deviceID string) error {
	key := entryKey(recipientID, deviceID)
	raw, err := r.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("registry heartbeat: %w", err)
	}
	var entry domain.RegistryEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return fmt.Errorf("registry heartbeat decode: %w", err)
	}
	entry.LastHeartbeat = time.Now().UTC()
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, key, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("registry heartbeat: %w", err)
	}
	return nil
}

// Lookup returns every live entry for the recipient. Zero entries means the
// recipient is offline. Stale device-set members are pruned on the way.
func (r *Registry) Lookup(ctx context.Context, recipientID string) ([]domain.RegistryEntry, error) {
	devices, err := r.rdb.SMembers(ctx, deviceSetKey(recipientID)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("registry lookup: %w", err)
	}
	if len(devices) == 0 {
		return nil, nil
	}

	keys := make([]string, len(devices))
	for i, d := range devices {
		keys[i] = entryKey(recipientID, d)
	}
	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("registry lookup: %w", err)
	}

	var entries []domain.RegistryEntry
	var stale []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, devices[i])
			continue
		}
		var entry domain.RegistryEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			stale = append(stale, devices[i])
			continue
		}
		entries = append(entries, entry)
	}
	if len(stale) > 0 {
		r.rdb.SRem(ctx, deviceSetKey(recipientID), stale...)
	}
	return entries, nil
}

// Unregister drops the entry immediately (explicit disconnect).
func (r *Registry) Unregister(ctx context.Context, recipientID, deviceID string) error {
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, entryKey(recipientID, deviceID))
	pipe.SRem(ctx, deviceSetKey(recipientID), deviceID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("registry unregister: %w", err)
	}
	return nil
}
