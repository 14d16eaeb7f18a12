package postgres

import (
	"context"
	"time"

	"realtime-notifier/internal/repository/redis"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

// Repository implements the notification, delivery and preference stores on
// Postgres, with a Redis cache-aside for single-notification reads.
type Repository struct {
	db      *dbpg.DB
	cache   *redis.RedisCache
	retries retry.Strategy
	ttl     time.Duration
}

func NewRepository(
	db *dbpg.DB,
	cache *redis.RedisCache,
	retries retry.Strategy,
	ttl time.Duration,
) *Repository {
	r := &Repository{
		db:      db,
		cache:   cache,
		retries: retries,
		ttl:     ttl,
	}
	r.initSchema()
	return r
}

func (r *Repository) initSchema() {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS notifications (
			id VARCHAR(36) PRIMARY KEY,
			recipient_id VARCHAR(100) NOT NULL,
			type VARCHAR(50) NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			priority VARCHAR(10) NOT NULL,
			metadata JSONB,
			action_url TEXT NOT NULL DEFAULT '',
			delivered BOOLEAN NOT NULL DEFAULT FALSE,
			read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications (recipient_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS delivery_records (
			notification_id VARCHAR(36) PRIMARY KEY REFERENCES notifications(id) ON DELETE CASCADE,
			recipient_id VARCHAR(100) NOT NULL,
			channels TEXT NOT NULL DEFAULT 'in_app',
			status VARCHAR(20) NOT NULL DEFAULT 'queued',
			attempt_count INTEGER NOT NULL DEFAULT 0,
			enqueued_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
			published_at TIMESTAMP WITH TIME ZONE,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_records_recipient ON delivery_records (recipient_id, enqueued_at)`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_records_status ON delivery_records (status, updated_at)`,
		`CREATE TABLE IF NOT EXISTS preferences (
			recipient_id VARCHAR(100) PRIMARY KEY,
			types_enabled JSONB,
			do_not_disturb BOOLEAN NOT NULL DEFAULT FALSE,
			quiet_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			quiet_start VARCHAR(5) NOT NULL DEFAULT '00:00',
			quiet_end VARCHAR(5) NOT NULL DEFAULT '00:00',
			channel_in_app BOOLEAN NOT NULL DEFAULT TRUE,
			channel_email BOOLEAN NOT NULL DEFAULT TRUE,
			channel_push BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecWithRetry(context.Background(), r.retries, stmt); err != nil {
			zlog.Logger.Fatal().Err(err).Msg("Failed to init schema")
		}
	}
}

func (r *Repository) Close() error {
	return r.db.Master.Close()
}
