package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"realtime-notifier/internal/domain"
)

func joinChannels(channels []domain.Channel) string {
	parts := make([]string, len(channels))
	for i, c := range channels {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

func splitChannels(s string) []domain.Channel {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	channels := make([]domain.Channel, len(parts))
	for i, p := range parts {
		channels[i] = domain.Channel(p)
	}
	return channels
}

func (r *Repository) CreateDelivery(ctx context.Context, rec *domain.DeliveryRecord) error {
	_, err := r.db.ExecWithRetry(ctx, r.retries,
		`INSERT INTO delivery_records (notification_id, recipient_id, channels, status, attempt_count, enqueued_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (notification_id) DO NOTHING`,
		rec.NotificationID, rec.RecipientID, joinChannels(rec.Channels),
		rec.Status, rec.AttemptCount, rec.EnqueuedAt,
	)
	return err
}

func (r *Repository) GetDelivery(ctx context.Context, notificationID string) (*domain.DeliveryRecord, error) {
	row, err := r.db.QueryRowWithRetry(ctx, r.retries,
		`SELECT notification_id, recipient_id, channels, status, attempt_count, enqueued_at, published_at, updated_at
		FROM delivery_records WHERE notification_id = $1`, notificationID)
	if err != nil {
		return nil, err
	}
	var rec domain.DeliveryRecord
	var channels string
	err = row.Scan(
		&rec.NotificationID, &rec.RecipientID, &channels, &rec.Status,
		&rec.AttemptCount, &rec.EnqueuedAt, &rec.PublishedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Channels = splitChannels(channels)
	return &rec, nil
}

// MarkPublished transitions queued -> pending_ack, bumps the attempt count
// and returns it so the caller can enforce the dead-letter ceiling.
func (r *Repository) MarkPublished(ctx context.Context, notificationID string) (int, error) {
	row, err := r.db.QueryRowWithRetry(ctx, r.retries,
		`UPDATE delivery_records
		SET status = $1, attempt_count = attempt_count + 1, published_at = $2, updated_at = $2
		WHERE notification_id = $3 AND status IN ($4, $1)
		RETURNING attempt_count`,
		domain.StatusPendingAck, time.Now(), notificationID, domain.StatusQueued)
	if err != nil {
		return 0, err
	}
	var attempts int
	if err := row.Scan(&attempts); err != nil {
		if err == sql.ErrNoRows {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return attempts, nil
}

// Acknowledge removes the record. A missing record (stale or duplicate ack,
// or a user delete that raced the ack) is a no-op.
func (r *Repository) Acknowledge(ctx context.Context, notificationID string) error {
	_, err := r.db.ExecWithRetry(ctx, r.retries,
		`DELETE FROM delivery_records WHERE notification_id = $1 AND status IN ($2, $3)`,
		notificationID, domain.StatusQueued, domain.StatusPendingAck)
	return err
}

// Requeue puts a dead-lettered record back in play with a zeroed attempt
// count so operator-triggered redelivery gets the full budget again.
func (r *Repository) Requeue(ctx context.Context, notificationID string) error {
	res, err := r.db.ExecWithRetry(ctx, r.retries,
		`UPDATE delivery_records SET status = $1, attempt_count = 0, updated_at = $2
		WHERE notification_id = $3 AND status = $4`,
		domain.StatusQueued, time.Now(), notificationID, domain.StatusDeadLettered)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) MarkDeadLettered(ctx context.Context, notificationID string) error {
	_, err := r.db.ExecWithRetry(ctx, r.retries,
		`UPDATE delivery_records SET status = $1, updated_at = $2 WHERE notification_id = $3`,
		domain.StatusDeadLettered, time.Now(), notificationID)
	return err
}

func (r *Repository) DeleteDelivery(ctx context.Context, notificationID string) error {
	_, err := r.db.ExecWithRetry(ctx, r.retries,
		`DELETE FROM delivery_records WHERE notification_id = $1`, notificationID)
	return err
}

func (r *Repository) DeleteAllDeliveriesForRecipient(ctx context.Context, recipientID string) error {
	_, err := r.db.ExecWithRetry(ctx, r.retries,
		`DELETE FROM delivery_records WHERE recipient_id = $1`, recipientID)
	return err
}

// ExpirePendingAcks converts "sent" back into "still owed": records that
// sat in pending_ack past the deadline return to queued for the next sweep.
func (r *Repository) ExpirePendingAcks(ctx context.Context, deadline time.Duration) ([]*domain.DeliveryRecord, error) {
	return r.flipStale(ctx, domain.StatusPendingAck, deadline)
}

// StaleQueued picks up queued records whose broker message got lost (e.g.
// the publish at accept time failed) and bumps them for re-enqueueing.
func (r *Repository) StaleQueued(ctx context.Context, olderThan time.Duration) ([]*domain.DeliveryRecord, error) {
	return r.flipStale(ctx, domain.StatusQueued, olderThan)
}

func (r *Repository) flipStale(ctx context.Context, from domain.DeliveryStatus, olderThan time.Duration) ([]*domain.DeliveryRecord, error) {
	rows, err := r.db.QueryWithRetry(ctx, r.retries,
		`UPDATE delivery_records SET status = $1, updated_at = $2
		WHERE status = $3 AND updated_at < $4
		RETURNING notification_id, recipient_id`,
		domain.StatusQueued, time.Now(), from, time.Now().Add(-olderThan))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*domain.DeliveryRecord
	for rows.Next() {
		rec := &domain.DeliveryRecord{Status: domain.StatusQueued}
		if err := rows.Scan(&rec.NotificationID, &rec.RecipientID); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Backlog returns the notifications a recipient is still owed, oldest
// first, for the connect-time flush.
func (r *Repository) Backlog(ctx context.Context, recipientID string) ([]*domain.Notification, error) {
	rows, err := r.db.QueryWithRetry(ctx, r.retries,
		`SELECT `+prefixedNotificationColumns+`
		FROM notifications n
		JOIN delivery_records d ON d.notification_id = n.id
		WHERE d.recipient_id = $1 AND d.status IN ($2, $3)
		ORDER BY d.enqueued_at ASC`,
		recipientID, domain.StatusQueued, domain.StatusPendingAck)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifs []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows.Scan)
		if err != nil {
			return nil, err
		}
		notifs = append(notifs, n)
	}
	return notifs, rows.Err()
}

func (r *Repository) ListDeadLettered(ctx context.Context, limit int) ([]*domain.DeliveryRecord, error) {
	rows, err := r.db.QueryWithRetry(ctx, r.retries,
		`SELECT notification_id, recipient_id, channels, status, attempt_count, enqueued_at, published_at, updated_at
		FROM delivery_records WHERE status = $1 ORDER BY updated_at DESC LIMIT $2`,
		domain.StatusDeadLettered, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*domain.DeliveryRecord
	for rows.Next() {
		var rec domain.DeliveryRecord
		var channels string
		err := rows.Scan(
			&rec.NotificationID, &rec.RecipientID, &channels, &rec.Status,
			&rec.AttemptCount, &rec.EnqueuedAt, &rec.PublishedAt, &rec.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		rec.Channels = splitChannels(channels)
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}
