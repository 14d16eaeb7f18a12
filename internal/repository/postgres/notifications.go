package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"realtime-notifier/internal/domain"
)

const notificationColumns = `id, recipient_id, type, title, body, priority, metadata, action_url, delivered, read, created_at`

const prefixedNotificationColumns = `n.id, n.recipient_id, n.type, n.title, n.body, n.priority, n.metadata, n.action_url, n.delivered, n.read, n.created_at`

func scanNotification(scan func(...any) error) (*domain.Notification, error) {
	var n domain.Notification
	var metadata []byte
	err := scan(
		&n.ID, &n.RecipientID, &n.Type, &n.Title, &n.Body, &n.Priority,
		&metadata, &n.ActionURL, &n.Delivered, &n.Read, &n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
			return nil, err
		}
	}
	return &n, nil
}

func (r *Repository) Create(ctx context.Context, notif *domain.Notification) error {
	var metadata []byte
	if notif.Metadata != nil {
		var err error
		metadata, err = json.Marshal(notif.Metadata)
		if err != nil {
			return err
		}
	}
	_, err := r.db.ExecWithRetry(ctx, r.retries,
		`INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		notif.ID, notif.RecipientID, notif.Type, notif.Title, notif.Body,
		notif.Priority, metadata, notif.ActionURL, notif.Delivered, notif.Read, notif.CreatedAt,
	)
	if err == nil {
		r.cache.Set(ctx, notif.ID, notif, r.ttl)
	}
	return err
}

func (r *Repository) Get(ctx context.Context, id string) (*domain.Notification, error) {
	cached, err := r.cache.Get(ctx, id)
	if err == nil && cached != nil {
		return cached, nil
	}

	row, err := r.db.QueryRowWithRetry(ctx, r.retries,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	n, err := scanNotification(row.Scan)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.cache.Set(ctx, id, n, r.ttl)
	return n, nil
}

func (r *Repository) MarkDelivered(ctx context.Context, id string) error {
	_, err := r.db.ExecWithRetry(ctx, r.retries,
		`UPDATE notifications SET delivered = TRUE WHERE id = $1`, id)
	if err == nil {
		r.cache.Del(ctx, id)
	}
	return err
}

func (r *Repository) MarkRead(ctx context.Context, id, recipientID string) error {
	res, err := r.db.ExecWithRetry(ctx, r.retries,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND recipient_id = $2 AND read = FALSE`,
		id, recipientID)
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
	r.cache.Del(ctx, id)
	return nil
}

func (r *Repository) MarkAllRead(ctx context.Context, recipientID string) error {
	_, err := r.db.ExecWithRetry(ctx, r.retries,
		`UPDATE notifications SET read = TRUE WHERE recipient_id = $1 AND read = FALSE`,
		recipientID)
	return err
}

func (r *Repository) Delete(ctx context.Context, id, recipientID string) error {
	res, err := r.db.ExecWithRetry(ctx, r.retries,
		`DELETE FROM notifications WHERE id = $1 AND recipient_id = $2`, id, recipientID)
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
	r.cache.Del(ctx, id)
	return nil
}

func (r *Repository) DeleteAll(ctx context.Context, recipientID string) error {
	rows, err := r.db.QueryWithRetry(ctx, r.retries,
		`DELETE FROM notifications WHERE recipient_id = $1 RETURNING id`, recipientID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		r.cache.Del(ctx, id)
	}
	return rows.Err()
}

func (r *Repository) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]*domain.Notification, error) {
	rows, err := r.db.QueryWithRetry(ctx, r.retries,
		`SELECT `+notificationColumns+` FROM notifications
		WHERE recipient_id = $1 ORDER BY created_at DESC LIMIT $2`,
		recipientID, limit)
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

func (r *Repository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	row, err := r.db.QueryRowWithRetry(ctx, r.retries,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND read = FALSE`,
		recipientID)
	if err != nil {
		return 0, err
	}
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
