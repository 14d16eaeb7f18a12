package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"realtime-notifier/internal/domain"
)

// GetPreferences falls back to defaults for recipients who never saved any,
// so the filter always has something to work with.
func (r *Repository) GetPreferences(ctx context.Context, recipientID string) (*domain.UserPreferences, error) {
	row, err := r.db.QueryRowWithRetry(ctx, r.retries,
		`SELECT recipient_id, types_enabled, do_not_disturb, quiet_enabled, quiet_start, quiet_end,
			channel_in_app, channel_email, channel_push, updated_at
		FROM preferences WHERE recipient_id = $1`, recipientID)
	if err != nil {
		return nil, err
	}

	var p domain.UserPreferences
	var typesEnabled []byte
	var quietStart, quietEnd string
	err = row.Scan(
		&p.RecipientID, &typesEnabled, &p.DoNotDisturb, &p.QuietHours.Enabled,
		&quietStart, &quietEnd,
		&p.Channels.InApp, &p.Channels.Email, &p.Channels.Push, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return domain.DefaultPreferences(recipientID), nil
	}
	if err != nil {
		return nil, err
	}
	if len(typesEnabled) > 0 {
		if err := json.Unmarshal(typesEnabled, &p.TypesEnabled); err != nil {
			return nil, err
		}
	}
	if p.TypesEnabled == nil {
		p.TypesEnabled = map[string]bool{}
	}
	if p.QuietHours.Start, err = domain.ParseClockTime(quietStart); err != nil {
		return nil, err
	}
	if p.QuietHours.End, err = domain.ParseClockTime(quietEnd); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) UpsertPreferences(ctx context.Context, prefs *domain.UserPreferences) error {
	typesEnabled, err := json.Marshal(prefs.TypesEnabled)
	if err != nil {
		return err
	}
	_, err = r.db.ExecWithRetry(ctx, r.retries,
		`INSERT INTO preferences (recipient_id, types_enabled, do_not_disturb, quiet_enabled, quiet_start, quiet_end,
			channel_in_app, channel_email, channel_push, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (recipient_id) DO UPDATE SET
			types_enabled = EXCLUDED.types_enabled,
			do_not_disturb = EXCLUDED.do_not_disturb,
			quiet_enabled = EXCLUDED.quiet_enabled,
			quiet_start = EXCLUDED.quiet_start,
			quiet_end = EXCLUDED.quiet_end,
			channel_in_app = EXCLUDED.channel_in_app,
			channel_email = EXCLUDED.channel_email,
			channel_push = EXCLUDED.channel_push,
			updated_at = EXCLUDED.updated_at`,
		prefs.RecipientID, typesEnabled, prefs.DoNotDisturb,
		prefs.QuietHours.Enabled, prefs.QuietHours.Start.String(), prefs.QuietHours.End.String(),
		prefs.Channels.InApp, prefs.Channels.Email, prefs.Channels.Push, time.Now(),
	)
	return err
}
