package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tokenomy/internal/model"
)

type usageStore struct{ q querier }

// Track recomputes the trailing windows from the spend rows of the
// transaction log. Counts decay only when the action is used again, which is
// fine because pricing only reacts to actions that are being used.
func (r usageStore) Track(ctx context.Context, communityID, actionID string, now time.Time) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO usage_windows (community_id, action_id, hourly, daily, weekly, last_used_at, total_uses)
		SELECT $1, $2,
			(SELECT COUNT(*) FROM transactions WHERE community_id = $1 AND action = $2 AND kind = 'spend' AND created_at > $3::timestamptz - interval '1 hour'),
			(SELECT COUNT(*) FROM transactions WHERE community_id = $1 AND action = $2 AND kind = 'spend' AND created_at > $3::timestamptz - interval '24 hours'),
			(SELECT COUNT(*) FROM transactions WHERE community_id = $1 AND action = $2 AND kind = 'spend' AND created_at > $3::timestamptz - interval '7 days'),
			$3, 1
		ON CONFLICT (community_id, action_id) DO UPDATE SET
			hourly       = EXCLUDED.hourly,
			daily        = EXCLUDED.daily,
			weekly       = EXCLUDED.weekly,
			last_used_at = EXCLUDED.last_used_at,
			total_uses   = usage_windows.total_uses + 1`,
		communityID, actionID, now)
	if err != nil {
		return fmt.Errorf("track usage: %w", err)
	}
	return nil
}

const usageColumns = "community_id, action_id, hourly, daily, weekly, last_used_at, total_uses, last_price_update_at"

func (r usageStore) Get(ctx context.Context, communityID, actionID string) (*model.UsageWindow, error) {
	var w model.UsageWindow
	err := r.q.QueryRow(ctx, `
		SELECT `+usageColumns+` FROM usage_windows
		WHERE community_id = $1 AND action_id = $2`, communityID, actionID,
	).Scan(&w.CommunityID, &w.ActionID, &w.Hourly, &w.Daily, &w.Weekly,
		&w.LastUsedAt, &w.TotalUses, &w.LastPriceUpdateAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.UsageWindow{CommunityID: communityID, ActionID: actionID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get usage window: %w", err)
	}
	return &w, nil
}

func (r usageStore) List(ctx context.Context, communityID string) ([]model.UsageWindow, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+usageColumns+` FROM usage_windows
		WHERE community_id = $1 ORDER BY action_id`, communityID)
	if err != nil {
		return nil, fmt.Errorf("list usage windows: %w", err)
	}
	defer rows.Close()
	var out []model.UsageWindow
	for rows.Next() {
		var w model.UsageWindow
		if err := rows.Scan(&w.CommunityID, &w.ActionID, &w.Hourly, &w.Daily, &w.Weekly,
			&w.LastUsedAt, &w.TotalUses, &w.LastPriceUpdateAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r usageStore) TouchPriceUpdate(ctx context.Context, communityID, actionID string, now time.Time) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO usage_windows (community_id, action_id, last_price_update_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (community_id, action_id) DO UPDATE SET last_price_update_at = EXCLUDED.last_price_update_at`,
		communityID, actionID, now)
	if err != nil {
		return fmt.Errorf("touch price update: %w", err)
	}
	return nil
}

func (r usageStore) ZeroStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE usage_windows SET hourly = 0, daily = 0, weekly = 0
		WHERE last_used_at < $1 AND (hourly <> 0 OR daily <> 0 OR weekly <> 0)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("zero stale usage: %w", err)
	}
	return tag.RowsAffected(), nil
}

type priceStore struct{ q querier }

func (r priceStore) Append(ctx context.Context, entry *model.PriceHistoryEntry) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO price_history (community_id, action_id, price, cause, pct_change, usage_at_change)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		entry.CommunityID, entry.ActionID, entry.Price, entry.Cause, entry.PctChange, entry.UsageAtChange,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append price history: %w", err)
	}
	return nil
}

func (r priceStore) List(ctx context.Context, communityID, actionID string, limit int) ([]model.PriceHistoryEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, community_id, action_id, price, cause, pct_change, usage_at_change, created_at
		FROM price_history
		WHERE community_id = $1 AND ($2 = '' OR action_id = $2)
		ORDER BY id DESC LIMIT $3`, communityID, actionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list price history: %w", err)
	}
	defer rows.Close()
	var out []model.PriceHistoryEntry
	for rows.Next() {
		var e model.PriceHistoryEntry
		if err := rows.Scan(&e.ID, &e.CommunityID, &e.ActionID, &e.Price, &e.Cause,
			&e.PctChange, &e.UsageAtChange, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r priceStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM price_history WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge price history: %w", err)
	}
	return tag.RowsAffected(), nil
}
