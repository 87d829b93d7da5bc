package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tokenomy/internal/model"
)

// Community configuration is stored as one JSONB document per community, the
// same shape the transports serve. Price overrides are patched in place with
// jsonb_set so the pricing engine never rewrites the whole config.
type communityStore struct{ q querier }

func (r communityStore) Get(ctx context.Context, id string) (*model.CommunityConfig, error) {
	def, err := json.Marshal(model.DefaultCommunityConfig(id))
	if err != nil {
		return nil, fmt.Errorf("marshal default config: %w", err)
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO communities (id, config) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`, id, def)
	if err != nil {
		return nil, fmt.Errorf("ensure community: %w", err)
	}

	var (
		raw                  []byte
		createdAt, updatedAt time.Time
	)
	err = r.q.QueryRow(ctx, `SELECT config, created_at, updated_at FROM communities WHERE id = $1`, id).
		Scan(&raw, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("get community: %w", err)
	}
	var cfg model.CommunityConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode community config: %w", err)
	}
	cfg.ID = id
	cfg.CreatedAt = createdAt
	cfg.UpdatedAt = updatedAt
	if cfg.PriceOverrides == nil {
		cfg.PriceOverrides = map[string]int64{}
	}
	if cfg.CooldownOverrides == nil {
		cfg.CooldownOverrides = map[string]time.Duration{}
	}
	return &cfg, nil
}

func (r communityStore) Put(ctx context.Context, cfg *model.CommunityConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal community config: %w", err)
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO communities (id, config) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET config = EXCLUDED.config, updated_at = now()`,
		cfg.ID, raw)
	if err != nil {
		return fmt.Errorf("put community: %w", err)
	}
	return nil
}

func (r communityStore) SetPriceOverride(ctx context.Context, communityID, actionID string, price int64) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE communities SET
			config = jsonb_set(config, ARRAY['price_overrides', $2::text], to_jsonb($3::bigint), true),
			updated_at = now()
		WHERE id = $1`, communityID, actionID, price)
	if err != nil {
		return fmt.Errorf("set price override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set price override: community %s not found", communityID)
	}
	return nil
}

func (r communityStore) ListAdaptive(ctx context.Context) ([]string, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id FROM communities
		WHERE (config->'pricing'->>'enabled')::boolean ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list adaptive communities: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Lock takes a transaction-scoped advisory lock on the community. The lock
// does not depend on a communities row existing and is released at commit or
// rollback, so it must run inside Atomic.
func (r communityStore) Lock(ctx context.Context, communityID string) error {
	_, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('community:' || $1))`, communityID)
	if err != nil {
		return fmt.Errorf("lock community: %w", err)
	}
	return nil
}

type cooldownStore struct{ q querier }

func (r cooldownStore) Active(ctx context.Context, accountID, communityID, actionID string, now time.Time) (*model.Cooldown, error) {
	var cd model.Cooldown
	err := r.q.QueryRow(ctx, `
		SELECT account_id, community_id, action_id, expires_at FROM cooldowns
		WHERE account_id = $1 AND community_id = $2 AND action_id = $3 AND expires_at > $4`,
		accountID, communityID, actionID, now,
	).Scan(&cd.AccountID, &cd.CommunityID, &cd.ActionID, &cd.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cooldown: %w", err)
	}
	return &cd, nil
}

func (r cooldownStore) Set(ctx context.Context, cd model.Cooldown) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO cooldowns (account_id, community_id, action_id, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, community_id, action_id) DO UPDATE SET expires_at = EXCLUDED.expires_at`,
		cd.AccountID, cd.CommunityID, cd.ActionID, cd.ExpiresAt)
	if err != nil {
		return fmt.Errorf("set cooldown: %w", err)
	}
	return nil
}

func (r cooldownStore) Clear(ctx context.Context, accountID, communityID, actionID string) error {
	_, err := r.q.Exec(ctx, `
		DELETE FROM cooldowns
		WHERE account_id = $1 AND community_id = $2 AND action_id = $3`,
		accountID, communityID, actionID)
	if err != nil {
		return fmt.Errorf("clear cooldown: %w", err)
	}
	return nil
}

func (r cooldownStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM cooldowns WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge cooldowns: %w", err)
	}
	return tag.RowsAffected(), nil
}
