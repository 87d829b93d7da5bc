package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tokenomy/internal/model"
	"tokenomy/internal/repository"
)

type shareStore struct{ q querier }

const holdingColumns = "community_id, account_id, shares, purchase_price, cumulative_dividends, purchased_at"

func (r shareStore) Holding(ctx context.Context, communityID, accountID string) (*model.Holding, error) {
	var h model.Holding
	err := r.q.QueryRow(ctx, `
		SELECT `+holdingColumns+` FROM share_holdings
		WHERE community_id = $1 AND account_id = $2`, communityID, accountID,
	).Scan(&h.CommunityID, &h.AccountID, &h.Shares, &h.PurchasePrice, &h.CumulativeDividends, &h.PurchasedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get holding: %w", err)
	}
	return &h, nil
}

func (r shareStore) Holders(ctx context.Context, communityID string) ([]model.Holding, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+holdingColumns+` FROM share_holdings
		WHERE community_id = $1 AND shares > 0
		ORDER BY shares DESC, account_id`, communityID)
	if err != nil {
		return nil, fmt.Errorf("list holders: %w", err)
	}
	defer rows.Close()
	var out []model.Holding
	for rows.Next() {
		var h model.Holding
		if err := rows.Scan(&h.CommunityID, &h.AccountID, &h.Shares, &h.PurchasePrice,
			&h.CumulativeDividends, &h.PurchasedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r shareStore) Outstanding(ctx context.Context, communityID string) (int64, error) {
	var total int64
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(shares), 0) FROM share_holdings WHERE community_id = $1`,
		communityID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("outstanding shares: %w", err)
	}
	return total, nil
}

func (r shareStore) AddShares(ctx context.Context, communityID, accountID string, qty, pricePerShare int64) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO share_holdings (community_id, account_id, shares, purchase_price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (community_id, account_id) DO UPDATE SET
			shares         = share_holdings.shares + EXCLUDED.shares,
			purchase_price = EXCLUDED.purchase_price`,
		communityID, accountID, qty, pricePerShare)
	if err != nil {
		return fmt.Errorf("add shares: %w", err)
	}
	return nil
}

func (r shareStore) RemoveShares(ctx context.Context, communityID, accountID string, qty int64) error {
	// The holding guard is part of the UPDATE, mirroring the account debit.
	tag, err := r.q.Exec(ctx, `
		UPDATE share_holdings SET shares = shares - $3
		WHERE community_id = $1 AND account_id = $2 AND shares >= $3`,
		communityID, accountID, qty)
	if err != nil {
		return fmt.Errorf("remove shares: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrInsufficientShares
	}
	return nil
}

func (r shareStore) AddDividend(ctx context.Context, communityID, accountID string, amount int64) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE share_holdings SET cumulative_dividends = cumulative_dividends + $3
		WHERE community_id = $1 AND account_id = $2`,
		communityID, accountID, amount)
	if err != nil {
		return fmt.Errorf("add dividend: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: holding %s/%s", repository.ErrNotFound, communityID, accountID)
	}
	return nil
}

func (r shareStore) AppendTx(ctx context.Context, tx *model.ShareTransaction) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO share_transactions (community_id, account_id, type, shares, price_per_share, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		tx.CommunityID, tx.AccountID, tx.Type, tx.Shares, tx.PricePerShare, tx.TotalAmount,
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("append share transaction: %w", err)
	}
	return nil
}

func (r shareStore) RecordPayout(ctx context.Context, payout *model.DividendPayout) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO dividend_payouts (id, community_id, total_amount, per_share, holder_count)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		payout.ID, payout.CommunityID, payout.TotalAmount, payout.PerShare, payout.HolderCount,
	).Scan(&payout.CreatedAt)
	if err != nil {
		return fmt.Errorf("record payout: %w", err)
	}
	return nil
}

func (r shareStore) MarkPaid(ctx context.Context, payoutID, accountID string) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO dividend_applied (payout_id, account_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, payoutID, accountID)
	if err != nil {
		return false, fmt.Errorf("mark dividend applied: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r shareStore) Payouts(ctx context.Context, communityID string, limit int) ([]model.DividendPayout, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, community_id, total_amount, per_share, holder_count, created_at
		FROM dividend_payouts WHERE community_id = $1
		ORDER BY created_at DESC LIMIT $2`, communityID, limit)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	defer rows.Close()
	var out []model.DividendPayout
	for rows.Next() {
		var p model.DividendPayout
		if err := rows.Scan(&p.ID, &p.CommunityID, &p.TotalAmount, &p.PerShare, &p.HolderCount, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
