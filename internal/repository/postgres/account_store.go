package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tokenomy/internal/model"
	"tokenomy/internal/repository"
)

type accountStore struct{ q querier }

const accountColumns = "id, balance, total_earned, total_spent, created_at, updated_at"

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.Balance, &a.TotalEarned, &a.TotalSpent, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r accountStore) Get(ctx context.Context, id string) (*model.Account, error) {
	// Lazy creation on first touch.
	_, err := r.q.Exec(ctx, `INSERT INTO accounts (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id)
	if err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}
	a, err := scanAccount(r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r accountStore) Credit(ctx context.Context, id string, amount int64) (*model.Account, error) {
	a, err := scanAccount(r.q.QueryRow(ctx, `
		INSERT INTO accounts (id, balance, total_earned) VALUES ($1, $2, $2)
		ON CONFLICT (id) DO UPDATE SET
			balance      = accounts.balance + EXCLUDED.balance,
			total_earned = accounts.total_earned + EXCLUDED.total_earned,
			updated_at   = now()
		RETURNING `+accountColumns, id, amount))
	if err != nil {
		return nil, fmt.Errorf("credit account: %w", err)
	}
	return a, nil
}

func (r accountStore) Debit(ctx context.Context, id string, amount int64) (*model.Account, error) {
	// The balance guard is part of the UPDATE itself; no read-then-write gap.
	a, err := scanAccount(r.q.QueryRow(ctx, `
		UPDATE accounts SET
			balance     = balance - $2,
			total_spent = total_spent + $2,
			updated_at  = now()
		WHERE id = $1 AND balance >= $2
		RETURNING `+accountColumns, id, amount))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrInsufficientFunds
	}
	if err != nil {
		return nil, fmt.Errorf("debit account: %w", err)
	}
	return a, nil
}

type txStore struct{ q querier }

func (r txStore) Append(ctx context.Context, tx *model.Transaction) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO transactions (account_id, community_id, kind, amount, action, target_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		tx.AccountID, tx.CommunityID, tx.Kind, tx.Amount, tx.Action, tx.TargetID, tx.Description,
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

const txColumns = "id, account_id, community_id, kind, amount, action, target_id, description, created_at"

func collectTxs(rows pgx.Rows) ([]model.Transaction, error) {
	defer rows.Close()
	var out []model.Transaction
	for rows.Next() {
		var tx model.Transaction
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.CommunityID, &tx.Kind, &tx.Amount,
			&tx.Action, &tx.TargetID, &tx.Description, &tx.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r txStore) ByAccount(ctx context.Context, accountID string, limit int) ([]model.Transaction, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE account_id = $1 ORDER BY id DESC LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("transactions by account: %w", err)
	}
	return collectTxs(rows)
}

func (r txStore) ByCommunity(ctx context.Context, communityID string, limit int) ([]model.Transaction, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE community_id = $1 ORDER BY id DESC LIMIT $2`, communityID, limit)
	if err != nil {
		return nil, fmt.Errorf("transactions by community: %w", err)
	}
	return collectTxs(rows)
}

func (r txStore) SpendTotalSince(ctx context.Context, communityID string, since time.Time) (int64, error) {
	var total int64
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(ABS(amount)), 0) FROM transactions
		WHERE community_id = $1 AND kind = 'spend' AND created_at > $2`,
		communityID, since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("spend total: %w", err)
	}
	return total, nil
}

func (r txStore) EarnTotals(ctx context.Context, communityID string, limit int) ([]repository.AccountTotal, error) {
	rows, err := r.q.Query(ctx, `
		SELECT account_id, SUM(amount) AS total FROM transactions
		WHERE community_id = $1 AND kind IN ('earn', 'admin_add')
		GROUP BY account_id ORDER BY total DESC, account_id LIMIT $2`,
		communityID, limit)
	if err != nil {
		return nil, fmt.Errorf("earn totals: %w", err)
	}
	defer rows.Close()
	var out []repository.AccountTotal
	for rows.Next() {
		var t repository.AccountTotal
		if err := rows.Scan(&t.AccountID, &t.Total); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
