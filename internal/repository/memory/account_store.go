package memory

import (
	"context"
	"sort"
	"time"

	"tokenomy/internal/model"
	"tokenomy/internal/repository"
)

type accountStore struct{ s *Store }

func (r accountStore) get(id string) *model.Account {
	acct, ok := r.s.c.st.accounts[id]
	if !ok {
		now := time.Now()
		acct = &model.Account{ID: id, CreatedAt: now, UpdatedAt: now}
		r.s.c.st.accounts[id] = acct
	}
	return acct
}

func (r accountStore) Get(_ context.Context, id string) (*model.Account, error) {
	defer r.s.enter()()
	cp := *r.get(id)
	return &cp, nil
}

func (r accountStore) Credit(_ context.Context, id string, amount int64) (*model.Account, error) {
	defer r.s.enter()()
	acct := r.get(id)
	acct.Balance += amount
	acct.TotalEarned += amount
	acct.UpdatedAt = time.Now()
	cp := *acct
	return &cp, nil
}

func (r accountStore) Debit(_ context.Context, id string, amount int64) (*model.Account, error) {
	defer r.s.enter()()
	acct := r.get(id)
	if acct.Balance < amount {
		return nil, repository.ErrInsufficientFunds
	}
	acct.Balance -= amount
	acct.TotalSpent += amount
	acct.UpdatedAt = time.Now()
	cp := *acct
	return &cp, nil
}

type txStore struct{ s *Store }

func (r txStore) Append(_ context.Context, tx *model.Transaction) error {
	defer r.s.enter()()
	tx.ID = int64(len(r.s.c.st.txs) + 1)
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	r.s.c.st.txs = append(r.s.c.st.txs, *tx)
	return nil
}

func (r txStore) ByAccount(_ context.Context, accountID string, limit int) ([]model.Transaction, error) {
	defer r.s.enter()()
	return r.filter(limit, func(tx *model.Transaction) bool {
		return tx.AccountID == accountID
	}), nil
}

func (r txStore) ByCommunity(_ context.Context, communityID string, limit int) ([]model.Transaction, error) {
	defer r.s.enter()()
	return r.filter(limit, func(tx *model.Transaction) bool {
		return tx.CommunityID == communityID
	}), nil
}

// filter walks newest-first and stops at limit.
func (r txStore) filter(limit int, keep func(*model.Transaction) bool) []model.Transaction {
	var out []model.Transaction
	for i := len(r.s.c.st.txs) - 1; i >= 0; i-- {
		tx := r.s.c.st.txs[i]
		if keep(&tx) {
			out = append(out, tx)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

func (r txStore) SpendTotalSince(_ context.Context, communityID string, since time.Time) (int64, error) {
	defer r.s.enter()()
	var total int64
	for i := range r.s.c.st.txs {
		tx := &r.s.c.st.txs[i]
		if tx.CommunityID == communityID && tx.Kind == model.KindSpend && tx.CreatedAt.After(since) {
			if tx.Amount < 0 {
				total -= tx.Amount
			} else {
				total += tx.Amount
			}
		}
	}
	return total, nil
}

func (r txStore) EarnTotals(_ context.Context, communityID string, limit int) ([]repository.AccountTotal, error) {
	defer r.s.enter()()
	totals := make(map[string]int64)
	for i := range r.s.c.st.txs {
		tx := &r.s.c.st.txs[i]
		if tx.CommunityID == communityID && (tx.Kind == model.KindEarn || tx.Kind == model.KindAdminAdd) {
			totals[tx.AccountID] += tx.Amount
		}
	}
	out := make([]repository.AccountTotal, 0, len(totals))
	for id, total := range totals {
		out = append(out, repository.AccountTotal{AccountID: id, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].AccountID < out[j].AccountID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
