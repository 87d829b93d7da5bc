package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tokenomy/internal/model"
	"tokenomy/internal/repository"
)

type shareStore struct{ s *Store }

func (r shareStore) Holding(_ context.Context, communityID, accountID string) (*model.Holding, error) {
	defer r.s.enter()()
	h, ok := r.s.c.st.holdings[key2(communityID, accountID)]
	if !ok {
		return nil, nil
	}
	cp := *h
	return &cp, nil
}

func (r shareStore) Holders(_ context.Context, communityID string) ([]model.Holding, error) {
	defer r.s.enter()()
	var out []model.Holding
	for _, h := range r.s.c.st.holdings {
		if h.CommunityID == communityID && h.Shares > 0 {
			out = append(out, *h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Shares != out[j].Shares {
			return out[i].Shares > out[j].Shares
		}
		return out[i].AccountID < out[j].AccountID
	})
	return out, nil
}

func (r shareStore) Outstanding(_ context.Context, communityID string) (int64, error) {
	defer r.s.enter()()
	var total int64
	for _, h := range r.s.c.st.holdings {
		if h.CommunityID == communityID {
			total += h.Shares
		}
	}
	return total, nil
}

func (r shareStore) AddShares(_ context.Context, communityID, accountID string, qty, pricePerShare int64) error {
	defer r.s.enter()()
	k := key2(communityID, accountID)
	h, ok := r.s.c.st.holdings[k]
	if !ok {
		h = &model.Holding{CommunityID: communityID, AccountID: accountID, PurchasedAt: time.Now()}
		r.s.c.st.holdings[k] = h
	}
	h.Shares += qty
	h.PurchasePrice = pricePerShare
	return nil
}

func (r shareStore) RemoveShares(_ context.Context, communityID, accountID string, qty int64) error {
	defer r.s.enter()()
	h, ok := r.s.c.st.holdings[key2(communityID, accountID)]
	if !ok || h.Shares < qty {
		return repository.ErrInsufficientShares
	}
	h.Shares -= qty
	return nil
}

func (r shareStore) AddDividend(_ context.Context, communityID, accountID string, amount int64) error {
	defer r.s.enter()()
	h, ok := r.s.c.st.holdings[key2(communityID, accountID)]
	if !ok {
		return fmt.Errorf("%w: holding %s/%s", repository.ErrNotFound, communityID, accountID)
	}
	h.CumulativeDividends += amount
	return nil
}

func (r shareStore) AppendTx(_ context.Context, tx *model.ShareTransaction) error {
	defer r.s.enter()()
	tx.ID = int64(len(r.s.c.st.shareTxs) + 1)
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	r.s.c.st.shareTxs = append(r.s.c.st.shareTxs, *tx)
	return nil
}

func (r shareStore) RecordPayout(_ context.Context, payout *model.DividendPayout) error {
	defer r.s.enter()()
	if payout.CreatedAt.IsZero() {
		payout.CreatedAt = time.Now()
	}
	r.s.c.st.payouts = append(r.s.c.st.payouts, *payout)
	return nil
}

func (r shareStore) MarkPaid(_ context.Context, payoutID, accountID string) (bool, error) {
	defer r.s.enter()()
	k := key2(payoutID, accountID)
	if r.s.c.st.paid[k] {
		return false, nil
	}
	r.s.c.st.paid[k] = true
	return true, nil
}

func (r shareStore) Payouts(_ context.Context, communityID string, limit int) ([]model.DividendPayout, error) {
	defer r.s.enter()()
	var out []model.DividendPayout
	for i := len(r.s.c.st.payouts) - 1; i >= 0; i-- {
		p := r.s.c.st.payouts[i]
		if p.CommunityID == communityID {
			out = append(out, p)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
