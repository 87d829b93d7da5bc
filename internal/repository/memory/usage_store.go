package memory

import (
	"context"
	"sort"
	"time"

	"tokenomy/internal/model"
)

type usageStore struct{ s *Store }

func (r usageStore) window(communityID, actionID string) *model.UsageWindow {
	k := key2(communityID, actionID)
	w, ok := r.s.c.st.usage[k]
	if !ok {
		w = &model.UsageWindow{CommunityID: communityID, ActionID: actionID}
		r.s.c.st.usage[k] = w
	}
	return w
}

func (r usageStore) Track(_ context.Context, communityID, actionID string, now time.Time) error {
	defer r.s.enter()()
	var hourly, daily, weekly int64
	for i := range r.s.c.st.txs {
		tx := &r.s.c.st.txs[i]
		// Only charges count as demand; refund earn rows carry the same
		// action tag but are not uses.
		if tx.CommunityID != communityID || tx.Action != actionID || tx.Kind != model.KindSpend {
			continue
		}
		age := now.Sub(tx.CreatedAt)
		if age <= time.Hour {
			hourly++
		}
		if age <= 24*time.Hour {
			daily++
		}
		if age <= 7*24*time.Hour {
			weekly++
		}
	}
	w := r.window(communityID, actionID)
	w.Hourly = hourly
	w.Daily = daily
	w.Weekly = weekly
	w.LastUsedAt = now
	w.TotalUses++
	return nil
}

func (r usageStore) Get(_ context.Context, communityID, actionID string) (*model.UsageWindow, error) {
	defer r.s.enter()()
	cp := *r.window(communityID, actionID)
	return &cp, nil
}

func (r usageStore) List(_ context.Context, communityID string) ([]model.UsageWindow, error) {
	defer r.s.enter()()
	var out []model.UsageWindow
	for _, w := range r.s.c.st.usage {
		if w.CommunityID == communityID {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActionID < out[j].ActionID })
	return out, nil
}

func (r usageStore) TouchPriceUpdate(_ context.Context, communityID, actionID string, now time.Time) error {
	defer r.s.enter()()
	r.window(communityID, actionID).LastPriceUpdateAt = now
	return nil
}

func (r usageStore) ZeroStale(_ context.Context, cutoff time.Time) (int64, error) {
	defer r.s.enter()()
	var n int64
	for _, w := range r.s.c.st.usage {
		if w.LastUsedAt.Before(cutoff) && (w.Hourly != 0 || w.Daily != 0 || w.Weekly != 0) {
			w.Hourly, w.Daily, w.Weekly = 0, 0, 0
			n++
		}
	}
	return n, nil
}

type priceStore struct{ s *Store }

func (r priceStore) Append(_ context.Context, entry *model.PriceHistoryEntry) error {
	defer r.s.enter()()
	entry.ID = int64(len(r.s.c.st.prices) + 1)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	r.s.c.st.prices = append(r.s.c.st.prices, *entry)
	return nil
}

func (r priceStore) List(_ context.Context, communityID, actionID string, limit int) ([]model.PriceHistoryEntry, error) {
	defer r.s.enter()()
	var out []model.PriceHistoryEntry
	for i := len(r.s.c.st.prices) - 1; i >= 0; i-- {
		e := r.s.c.st.prices[i]
		if e.CommunityID != communityID {
			continue
		}
		if actionID != "" && e.ActionID != actionID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r priceStore) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	defer r.s.enter()()
	kept := r.s.c.st.prices[:0]
	var n int64
	for _, e := range r.s.c.st.prices {
		if e.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.s.c.st.prices = kept
	return n, nil
}
