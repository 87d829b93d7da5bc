package memory

import (
	"context"
	"sort"
	"time"

	"tokenomy/internal/model"
)

type communityStore struct{ s *Store }

func (r communityStore) get(id string) *model.CommunityConfig {
	cfg, ok := r.s.c.st.communities[id]
	if !ok {
		cfg = model.DefaultCommunityConfig(id)
		cfg.CreatedAt = time.Now()
		cfg.UpdatedAt = cfg.CreatedAt
		r.s.c.st.communities[id] = cfg
	}
	return cfg
}

func (r communityStore) Get(_ context.Context, id string) (*model.CommunityConfig, error) {
	defer r.s.enter()()
	return cloneConfig(r.get(id)), nil
}

func (r communityStore) Put(_ context.Context, cfg *model.CommunityConfig) error {
	defer r.s.enter()()
	cp := cloneConfig(cfg)
	cp.UpdatedAt = time.Now()
	r.s.c.st.communities[cfg.ID] = cp
	return nil
}

func (r communityStore) SetPriceOverride(_ context.Context, communityID, actionID string, price int64) error {
	defer r.s.enter()()
	cfg := r.get(communityID)
	cfg.PriceOverrides[actionID] = price
	cfg.UpdatedAt = time.Now()
	return nil
}

func (r communityStore) ListAdaptive(_ context.Context) ([]string, error) {
	defer r.s.enter()()
	var ids []string
	for id, cfg := range r.s.c.st.communities {
		if cfg.Pricing.Enabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Lock is a no-op: Atomic already holds the store-wide mutex, so every unit
// is serialized against every other one.
func (r communityStore) Lock(_ context.Context, _ string) error { return nil }

type cooldownStore struct{ s *Store }

func (r cooldownStore) Active(_ context.Context, accountID, communityID, actionID string, now time.Time) (*model.Cooldown, error) {
	defer r.s.enter()()
	cd, ok := r.s.c.st.cooldowns[key3(accountID, communityID, actionID)]
	if !ok || !cd.ExpiresAt.After(now) {
		return nil, nil
	}
	cp := cd
	return &cp, nil
}

func (r cooldownStore) Set(_ context.Context, cd model.Cooldown) error {
	defer r.s.enter()()
	r.s.c.st.cooldowns[key3(cd.AccountID, cd.CommunityID, cd.ActionID)] = cd
	return nil
}

func (r cooldownStore) Clear(_ context.Context, accountID, communityID, actionID string) error {
	defer r.s.enter()()
	delete(r.s.c.st.cooldowns, key3(accountID, communityID, actionID))
	return nil
}

func (r cooldownStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	defer r.s.enter()()
	var n int64
	for k, cd := range r.s.c.st.cooldowns {
		if !cd.ExpiresAt.After(now) {
			delete(r.s.c.st.cooldowns, k)
			n++
		}
	}
	return n, nil
}
