// Package memory implements repository.Store entirely in process. It backs
// the engine tests and gives atomicity via copy-on-write snapshots: Atomic
// takes the global lock, clones the state, and restores the clone when fn
// fails.
package memory

import (
	"context"
	"sync"
	"time"

	"tokenomy/internal/model"
	"tokenomy/internal/repository"
)

type state struct {
	accounts    map[string]*model.Account
	txs         []model.Transaction
	communities map[string]*model.CommunityConfig
	cooldowns   map[string]model.Cooldown
	holdings    map[string]*model.Holding
	shareTxs    []model.ShareTransaction
	payouts     []model.DividendPayout
	paid        map[string]bool
	usage       map[string]*model.UsageWindow
	prices      []model.PriceHistoryEntry
}

func newState() *state {
	return &state{
		accounts:    make(map[string]*model.Account),
		communities: make(map[string]*model.CommunityConfig),
		cooldowns:   make(map[string]model.Cooldown),
		holdings:    make(map[string]*model.Holding),
		paid:        make(map[string]bool),
		usage:       make(map[string]*model.UsageWindow),
	}
}

func (st *state) clone() *state {
	c := &state{
		accounts:    make(map[string]*model.Account, len(st.accounts)),
		txs:         append([]model.Transaction(nil), st.txs...),
		communities: make(map[string]*model.CommunityConfig, len(st.communities)),
		cooldowns:   make(map[string]model.Cooldown, len(st.cooldowns)),
		holdings:    make(map[string]*model.Holding, len(st.holdings)),
		shareTxs:    append([]model.ShareTransaction(nil), st.shareTxs...),
		payouts:     append([]model.DividendPayout(nil), st.payouts...),
		paid:        make(map[string]bool, len(st.paid)),
		usage:       make(map[string]*model.UsageWindow, len(st.usage)),
		prices:      append([]model.PriceHistoryEntry(nil), st.prices...),
	}
	for k, v := range st.accounts {
		cp := *v
		c.accounts[k] = &cp
	}
	for k, v := range st.communities {
		c.communities[k] = cloneConfig(v)
	}
	for k, v := range st.cooldowns {
		c.cooldowns[k] = v
	}
	for k, v := range st.holdings {
		cp := *v
		c.holdings[k] = &cp
	}
	for k, v := range st.paid {
		c.paid[k] = v
	}
	for k, v := range st.usage {
		cp := *v
		c.usage[k] = &cp
	}
	return c
}

func cloneConfig(cfg *model.CommunityConfig) *model.CommunityConfig {
	cp := *cfg
	cp.EnabledActions = append([]string(nil), cfg.EnabledActions...)
	cp.Blacklist = append([]string(nil), cfg.Blacklist...)
	cp.PriceOverrides = make(map[string]int64, len(cfg.PriceOverrides))
	for k, v := range cfg.PriceOverrides {
		cp.PriceOverrides[k] = v
	}
	cp.CooldownOverrides = make(map[string]time.Duration, len(cfg.CooldownOverrides))
	for k, v := range cfg.CooldownOverrides {
		cp.CooldownOverrides[k] = v
	}
	return &cp
}

type core struct {
	mu sync.Mutex
	st *state
}

// Store is the in-memory repository.Store. The zero value is not usable; use
// NewStore.
type Store struct {
	c  *core
	tx bool
}

func NewStore() *Store {
	return &Store{c: &core{st: newState()}}
}

// enter acquires the store lock unless the caller is already inside Atomic.
func (s *Store) enter() func() {
	if s.tx {
		return func() {}
	}
	s.c.mu.Lock()
	return s.c.mu.Unlock
}

// Atomic serializes writers and restores a pre-call snapshot when fn fails,
// so partial mutations are never observable. Nested calls join the unit.
func (s *Store) Atomic(_ context.Context, fn func(repository.Store) error) error {
	if s.tx {
		return fn(s)
	}
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	snap := s.c.st.clone()
	if err := fn(&Store{c: s.c, tx: true}); err != nil {
		s.c.st = snap
		return err
	}
	return nil
}

func (s *Store) Accounts() repository.AccountStore         { return accountStore{s} }
func (s *Store) Transactions() repository.TransactionStore { return txStore{s} }
func (s *Store) Communities() repository.CommunityStore    { return communityStore{s} }
func (s *Store) Cooldowns() repository.CooldownStore       { return cooldownStore{s} }
func (s *Store) Shares() repository.ShareStore             { return shareStore{s} }
func (s *Store) Usage() repository.UsageStore              { return usageStore{s} }
func (s *Store) Prices() repository.PriceHistoryStore      { return priceStore{s} }

func key2(a, b string) string    { return a + "\x00" + b }
func key3(a, b, c string) string { return a + "\x00" + b + "\x00" + c }
