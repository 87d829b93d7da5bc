package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"tokenomy/internal/metrics"
	"tokenomy/internal/model"
	"tokenomy/internal/repository"
)

// EventBus publishes domain events. Transports provide the NATS-backed
// implementation; a nil bus disables publishing.
type EventBus interface {
	Publish(topic string, data []byte) error
}

// Event topics.
const (
	TopicTransactions = "economy.transactions"
	TopicDividends    = "economy.dividends"
	TopicPrices       = "economy.prices"
	TopicEarn         = "economy.earn"
)

// Ledger is the balance and transaction-log engine. Every mutation pairs the
// balance write with its log row inside one atomic unit.
type Ledger struct {
	store   repository.Store
	bus     EventBus
	metrics *metrics.Collector
}

func NewLedger(store repository.Store, bus EventBus, collector *metrics.Collector) *Ledger {
	return &Ledger{store: store, bus: bus, metrics: collector}
}

// Credit adds tokens to the account and appends an earn row.
func (l *Ledger) Credit(ctx context.Context, accountID, communityID string, amount int64, action, description string) (*model.Account, error) {
	if amount <= 0 {
		return nil, repository.ErrInvalidAmount
	}
	tx := &model.Transaction{
		AccountID:   accountID,
		CommunityID: communityID,
		Kind:        model.KindEarn,
		Amount:      amount,
		Action:      action,
		Description: description,
	}
	account, err := l.apply(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("credit: %w", err)
	}
	return account, nil
}

// Debit removes tokens from the account and appends a spend row. The
// affordability check happens inside the same atomic write, so a concurrent
// debit cannot overdraw.
func (l *Ledger) Debit(ctx context.Context, accountID, communityID string, amount int64, action, description string) (*model.Account, error) {
	if amount <= 0 {
		return nil, repository.ErrInvalidAmount
	}
	tx := &model.Transaction{
		AccountID:   accountID,
		CommunityID: communityID,
		Kind:        model.KindSpend,
		Amount:      -amount,
		Action:      action,
		Description: description,
	}
	account, err := l.apply(ctx, tx)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return nil, err
		}
		return nil, fmt.Errorf("debit: %w", err)
	}
	return account, nil
}

// apply commits one signed transaction and its balance change together.
func (l *Ledger) apply(ctx context.Context, tx *model.Transaction) (*model.Account, error) {
	var account *model.Account
	err := l.store.Atomic(ctx, func(s repository.Store) error {
		var err error
		account, err = applyTx(ctx, s, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.metrics.RecordTransaction(string(tx.Kind))
	l.publish(TopicTransactions, tx)
	return account, nil
}

// applyTx is the shared commit step: the other engines call it inside their
// own Atomic units so charges, refunds and payouts all land in the same log.
func applyTx(ctx context.Context, s repository.Store, tx *model.Transaction) (*model.Account, error) {
	var (
		account *model.Account
		err     error
	)
	switch {
	case tx.Amount > 0:
		account, err = s.Accounts().Credit(ctx, tx.AccountID, tx.Amount)
	case tx.Amount < 0:
		account, err = s.Accounts().Debit(ctx, tx.AccountID, -tx.Amount)
	default:
		return nil, repository.ErrInvalidAmount
	}
	if err != nil {
		return nil, err
	}
	if err := s.Transactions().Append(ctx, tx); err != nil {
		return nil, err
	}
	return account, nil
}

// Transfer moves tokens between two accounts as a paired spend/earn.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID, communityID string, amount int64, description string) error {
	if amount <= 0 {
		return repository.ErrInvalidAmount
	}
	if fromID == toID {
		return ErrSelfTransfer
	}
	out := &model.Transaction{
		AccountID:   fromID,
		CommunityID: communityID,
		Kind:        model.KindSpend,
		Amount:      -amount,
		TargetID:    toID,
		Description: description,
	}
	in := &model.Transaction{
		AccountID:   toID,
		CommunityID: communityID,
		Kind:        model.KindEarn,
		Amount:      amount,
		TargetID:    fromID,
		Description: description,
	}
	err := l.store.Atomic(ctx, func(s repository.Store) error {
		if _, err := applyTx(ctx, s, out); err != nil {
			return err
		}
		_, err := applyTx(ctx, s, in)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return err
		}
		return fmt.Errorf("transfer: %w", err)
	}
	l.metrics.RecordTransaction(string(model.KindSpend))
	l.metrics.RecordTransaction(string(model.KindEarn))
	l.publish(TopicTransactions, out)
	l.publish(TopicTransactions, in)
	return nil
}

// AdminAdjust applies a signed correction on behalf of adminID. Positive
// delta is an admin_add, negative an admin_remove; a removal larger than the
// balance fails rather than overdrawing.
func (l *Ledger) AdminAdjust(ctx context.Context, accountID, communityID string, delta int64, adminID, reason string) (*model.Account, error) {
	if delta == 0 {
		return nil, repository.ErrInvalidAmount
	}
	kind := model.KindAdminAdd
	if delta < 0 {
		kind = model.KindAdminRemove
	}
	tx := &model.Transaction{
		AccountID:   accountID,
		CommunityID: communityID,
		Kind:        kind,
		Amount:      delta,
		Description: fmt.Sprintf("admin adjustment by %s: %s", adminID, reason),
	}
	account, err := l.apply(ctx, tx)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return nil, err
		}
		return nil, fmt.Errorf("admin adjust: %w", err)
	}
	return account, nil
}

func (l *Ledger) GetBalance(ctx context.Context, accountID string) (*model.Account, error) {
	return l.store.Accounts().Get(ctx, accountID)
}

func (l *Ledger) GetHistory(ctx context.Context, accountID string, limit int) ([]model.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return l.store.Transactions().ByAccount(ctx, accountID, limit)
}

// TopEarners returns the community leaderboard by total earned.
func (l *Ledger) TopEarners(ctx context.Context, communityID string, limit int) ([]repository.AccountTotal, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return l.store.Transactions().EarnTotals(ctx, communityID, limit)
}

// publish is fire-and-forget: losing an event never fails the financial
// operation that produced it.
func (l *Ledger) publish(topic string, payload any) {
	if l.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("ledger: marshal event", "topic", topic, "error", err)
		return
	}
	if err := l.bus.Publish(topic, data); err != nil {
		slog.Warn("ledger: publish event", "topic", topic, "error", err)
	}
}
