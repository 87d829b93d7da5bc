package repository

import (
	"context"
	"time"

	"tokenomy/internal/model"
)

// Store is the persistence boundary for the economy. Two implementations
// exist: postgres (system of record) and memory (tests).
//
// Atomic runs fn against a store whose writes commit together or not at all.
// Nested Atomic calls join the enclosing unit. Engines put every multi-step
// financial operation inside one Atomic call so no caller can observe a
// partially-applied sibling.
type Store interface {
	Atomic(ctx context.Context, fn func(Store) error) error

	Accounts() AccountStore
	Transactions() TransactionStore
	Communities() CommunityStore
	Cooldowns() CooldownStore
	Shares() ShareStore
	Usage() UsageStore
	Prices() PriceHistoryStore
}

// AccountStore mutates balances. Both mutations maintain the invariant
// balance == totalEarned - totalSpent inside the same write.
type AccountStore interface {
	// Get returns the account, creating it with a zero balance on first touch.
	Get(ctx context.Context, id string) (*model.Account, error)

	// Credit adds amount to the balance and total earned.
	Credit(ctx context.Context, id string, amount int64) (*model.Account, error)

	// Debit subtracts amount from the balance and adds it to total spent.
	// The affordability check and the write are one atomic step; it returns
	// ErrInsufficientFunds without touching the row when balance < amount.
	Debit(ctx context.Context, id string, amount int64) (*model.Account, error)
}

// TransactionStore is the append-only ledger log plus the read queries the
// engines derive leaderboards and ROI estimates from.
type TransactionStore interface {
	Append(ctx context.Context, tx *model.Transaction) error
	ByAccount(ctx context.Context, accountID string, limit int) ([]model.Transaction, error)
	ByCommunity(ctx context.Context, communityID string, limit int) ([]model.Transaction, error)
	// SpendTotalSince sums the absolute spend amounts in a community since the
	// given time.
	SpendTotalSince(ctx context.Context, communityID string, since time.Time) (int64, error)
	// EarnTotals returns per-account earned totals within a community, highest
	// first.
	EarnTotals(ctx context.Context, communityID string, limit int) ([]AccountTotal, error)
}

// AccountTotal is a leaderboard row.
type AccountTotal struct {
	AccountID string `json:"account_id"`
	Total     int64  `json:"total"`
}

// CommunityStore persists per-community configuration.
type CommunityStore interface {
	// Get returns the community config, creating the default config on first
	// touch.
	Get(ctx context.Context, id string) (*model.CommunityConfig, error)
	Put(ctx context.Context, cfg *model.CommunityConfig) error
	// SetPriceOverride persists one action price override without rewriting
	// the rest of the config.
	SetPriceOverride(ctx context.Context, communityID, actionID string, price int64) error
	// ListAdaptive returns ids of communities with adaptive pricing enabled.
	ListAdaptive(ctx context.Context) ([]string, error)
	// Lock serializes the calling atomic unit against every other unit that
	// locks the same community, and is held until the unit ends. Market
	// mutations take it before reading holdings or supply so the
	// read-check-write sequence cannot interleave with a concurrent buyer.
	// Must be called inside Atomic.
	Lock(ctx context.Context, communityID string) error
}

// CooldownStore persists action cooldowns keyed by (account, community,
// action). Expiry is checked by comparison against now, never by timers, so a
// missed cleanup sweep cannot affect correctness.
type CooldownStore interface {
	// Active returns the unexpired cooldown for the key, or nil.
	Active(ctx context.Context, accountID, communityID, actionID string, now time.Time) (*model.Cooldown, error)
	Set(ctx context.Context, cd model.Cooldown) error
	// Clear drops the cooldown for the key, releasing a reservation whose
	// action did not go through.
	Clear(ctx context.Context, accountID, communityID, actionID string) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// ShareStore persists holdings, the append-only share log, and dividend
// payout records with their per-holder applied markers.
type ShareStore interface {
	// Holding returns the account's position, or nil when it never bought in.
	Holding(ctx context.Context, communityID, accountID string) (*model.Holding, error)
	// Holders returns all positions with shares > 0, largest first.
	Holders(ctx context.Context, communityID string) ([]model.Holding, error)
	// Outstanding returns the total shares currently held in the community.
	Outstanding(ctx context.Context, communityID string) (int64, error)

	AddShares(ctx context.Context, communityID, accountID string, qty, pricePerShare int64) error
	// RemoveShares returns ErrInsufficientShares when the holding is smaller
	// than qty.
	RemoveShares(ctx context.Context, communityID, accountID string, qty int64) error
	AddDividend(ctx context.Context, communityID, accountID string, amount int64) error

	AppendTx(ctx context.Context, tx *model.ShareTransaction) error
	RecordPayout(ctx context.Context, payout *model.DividendPayout) error
	// MarkPaid records that the holder received the payout. It returns false
	// when the marker already existed, meaning the holder was paid by an
	// earlier attempt of the same payout.
	MarkPaid(ctx context.Context, payoutID, accountID string) (bool, error)
	Payouts(ctx context.Context, communityID string, limit int) ([]model.DividendPayout, error)
}

// UsageStore maintains the rolling demand counters the pricing engine reads.
type UsageStore interface {
	// Track recomputes the trailing 1h/24h/7d counts from the transaction log
	// and bumps the all-time total for one use at the given instant.
	Track(ctx context.Context, communityID, actionID string, now time.Time) error
	Get(ctx context.Context, communityID, actionID string) (*model.UsageWindow, error)
	List(ctx context.Context, communityID string) ([]model.UsageWindow, error)
	TouchPriceUpdate(ctx context.Context, communityID, actionID string, now time.Time) error
	// ZeroStale clears the rolling counters of windows unused since the
	// cutoff, preserving TotalUses and LastUsedAt.
	ZeroStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// PriceHistoryStore is the append-only price change log.
type PriceHistoryStore interface {
	Append(ctx context.Context, entry *model.PriceHistoryEntry) error
	// List returns newest-first entries; actionID may be empty for all actions.
	List(ctx context.Context, communityID, actionID string, limit int) ([]model.PriceHistoryEntry, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
