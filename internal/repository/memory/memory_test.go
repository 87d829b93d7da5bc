package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenomy/internal/model"
	"tokenomy/internal/repository"
)

func TestAtomicRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_, err := store.Accounts().Credit(ctx, "alice", 100)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.Atomic(ctx, func(s repository.Store) error {
		if _, err := s.Accounts().Debit(ctx, "alice", 40); err != nil {
			return err
		}
		if err := s.Transactions().Append(ctx, &model.Transaction{
			AccountID: "alice", CommunityID: "c1", Kind: model.KindSpend, Amount: -40,
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	account, err := store.Accounts().Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), account.Balance, "debit inside failed unit is rolled back")

	txs, err := store.Transactions().ByAccount(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, txs, "log append inside failed unit is rolled back")
}

func TestAtomicNestedJoinsEnclosingUnit(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_, err := store.Accounts().Credit(ctx, "bob", 100)
	require.NoError(t, err)

	boom := errors.New("outer failure")
	err = store.Atomic(ctx, func(s repository.Store) error {
		inner := s.Atomic(ctx, func(s2 repository.Store) error {
			_, err := s2.Accounts().Debit(ctx, "bob", 30)
			return err
		})
		require.NoError(t, inner)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	account, err := store.Accounts().Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(100), account.Balance, "inner unit rolls back with the outer one")
}

func TestDebitGuard(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_, err := store.Accounts().Credit(ctx, "carol", 50)
	require.NoError(t, err)

	_, err = store.Accounts().Debit(ctx, "carol", 51)
	assert.ErrorIs(t, err, repository.ErrInsufficientFunds)

	account, err := store.Accounts().Get(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, int64(50), account.Balance)
}

func TestMarkPaidIsIdempotentPerPayout(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	fresh, err := store.Shares().MarkPaid(ctx, "payout-1", "alice")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = store.Shares().MarkPaid(ctx, "payout-1", "alice")
	require.NoError(t, err)
	assert.False(t, fresh, "second attempt for the same payout+holder is a no-op")

	fresh, err = store.Shares().MarkPaid(ctx, "payout-2", "alice")
	require.NoError(t, err)
	assert.True(t, fresh, "a new payout id is a new idempotency scope")
}

func TestRemoveSharesGuard(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.Shares().AddShares(ctx, "c1", "alice", 5, 100))

	err := store.Shares().RemoveShares(ctx, "c1", "alice", 6)
	assert.ErrorIs(t, err, repository.ErrInsufficientShares)

	require.NoError(t, store.Shares().RemoveShares(ctx, "c1", "alice", 5))
	outstanding, err := store.Shares().Outstanding(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, outstanding)
}

func TestCooldownExpiryByComparison(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Cooldowns().Set(ctx, model.Cooldown{
		AccountID: "alice", CommunityID: "c1", ActionID: "send_dm",
		ExpiresAt: now.Add(time.Minute),
	}))

	cd, err := store.Cooldowns().Active(ctx, "alice", "c1", "send_dm", now)
	require.NoError(t, err)
	assert.NotNil(t, cd)

	cd, err = store.Cooldowns().Active(ctx, "alice", "c1", "send_dm", now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, cd, "expiry is a comparison, no sweep required")

	purged, err := store.Cooldowns().PurgeExpired(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestCooldownClear(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Cooldowns().Set(ctx, model.Cooldown{
		AccountID: "alice", CommunityID: "c1", ActionID: "send_dm",
		ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, store.Cooldowns().Clear(ctx, "alice", "c1", "send_dm"))

	cd, err := store.Cooldowns().Active(ctx, "alice", "c1", "send_dm", now)
	require.NoError(t, err)
	assert.Nil(t, cd)
}

func TestTrackCountsOnlySpendRows(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// One charge and its refund: only the charge is demand.
	require.NoError(t, store.Transactions().Append(ctx, &model.Transaction{
		AccountID: "alice", CommunityID: "c1", Kind: model.KindSpend,
		Action: "send_dm", Amount: -100, CreatedAt: now,
	}))
	require.NoError(t, store.Transactions().Append(ctx, &model.Transaction{
		AccountID: "alice", CommunityID: "c1", Kind: model.KindEarn,
		Action: "send_dm", Amount: 100, CreatedAt: now,
	}))
	require.NoError(t, store.Usage().Track(ctx, "c1", "send_dm", now))

	w, err := store.Usage().Get(ctx, "c1", "send_dm")
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.Hourly)
	assert.Equal(t, int64(1), w.Daily)
	assert.Equal(t, int64(1), w.Weekly)
}

func TestCommunityDefaultsAndOverridePatch(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	cfg, err := store.Communities().Get(ctx, "fresh")
	require.NoError(t, err)
	assert.False(t, cfg.Market.Enabled)
	assert.True(t, cfg.Pricing.Enabled)
	assert.Len(t, cfg.EnabledActions, len(model.DefaultActions()))

	require.NoError(t, store.Communities().SetPriceOverride(ctx, "fresh", "send_dm", 250))
	cfg, err = store.Communities().Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, int64(250), cfg.PriceOverrides["send_dm"])
	assert.Equal(t, int64(250), cfg.Price("send_dm", 100))
	assert.Equal(t, int64(50), cfg.Price("nickname_change", 50))
}
