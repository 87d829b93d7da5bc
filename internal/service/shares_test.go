package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenomy/internal/model"
	"tokenomy/internal/repository"
	"tokenomy/internal/repository/memory"
)

// enableMarket switches the community market on with test-friendly defaults
// and applies any extra tweaks.
func enableMarket(t *testing.T, store *memory.Store, communityID string, mutate func(*model.MarketConfig)) {
	t.Helper()
	ctx := context.Background()
	cfg, err := store.Communities().Get(ctx, communityID)
	require.NoError(t, err)
	cfg.Market.Enabled = true
	cfg.Market.SharePrice = 100
	cfg.Market.TotalSupply = 100
	cfg.Market.MinPurchaseQty = 1
	cfg.Market.MaxHoldingPerAccount = 100
	cfg.Market.SellDiscount = 0.8
	cfg.Market.DividendRatePct = 1
	if mutate != nil {
		mutate(&cfg.Market)
	}
	require.NoError(t, store.Communities().Put(ctx, cfg))
}

func fund(t *testing.T, store *memory.Store, accountID string, amount int64) {
	t.Helper()
	_, err := store.Accounts().Credit(context.Background(), accountID, amount)
	require.NoError(t, err)
}

func balance(t *testing.T, store *memory.Store, accountID string) int64 {
	t.Helper()
	account, err := store.Accounts().Get(context.Background(), accountID)
	require.NoError(t, err)
	return account.Balance
}

func TestBuySellRoundTripLoses(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	market := NewShareMarket(store, nil, nil)
	enableMarket(t, store, "c1", nil)
	fund(t, store, "trader", 10000)

	holding, err := market.Buy(ctx, "c1", "trader", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), holding.Shares)
	assert.Equal(t, int64(9000), balance(t, store, "trader"))

	payout, err := market.Sell(ctx, "c1", "trader", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(800), payout, "10 shares at floor(100*0.8)")
	assert.Equal(t, int64(9800), balance(t, store, "trader"), "round trip costs 200")

	holding, err = market.GetHolding(ctx, "c1", "trader")
	require.NoError(t, err)
	assert.Zero(t, holding.Shares)
}

func TestBuyRejections(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	market := NewShareMarket(store, nil, nil)

	t.Run("market disabled", func(t *testing.T) {
		_, err := market.Buy(ctx, "closed", "trader", 1)
		assert.ErrorIs(t, err, ErrMarketDisabled)
	})

	enableMarket(t, store, "c1", func(mc *model.MarketConfig) {
		mc.MinPurchaseQty = 5
		mc.MaxHoldingPerAccount = 20
		mc.TotalSupply = 30
	})
	fund(t, store, "trader", 100000)
	fund(t, store, "other", 100000)

	t.Run("below minimum", func(t *testing.T) {
		_, err := market.Buy(ctx, "c1", "trader", 4)
		assert.ErrorIs(t, err, ErrBelowMinPurchase)
	})

	t.Run("holding cap", func(t *testing.T) {
		_, err := market.Buy(ctx, "c1", "trader", 15)
		require.NoError(t, err)
		_, err = market.Buy(ctx, "c1", "trader", 6)
		assert.ErrorIs(t, err, ErrHoldingCapExceeded)
	})

	t.Run("supply exhausted", func(t *testing.T) {
		// 15 of 30 already sold; 16 more cannot fit.
		_, err := market.Buy(ctx, "c1", "other", 16)
		assert.ErrorIs(t, err, ErrSupplyExhausted)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		fund(t, store, "broke", 99)
		_, err := market.Buy(ctx, "c1", "broke", 5)
		assert.ErrorIs(t, err, repository.ErrInsufficientFunds)
		assert.Equal(t, int64(99), balance(t, store, "broke"))
		holding, err := market.GetHolding(ctx, "c1", "broke")
		require.NoError(t, err)
		assert.Zero(t, holding.Shares, "failed buy leaves no partial holding")
	})
}

func TestBuyConcurrentSupplyCap(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	market := NewShareMarket(store, nil, nil)
	enableMarket(t, store, "c1", func(mc *model.MarketConfig) {
		mc.TotalSupply = 50
		mc.MaxHoldingPerAccount = 50
	})
	for i := 0; i < 10; i++ {
		fund(t, store, fmt.Sprintf("trader%d", i), 1000)
	}

	// Ten racing buyers of 10 shares each against a supply of 50: exactly
	// five can win, and the outstanding total never exceeds the cap.
	var wg sync.WaitGroup
	results := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = market.Buy(ctx, "c1", fmt.Sprintf("trader%d", i), 10)
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range results {
		if err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, ErrSupplyExhausted)
		}
	}
	assert.Equal(t, 5, won)

	outstanding, err := store.Shares().Outstanding(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), outstanding, "oversell never commits")
}

func TestSellInsufficientShares(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	market := NewShareMarket(store, nil, nil)
	enableMarket(t, store, "c1", nil)
	fund(t, store, "trader", 1000)

	_, err := market.Buy(ctx, "c1", "trader", 3)
	require.NoError(t, err)

	_, err = market.Sell(ctx, "c1", "trader", 5)
	assert.ErrorIs(t, err, repository.ErrInsufficientShares)
	assert.Equal(t, int64(700), balance(t, store, "trader"), "failed sell pays nothing")
}

func TestDividendDistribution(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	market := NewShareMarket(store, nil, nil)
	enableMarket(t, store, "c1", nil)

	for _, h := range []struct {
		id     string
		shares int64
	}{{"small", 10}, {"mid", 20}, {"whale", 70}} {
		fund(t, store, h.id, h.shares*100)
		_, err := market.Buy(ctx, "c1", h.id, h.shares)
		require.NoError(t, err)
	}

	// Rate 1% of a 10000 spend: pool 100 over 100 shares, 1 per share.
	payout, err := market.DistributeDividends(ctx, "c1", 10000)
	require.NoError(t, err)
	require.NotNil(t, payout)
	assert.Equal(t, int64(1), payout.PerShare)
	assert.Equal(t, int64(100), payout.TotalAmount)
	assert.Equal(t, 3, payout.HolderCount)

	assert.Equal(t, int64(10), balance(t, store, "small"))
	assert.Equal(t, int64(20), balance(t, store, "mid"))
	assert.Equal(t, int64(70), balance(t, store, "whale"))

	holding, err := market.GetHolding(ctx, "c1", "whale")
	require.NoError(t, err)
	assert.Equal(t, int64(70), holding.CumulativeDividends)

	history, err := market.PayoutHistory(ctx, "c1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, payout.ID, history[0].ID)
}

func TestDividendNoOps(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	market := NewShareMarket(store, nil, nil)

	t.Run("market disabled", func(t *testing.T) {
		payout, err := market.DistributeDividends(ctx, "closed", 10000)
		require.NoError(t, err)
		assert.Nil(t, payout)
	})

	enableMarket(t, store, "c1", nil)

	t.Run("no holders", func(t *testing.T) {
		payout, err := market.DistributeDividends(ctx, "c1", 10000)
		require.NoError(t, err)
		assert.Nil(t, payout)
	})

	fund(t, store, "holder", 10000)
	_, err := market.Buy(ctx, "c1", "holder", 50)
	require.NoError(t, err)

	t.Run("pool rounds to zero", func(t *testing.T) {
		payout, err := market.DistributeDividends(ctx, "c1", 50)
		require.NoError(t, err)
		assert.Nil(t, payout)
	})

	t.Run("per-share rounds to zero", func(t *testing.T) {
		// Pool 1 over 50 shares floors to 0 per share: nobody is paid.
		before := balance(t, store, "holder")
		payout, err := market.DistributeDividends(ctx, "c1", 100)
		require.NoError(t, err)
		assert.Nil(t, payout)
		assert.Equal(t, before, balance(t, store, "holder"))
	})
}

func TestMarketInfo(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	market := NewShareMarket(store, nil, nil)
	enableMarket(t, store, "c1", nil)

	fund(t, store, "a", 5000)
	fund(t, store, "b", 5000)
	_, err := market.Buy(ctx, "c1", "a", 30)
	require.NoError(t, err)
	_, err = market.Buy(ctx, "c1", "b", 10)
	require.NoError(t, err)

	info, err := market.MarketInfo(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(40), info.SharesSold)
	assert.Equal(t, int64(60), info.SharesAvailable)
	assert.Equal(t, 2, info.HolderCount)

	top, err := market.TopHolders(ctx, "c1", 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "a", top[0].AccountID)
}

func TestEstimateROI(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	market := NewShareMarket(store, nil, nil)
	enableMarket(t, store, "c1", func(mc *model.MarketConfig) {
		mc.DividendRatePct = 10
	})

	// Recent community spending funds the projection.
	fund(t, store, "spender", 20000)
	for i := 0; i < 4; i++ {
		_, err := store.Accounts().Debit(ctx, "spender", 5000)
		require.NoError(t, err)
		require.NoError(t, store.Transactions().Append(ctx, &model.Transaction{
			AccountID: "spender", CommunityID: "c1", Kind: model.KindSpend, Amount: -5000,
		}))
	}

	est, err := market.EstimateROI(ctx, "c1", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), est.Cost)
	assert.Equal(t, int64(20000), est.MonthlySpend)
	// Pool 2000 over the buyer's prospective 10 shares: 200 per share.
	assert.Equal(t, int64(2000), est.EstMonthlyDividend)
	assert.InDelta(t, 0.5, est.BreakEvenMonths, 0.001)

	_, err = market.EstimateROI(ctx, "c1", 0)
	assert.ErrorIs(t, err, repository.ErrInvalidAmount)
}
