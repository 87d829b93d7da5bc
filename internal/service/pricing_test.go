package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenomy/internal/gate"
	"tokenomy/internal/model"
	"tokenomy/internal/repository/memory"
)

func TestComputePrice(t *testing.T) {
	cfg := model.PricingConfig{
		IncreaseThreshold: 60,
		DecreaseThreshold: 40,
		MaxMultiplier:     5,
		MinMultiplier:     0.2,
		ChangeRatePct:     20,
		VolatilityFactor:  1.5,
	}

	t.Run("high demand raises by 30 percent", func(t *testing.T) {
		next, cause, changed := computePrice(cfg, 100, 100, 80)
		require.True(t, changed)
		assert.Equal(t, int64(130), next)
		assert.Equal(t, model.CauseHighDemand, cause)
	})

	t.Run("low demand lowers by 30 percent", func(t *testing.T) {
		next, cause, changed := computePrice(cfg, 100, 100, 20)
		require.True(t, changed)
		assert.Equal(t, int64(70), next)
		assert.Equal(t, model.CauseLowDemand, cause)
	})

	t.Run("mid band holds", func(t *testing.T) {
		_, _, changed := computePrice(cfg, 100, 100, 50)
		assert.False(t, changed)
	})

	t.Run("deterministic", func(t *testing.T) {
		a, _, _ := computePrice(cfg, 130, 100, 80)
		b, _, _ := computePrice(cfg, 130, 100, 80)
		assert.Equal(t, a, b)
	})

	t.Run("stays within multiplier bounds", func(t *testing.T) {
		price := int64(100)
		for i := 0; i < 50; i++ {
			next, _, changed := computePrice(cfg, price, 100, 100)
			if !changed {
				break
			}
			price = next
			assert.LessOrEqual(t, price, int64(500))
		}
		assert.Equal(t, int64(500), price, "converges to baseCost*maxMultiplier")

		for i := 0; i < 50; i++ {
			next, _, changed := computePrice(cfg, price, 100, 0)
			if !changed {
				break
			}
			price = next
			assert.GreaterOrEqual(t, price, int64(20))
		}
		assert.Equal(t, int64(20), price, "converges to baseCost*minMultiplier")
	})
}

type pricingHarness struct {
	store  *memory.Store
	engine *PricingEngine
	clock  *fakeClock
}

func newPricingHarness(t *testing.T) *pricingHarness {
	t.Helper()
	store := memory.NewStore()
	clock := newFakeClock()
	engine := NewPricingEngine(store, gate.NewMemory(), DefaultCatalog(), nil, nil, 50)
	engine.now = clock.Now
	return &pricingHarness{store: store, engine: engine, clock: clock}
}

// spendOn records n priced uses of the action so the usage window sees demand.
func (h *pricingHarness) spendOn(t *testing.T, communityID, actionID string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		require.NoError(t, h.store.Transactions().Append(ctx, &model.Transaction{
			AccountID:   "someone",
			CommunityID: communityID,
			Kind:        model.KindSpend,
			Action:      actionID,
			Amount:      -1,
			CreatedAt:   h.clock.Now(),
		}))
		require.NoError(t, h.store.Usage().Track(ctx, communityID, actionID, h.clock.Now()))
	}
}

func TestRunCycleRaisesHotActionAndCoolsIdleOne(t *testing.T) {
	ctx := context.Background()
	h := newPricingHarness(t)

	// nickname_change is hot, send_dm is nearly idle: ratios 166 and 33
	// against the community average of 6 uses per window.
	h.spendOn(t, "c1", "nickname_change", 10)
	h.spendOn(t, "c1", "send_dm", 2)

	changed, err := h.engine.RunCycle(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	hot, err := h.engine.GetTrend(ctx, "c1", "nickname_change", 1)
	require.NoError(t, err)
	require.Len(t, hot, 1)
	assert.Equal(t, int64(65), hot[0].Price, "floor(50*1.3)")
	assert.Equal(t, model.CauseHighDemand, hot[0].Cause)
	assert.InDelta(t, 30, hot[0].PctChange, 0.001)
	assert.Equal(t, int64(10), hot[0].UsageAtChange)

	idle, err := h.engine.GetTrend(ctx, "c1", "send_dm", 1)
	require.NoError(t, err)
	require.Len(t, idle, 1)
	assert.Equal(t, int64(70), idle[0].Price, "floor(100*0.7)")
	assert.Equal(t, model.CauseLowDemand, idle[0].Cause)

	cfg, err := h.store.Communities().Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(65), cfg.PriceOverrides["nickname_change"])
	assert.Equal(t, int64(70), cfg.PriceOverrides["send_dm"])
}

func TestRunCycleOneChangePerInterval(t *testing.T) {
	ctx := context.Background()
	h := newPricingHarness(t)
	h.spendOn(t, "c1", "nickname_change", 10)
	h.spendOn(t, "c1", "send_dm", 2)

	changed, err := h.engine.RunCycle(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 2, changed)

	// Re-running inside the update interval changes nothing, however often.
	for i := 0; i < 3; i++ {
		h.clock.Advance(time.Minute)
		changed, err = h.engine.RunCycle(ctx, "c1")
		require.NoError(t, err)
		assert.Zero(t, changed)
	}

	// Past the interval (default 15m) the same demand moves prices once more.
	h.clock.Advance(15 * time.Minute)
	changed, err = h.engine.RunCycle(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	trend, err := h.engine.GetTrend(ctx, "c1", "nickname_change", 10)
	require.NoError(t, err)
	assert.Len(t, trend, 2)
}

func TestRunCycleSingleFlight(t *testing.T) {
	ctx := context.Background()
	h := newPricingHarness(t)
	h.spendOn(t, "c1", "nickname_change", 10)
	h.spendOn(t, "c1", "send_dm", 2)

	// Another instance holds the community's gate: this trigger is skipped.
	g := gate.NewMemory()
	h.engine.gate = g
	held, err := g.TryAcquire(ctx, "pricing:c1", time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	changed, err := h.engine.RunCycle(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, changed)

	require.NoError(t, g.Release(ctx, "pricing:c1"))
	changed, err = h.engine.RunCycle(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, changed)
}

func TestRunCycleZeroAverageUsesBaseline(t *testing.T) {
	ctx := context.Background()
	h := newPricingHarness(t)
	h.spendOn(t, "c1", "nickname_change", 3)

	// Zero the rolling counters: the window survives with hourly 0, so the
	// community average is 0 and the baseline ratio of 50 sits between the
	// thresholds.
	h.clock.Advance(8 * 24 * time.Hour)
	_, err := h.store.Usage().ZeroStale(ctx, h.clock.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)

	changed, err := h.engine.RunCycle(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, changed, "baseline ratio must not trigger spurious swings")
}

func TestRunCycleRespectsDisabledPricing(t *testing.T) {
	ctx := context.Background()
	h := newPricingHarness(t)
	h.spendOn(t, "c1", "nickname_change", 10)
	h.spendOn(t, "c1", "send_dm", 2)

	cfg, err := h.store.Communities().Get(ctx, "c1")
	require.NoError(t, err)
	cfg.Pricing.Enabled = false
	require.NoError(t, h.store.Communities().Put(ctx, cfg))

	changed, err := h.engine.RunCycle(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestRunAllCoversAdaptiveCommunities(t *testing.T) {
	ctx := context.Background()
	h := newPricingHarness(t)
	// Touch both communities so they exist with adaptive pricing enabled.
	for _, id := range []string{"c1", "c2"} {
		_, err := h.store.Communities().Get(ctx, id)
		require.NoError(t, err)
	}
	h.spendOn(t, "c1", "nickname_change", 10)
	h.spendOn(t, "c1", "send_dm", 2)
	h.spendOn(t, "c2", "timeout_5min", 8)
	h.spendOn(t, "c2", "send_dm", 1)

	changed, err := h.engine.RunAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, changed)
}

func TestResetPrices(t *testing.T) {
	ctx := context.Background()
	h := newPricingHarness(t)
	h.spendOn(t, "c1", "nickname_change", 10)
	h.spendOn(t, "c1", "send_dm", 2)

	_, err := h.engine.RunCycle(ctx, "c1")
	require.NoError(t, err)

	reset, err := h.engine.ResetPrices(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, reset)

	cfg, err := h.store.Communities().Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), cfg.PriceOverrides["nickname_change"])
	assert.Equal(t, int64(100), cfg.PriceOverrides["send_dm"])

	trend, err := h.engine.GetTrend(ctx, "c1", "nickname_change", 1)
	require.NoError(t, err)
	require.Len(t, trend, 1)
	assert.Equal(t, model.CauseReset, trend[0].Cause)

	// Resetting prices already at base is a no-op.
	reset, err = h.engine.ResetPrices(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, reset)
}
