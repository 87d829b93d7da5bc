package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"tokenomy/internal/gate"
	"tokenomy/internal/metrics"
	"tokenomy/internal/model"
	"tokenomy/internal/repository"
)

// gateLease bounds how long one community's pricing cycle may hold its
// single-flight lock before a crashed run stops blocking the next.
const gateLease = time.Minute

// PricingEngine re-prices actions from demand. Each cycle is deterministic
// for a given usage snapshot, bounded by the catalog multipliers, and rate
// limited per action by the community's update interval.
type PricingEngine struct {
	store   repository.Store
	gate    gate.Gate
	catalog *Catalog
	bus     EventBus
	metrics *metrics.Collector
	// zeroUsageRatio stands in for the usage ratio when the community-wide
	// hourly average is zero, keeping the first cycle out of both thresholds.
	zeroUsageRatio float64
	now            func() time.Time
}

func NewPricingEngine(store repository.Store, g gate.Gate, catalog *Catalog, bus EventBus, collector *metrics.Collector, zeroUsageRatio float64) *PricingEngine {
	if zeroUsageRatio <= 0 {
		zeroUsageRatio = 50
	}
	return &PricingEngine{
		store:          store,
		gate:           g,
		catalog:        catalog,
		bus:            bus,
		metrics:        collector,
		zeroUsageRatio: zeroUsageRatio,
		now:            time.Now,
	}
}

// computePrice derives an action's next price from its usage ratio. It is a
// pure function: same inputs, same output.
func computePrice(cfg model.PricingConfig, current, baseCost int64, usageRatio float64) (int64, model.PriceCause, bool) {
	var (
		next  int64
		cause model.PriceCause
	)
	step := cfg.ChangeRatePct / 100 * cfg.VolatilityFactor
	switch {
	case usageRatio >= cfg.IncreaseThreshold:
		next = int64(math.Floor(float64(current) * (1 + step)))
		cause = model.CauseHighDemand
	case usageRatio <= cfg.DecreaseThreshold:
		next = int64(math.Floor(float64(current) * (1 - step)))
		cause = model.CauseLowDemand
	default:
		return current, "", false
	}

	floor := int64(math.Floor(float64(baseCost) * cfg.MinMultiplier))
	ceil := int64(math.Floor(float64(baseCost) * cfg.MaxMultiplier))
	if next < floor {
		next = floor
	}
	if next > ceil {
		next = ceil
	}
	if next == current {
		return current, "", false
	}
	return next, cause, true
}

// RunCycle runs one pricing pass for a community. Cycles for the same
// community are single-flight: a second trigger while one is running is
// skipped, not queued. Returns the number of prices changed.
func (p *PricingEngine) RunCycle(ctx context.Context, communityID string) (int, error) {
	acquired, err := p.gate.TryAcquire(ctx, "pricing:"+communityID, gateLease)
	if err != nil {
		return 0, fmt.Errorf("pricing gate: %w", err)
	}
	if !acquired {
		slog.Debug("pricing: cycle already running", "community", communityID)
		return 0, nil
	}
	defer func() {
		if err := p.gate.Release(ctx, "pricing:"+communityID); err != nil {
			slog.Warn("pricing: release gate", "community", communityID, "error", err)
		}
	}()

	cfg, err := p.store.Communities().Get(ctx, communityID)
	if err != nil {
		return 0, err
	}
	if !cfg.Pricing.Enabled {
		return 0, nil
	}
	windows, err := p.store.Usage().List(ctx, communityID)
	if err != nil {
		return 0, err
	}
	if len(windows) == 0 {
		return 0, nil
	}

	var totalHourly int64
	for _, w := range windows {
		totalHourly += w.Hourly
	}
	average := float64(totalHourly) / float64(len(windows))

	now := p.now()
	changed := 0
	for _, w := range windows {
		// One change per elapsed update interval, however often we are
		// triggered.
		if now.Sub(w.LastPriceUpdateAt) < cfg.Pricing.UpdateInterval {
			continue
		}
		action, ok := p.catalog.Get(w.ActionID)
		if !ok {
			continue
		}
		ratio := p.zeroUsageRatio
		if average > 0 {
			ratio = float64(w.Hourly) / average * 100
		}
		current := cfg.Price(action.ID, action.BaseCost)
		next, cause, ok := computePrice(cfg.Pricing, current, action.BaseCost, ratio)
		if !ok {
			continue
		}
		if err := p.commitChange(ctx, communityID, action.ID, current, next, cause, w.TotalUses, now); err != nil {
			return changed, err
		}
		changed++
	}
	if changed > 0 {
		slog.Info("pricing: cycle complete", "community", communityID, "changed", changed)
	}
	return changed, nil
}

// commitChange persists one price change: the override, its history entry
// and the interval stamp move together.
func (p *PricingEngine) commitChange(ctx context.Context, communityID, actionID string, current, next int64, cause model.PriceCause, totalUses int64, now time.Time) error {
	entry := &model.PriceHistoryEntry{
		CommunityID:   communityID,
		ActionID:      actionID,
		Price:         next,
		Cause:         cause,
		PctChange:     (float64(next) - float64(current)) / float64(current) * 100,
		UsageAtChange: totalUses,
	}
	err := p.store.Atomic(ctx, func(s repository.Store) error {
		if err := s.Communities().SetPriceOverride(ctx, communityID, actionID, next); err != nil {
			return err
		}
		if err := s.Prices().Append(ctx, entry); err != nil {
			return err
		}
		return s.Usage().TouchPriceUpdate(ctx, communityID, actionID, now)
	})
	if err != nil {
		return fmt.Errorf("commit price change %s/%s: %w", communityID, actionID, err)
	}
	p.metrics.RecordPriceChange(string(cause))
	p.publish(entry)
	return nil
}

// RunAll runs the cycle for every community with adaptive pricing enabled.
// A failing community is logged and skipped; the rest still run.
func (p *PricingEngine) RunAll(ctx context.Context) (int, error) {
	ids, err := p.store.Communities().ListAdaptive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list adaptive communities: %w", err)
	}
	total := 0
	for _, id := range ids {
		n, err := p.RunCycle(ctx, id)
		if err != nil {
			slog.Error("pricing: cycle failed", "community", id, "error", err)
			continue
		}
		total += n
	}
	return total, nil
}

// ResetPrices returns every overridden action to its base cost, logging one
// reset entry per action.
func (p *PricingEngine) ResetPrices(ctx context.Context, communityID string) (int, error) {
	cfg, err := p.store.Communities().Get(ctx, communityID)
	if err != nil {
		return 0, err
	}
	reset := 0
	for _, a := range p.catalog.All() {
		current, overridden := cfg.PriceOverrides[a.ID]
		if !overridden || current == a.BaseCost {
			continue
		}
		entry := &model.PriceHistoryEntry{
			CommunityID: communityID,
			ActionID:    a.ID,
			Price:       a.BaseCost,
			Cause:       model.CauseReset,
			PctChange:   (float64(a.BaseCost) - float64(current)) / float64(current) * 100,
		}
		err := p.store.Atomic(ctx, func(s repository.Store) error {
			if err := s.Communities().SetPriceOverride(ctx, communityID, a.ID, a.BaseCost); err != nil {
				return err
			}
			return s.Prices().Append(ctx, entry)
		})
		if err != nil {
			return reset, fmt.Errorf("reset price %s/%s: %w", communityID, a.ID, err)
		}
		p.metrics.RecordPriceChange(string(model.CauseReset))
		p.publish(entry)
		reset++
	}
	return reset, nil
}

// GetTrend returns recent price changes, newest first; actionID may be empty
// for all actions.
func (p *PricingEngine) GetTrend(ctx context.Context, communityID, actionID string, limit int) ([]model.PriceHistoryEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return p.store.Prices().List(ctx, communityID, actionID, limit)
}

func (p *PricingEngine) publish(entry *model.PriceHistoryEntry) {
	if p.bus == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		slog.Error("pricing: marshal event", "error", err)
		return
	}
	if err := p.bus.Publish(TopicPrices, data); err != nil {
		slog.Warn("pricing: publish event", "error", err)
	}
}
