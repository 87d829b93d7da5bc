package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"tokenomy/internal/metrics"
	"tokenomy/internal/model"
	"tokenomy/internal/repository"
)

// ShareMarket sells capped-supply community equity and fans spending-funded
// dividends out to holders.
type ShareMarket struct {
	store   repository.Store
	bus     EventBus
	metrics *metrics.Collector
	now     func() time.Time
}

func NewShareMarket(store repository.Store, bus EventBus, collector *metrics.Collector) *ShareMarket {
	return &ShareMarket{store: store, bus: bus, metrics: collector, now: time.Now}
}

// Buy purchases qty shares at the current share price. The affordability
// check, the holding update and both log rows commit together.
func (m *ShareMarket) Buy(ctx context.Context, communityID, accountID string, qty int64) (*model.Holding, error) {
	cfg, err := m.store.Communities().Get(ctx, communityID)
	if err != nil {
		return nil, err
	}
	market := cfg.Market
	if !market.Enabled {
		return nil, ErrMarketDisabled
	}
	if qty < market.MinPurchaseQty || qty <= 0 {
		return nil, fmt.Errorf("%w: minimum is %d", ErrBelowMinPurchase, market.MinPurchaseQty)
	}
	cost := qty * market.SharePrice

	var holding *model.Holding
	err = m.store.Atomic(ctx, func(s repository.Store) error {
		// The supply and cap checks below read before writing, so the whole
		// unit holds the community lock to keep concurrent buyers from
		// passing them on the same stale counts.
		if err := s.Communities().Lock(ctx, communityID); err != nil {
			return err
		}
		current, err := s.Shares().Holding(ctx, communityID, accountID)
		if err != nil {
			return err
		}
		var held int64
		if current != nil {
			held = current.Shares
		}
		if held+qty > market.MaxHoldingPerAccount {
			return fmt.Errorf("%w: cap is %d, holding %d", ErrHoldingCapExceeded, market.MaxHoldingPerAccount, held)
		}
		outstanding, err := s.Shares().Outstanding(ctx, communityID)
		if err != nil {
			return err
		}
		if outstanding+qty > market.TotalSupply {
			return fmt.Errorf("%w: %d of %d available", ErrSupplyExhausted, market.TotalSupply-outstanding, market.TotalSupply)
		}

		if _, err := applyTx(ctx, s, &model.Transaction{
			AccountID:   accountID,
			CommunityID: communityID,
			Kind:        model.KindSpend,
			Amount:      -cost,
			Description: fmt.Sprintf("bought %d shares at %d", qty, market.SharePrice),
		}); err != nil {
			return err
		}
		if err := s.Shares().AddShares(ctx, communityID, accountID, qty, market.SharePrice); err != nil {
			return err
		}
		if err := s.Shares().AppendTx(ctx, &model.ShareTransaction{
			CommunityID:   communityID,
			AccountID:     accountID,
			Type:          model.ShareBuy,
			Shares:        qty,
			PricePerShare: market.SharePrice,
			TotalAmount:   cost,
		}); err != nil {
			return err
		}
		holding, err = s.Shares().Holding(ctx, communityID, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.metrics.RecordShareTrade(string(model.ShareBuy))
	return holding, nil
}

// Sell liquidates qty shares at the discounted price. The discount is below
// one so a buy/sell round trip always loses tokens.
func (m *ShareMarket) Sell(ctx context.Context, communityID, accountID string, qty int64) (int64, error) {
	cfg, err := m.store.Communities().Get(ctx, communityID)
	if err != nil {
		return 0, err
	}
	market := cfg.Market
	if !market.Enabled {
		return 0, ErrMarketDisabled
	}
	if qty <= 0 {
		return 0, repository.ErrInvalidAmount
	}
	perShare := int64(math.Floor(float64(market.SharePrice) * market.SellDiscount))
	payout := qty * perShare

	err = m.store.Atomic(ctx, func(s repository.Store) error {
		if err := s.Communities().Lock(ctx, communityID); err != nil {
			return err
		}
		if err := s.Shares().RemoveShares(ctx, communityID, accountID, qty); err != nil {
			return err
		}
		if payout > 0 {
			if _, err := applyTx(ctx, s, &model.Transaction{
				AccountID:   accountID,
				CommunityID: communityID,
				Kind:        model.KindEarn,
				Amount:      payout,
				Description: fmt.Sprintf("sold %d shares at %d", qty, perShare),
			}); err != nil {
				return err
			}
		}
		return s.Shares().AppendTx(ctx, &model.ShareTransaction{
			CommunityID:   communityID,
			AccountID:     accountID,
			Type:          model.ShareSell,
			Shares:        qty,
			PricePerShare: perShare,
			TotalAmount:   payout,
		})
	})
	if err != nil {
		return 0, err
	}
	m.metrics.RecordShareTrade(string(model.ShareSell))
	return payout, nil
}

// DistributeDividends splits a cut of spentAmount across current holders in
// proportion to their shares. The whole fan-out commits atomically, and each
// holder carries a per-payout applied marker so a retry after a partial
// failure cannot pay anyone twice. The sub-per-share remainder is discarded;
// the payout summary records what was actually distributed.
func (m *ShareMarket) DistributeDividends(ctx context.Context, communityID string, spentAmount int64) (*model.DividendPayout, error) {
	cfg, err := m.store.Communities().Get(ctx, communityID)
	if err != nil {
		return nil, err
	}
	market := cfg.Market
	if !market.Enabled || spentAmount <= 0 {
		return nil, nil
	}
	pool := int64(math.Floor(float64(spentAmount) * market.DividendRatePct / 100))
	if pool <= 0 {
		return nil, nil
	}

	payout := &model.DividendPayout{
		ID:          uuid.NewString(),
		CommunityID: communityID,
	}
	fanOut := func() error {
		return m.store.Atomic(ctx, func(s repository.Store) error {
			// Holding the community lock pins the holder set for the whole
			// fan-out: a concurrent sell cannot shed shares that are about
			// to be paid on.
			if err := s.Communities().Lock(ctx, communityID); err != nil {
				return err
			}
			holders, err := s.Shares().Holders(ctx, communityID)
			if err != nil {
				return err
			}
			if len(holders) == 0 {
				payout.PerShare = 0
				return nil
			}
			var outstanding int64
			for _, h := range holders {
				outstanding += h.Shares
			}
			perShare := pool / outstanding
			if perShare <= 0 {
				payout.PerShare = 0
				return nil
			}

			var distributed int64
			paid := 0
			for _, h := range holders {
				fresh, err := s.Shares().MarkPaid(ctx, payout.ID, h.AccountID)
				if err != nil {
					return err
				}
				if !fresh {
					continue
				}
				amount := h.Shares * perShare
				if _, err := applyTx(ctx, s, &model.Transaction{
					AccountID:   h.AccountID,
					CommunityID: communityID,
					Kind:        model.KindEarn,
					Amount:      amount,
					Description: fmt.Sprintf("dividend: %d shares x %d", h.Shares, perShare),
				}); err != nil {
					return err
				}
				if err := s.Shares().AddDividend(ctx, communityID, h.AccountID, amount); err != nil {
					return err
				}
				if err := s.Shares().AppendTx(ctx, &model.ShareTransaction{
					CommunityID:   communityID,
					AccountID:     h.AccountID,
					Type:          model.ShareDividend,
					Shares:        h.Shares,
					PricePerShare: perShare,
					TotalAmount:   amount,
				}); err != nil {
					return err
				}
				distributed += amount
				paid++
			}
			payout.TotalAmount = distributed
			payout.PerShare = perShare
			payout.HolderCount = paid
			return s.Shares().RecordPayout(ctx, payout)
		})
	}

	if err := fanOut(); err != nil {
		slog.Warn("share market: dividend fan-out failed, retrying once",
			"community_id", communityID, "payout_id", payout.ID, "error", err)
		if err := fanOut(); err != nil {
			return nil, fmt.Errorf("distribute dividends: %w", err)
		}
	}
	if payout.PerShare == 0 {
		return nil, nil
	}
	m.metrics.RecordDividends(payout.TotalAmount)
	m.publish(TopicDividends, payout)
	return payout, nil
}

// MarketInfo summarises a community's market state.
type MarketInfo struct {
	CommunityID        string             `json:"community_id"`
	Config             model.MarketConfig `json:"config"`
	SharesSold         int64              `json:"shares_sold"`
	SharesAvailable    int64              `json:"shares_available"`
	HolderCount        int                `json:"holder_count"`
	TotalDividendsPaid int64              `json:"total_dividends_paid"`
}

func (m *ShareMarket) MarketInfo(ctx context.Context, communityID string) (*MarketInfo, error) {
	cfg, err := m.store.Communities().Get(ctx, communityID)
	if err != nil {
		return nil, err
	}
	holders, err := m.store.Shares().Holders(ctx, communityID)
	if err != nil {
		return nil, err
	}
	var sold, dividends int64
	for _, h := range holders {
		sold += h.Shares
		dividends += h.CumulativeDividends
	}
	return &MarketInfo{
		CommunityID:        communityID,
		Config:             cfg.Market,
		SharesSold:         sold,
		SharesAvailable:    cfg.Market.TotalSupply - sold,
		HolderCount:        len(holders),
		TotalDividendsPaid: dividends,
	}, nil
}

// GetHolding returns the account's position, a zero-share holding when the
// account never bought in.
func (m *ShareMarket) GetHolding(ctx context.Context, communityID, accountID string) (*model.Holding, error) {
	h, err := m.store.Shares().Holding(ctx, communityID, accountID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return &model.Holding{CommunityID: communityID, AccountID: accountID}, nil
	}
	return h, nil
}

// TopHolders returns the largest positions first.
func (m *ShareMarket) TopHolders(ctx context.Context, communityID string, limit int) ([]model.Holding, error) {
	holders, err := m.store.Shares().Holders(ctx, communityID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(holders) > limit {
		holders = holders[:limit]
	}
	return holders, nil
}

// PayoutHistory returns recent dividend fan-outs, newest first.
func (m *ShareMarket) PayoutHistory(ctx context.Context, communityID string, limit int) ([]model.DividendPayout, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return m.store.Shares().Payouts(ctx, communityID, limit)
}

// ROIEstimate projects dividend income for a prospective purchase from the
// trailing 30 days of community spending. It is a pure read.
type ROIEstimate struct {
	CommunityID        string  `json:"community_id"`
	Quantity           int64   `json:"quantity"`
	Cost               int64   `json:"cost"`
	MonthlySpend       int64   `json:"monthly_spend"`
	EstMonthlyDividend int64   `json:"est_monthly_dividend"`
	BreakEvenMonths    float64 `json:"break_even_months,omitempty"`
}

func (m *ShareMarket) EstimateROI(ctx context.Context, communityID string, qty int64) (*ROIEstimate, error) {
	if qty <= 0 {
		return nil, repository.ErrInvalidAmount
	}
	cfg, err := m.store.Communities().Get(ctx, communityID)
	if err != nil {
		return nil, err
	}
	market := cfg.Market
	if !market.Enabled {
		return nil, ErrMarketDisabled
	}
	spend, err := m.store.Transactions().SpendTotalSince(ctx, communityID, m.now().Add(-30*24*time.Hour))
	if err != nil {
		return nil, err
	}
	outstanding, err := m.store.Shares().Outstanding(ctx, communityID)
	if err != nil {
		return nil, err
	}
	// Assume the buyer's shares join the pool the pool is split over.
	divisor := outstanding + qty
	pool := int64(math.Floor(float64(spend) * market.DividendRatePct / 100))
	perShare := int64(0)
	if divisor > 0 {
		perShare = pool / divisor
	}
	est := &ROIEstimate{
		CommunityID:        communityID,
		Quantity:           qty,
		Cost:               qty * market.SharePrice,
		MonthlySpend:       spend,
		EstMonthlyDividend: qty * perShare,
	}
	if est.EstMonthlyDividend > 0 {
		est.BreakEvenMonths = float64(est.Cost) / float64(est.EstMonthlyDividend)
	}
	return est, nil
}

func (m *ShareMarket) publish(topic string, payload any) {
	if m.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("share market: marshal event", "topic", topic, "error", err)
		return
	}
	if err := m.bus.Publish(topic, data); err != nil {
		slog.Warn("share market: publish event", "topic", topic, "error", err)
	}
}

// IsMarketError reports whether the error is one of the market's business
// rejections rather than a storage failure.
func IsMarketError(err error) bool {
	return errors.Is(err, ErrMarketDisabled) ||
		errors.Is(err, ErrBelowMinPurchase) ||
		errors.Is(err, ErrHoldingCapExceeded) ||
		errors.Is(err, ErrSupplyExhausted) ||
		errors.Is(err, repository.ErrInsufficientFunds) ||
		errors.Is(err, repository.ErrInsufficientShares) ||
		errors.Is(err, repository.ErrInvalidAmount)
}
