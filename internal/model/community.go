package model

import "time"

// MarketConfig is the per-community share market configuration.
type MarketConfig struct {
	Enabled              bool    `json:"enabled"`
	TotalSupply          int64   `json:"total_supply"`
	SharePrice           int64   `json:"share_price"`
	DividendRatePct      float64 `json:"dividend_rate_pct"`
	MinPurchaseQty       int64   `json:"min_purchase_qty"`
	MaxHoldingPerAccount int64   `json:"max_holding_per_account"`
	// SellDiscount < 1 so a buy/sell round trip always loses tokens.
	SellDiscount float64 `json:"sell_discount"`
}

// PricingConfig controls the adaptive pricing cycle for a community.
type PricingConfig struct {
	Enabled           bool          `json:"enabled"`
	UpdateInterval    time.Duration `json:"update_interval"`
	IncreaseThreshold float64       `json:"increase_threshold"`
	DecreaseThreshold float64       `json:"decrease_threshold"`
	MaxMultiplier     float64       `json:"max_multiplier"`
	MinMultiplier     float64       `json:"min_multiplier"`
	ChangeRatePct     float64       `json:"change_rate_pct"`
	VolatilityFactor  float64       `json:"volatility_factor"`
}

// CommunityConfig is the mutable per-community configuration: which catalog
// actions are enabled, price/cooldown overrides, the protected/blacklisted
// account sets, and the market and pricing settings.
type CommunityConfig struct {
	ID                string                   `json:"id"`
	OwnerID           string                   `json:"owner_id"`
	EnabledActions    []string                 `json:"enabled_actions"`
	PriceOverrides    map[string]int64         `json:"price_overrides"`
	CooldownOverrides map[string]time.Duration `json:"cooldown_overrides"`
	Blacklist         []string                 `json:"blacklist"`
	Market            MarketConfig             `json:"market"`
	Pricing           PricingConfig            `json:"pricing"`
	CreatedAt         time.Time                `json:"created_at"`
	UpdatedAt         time.Time                `json:"updated_at"`
}

// ActionEnabled reports whether the community has the action switched on.
func (c *CommunityConfig) ActionEnabled(actionID string) bool {
	for _, id := range c.EnabledActions {
		if id == actionID {
			return true
		}
	}
	return false
}

// Blacklisted reports whether the account is on the community blacklist.
func (c *CommunityConfig) Blacklisted(accountID string) bool {
	for _, id := range c.Blacklist {
		if id == accountID {
			return true
		}
	}
	return false
}

// Price resolves the effective price for an action: community override when
// present, otherwise the catalog base cost.
func (c *CommunityConfig) Price(actionID string, baseCost int64) int64 {
	if p, ok := c.PriceOverrides[actionID]; ok {
		return p
	}
	return baseCost
}

// CooldownFor resolves the effective cooldown for an action.
func (c *CommunityConfig) CooldownFor(actionID string, base time.Duration) time.Duration {
	if d, ok := c.CooldownOverrides[actionID]; ok {
		return d
	}
	return base
}

// DefaultCommunityConfig returns the configuration a community starts with.
// The market ships disabled with deliberately high barriers; adaptive pricing
// ships enabled.
func DefaultCommunityConfig(id string) *CommunityConfig {
	actions := DefaultActions()
	enabled := make([]string, 0, len(actions))
	for _, a := range actions {
		enabled = append(enabled, a.ID)
	}
	return &CommunityConfig{
		ID:                id,
		EnabledActions:    enabled,
		PriceOverrides:    map[string]int64{},
		CooldownOverrides: map[string]time.Duration{},
		Market: MarketConfig{
			Enabled:              false,
			TotalSupply:          100,
			SharePrice:           10000,
			DividendRatePct:      0.5,
			MinPurchaseQty:       1,
			MaxHoldingPerAccount: 10,
			SellDiscount:         0.8,
		},
		Pricing: PricingConfig{
			Enabled:           true,
			UpdateInterval:    15 * time.Minute,
			IncreaseThreshold: 60,
			DecreaseThreshold: 40,
			MaxMultiplier:     5.0,
			MinMultiplier:     0.2,
			ChangeRatePct:     20,
			VolatilityFactor:  1.5,
		},
	}
}
