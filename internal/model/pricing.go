package model

import "time"

// UsageWindow carries the rolling demand counters for one (community, action)
// pair. The trailing counts are recomputed from the transaction log each time
// the action is used.
type UsageWindow struct {
	CommunityID       string    `json:"community_id"`
	ActionID          string    `json:"action_id"`
	Hourly            int64     `json:"hourly"`
	Daily             int64     `json:"daily"`
	Weekly            int64     `json:"weekly"`
	LastUsedAt        time.Time `json:"last_used_at"`
	TotalUses         int64     `json:"total_uses"`
	LastPriceUpdateAt time.Time `json:"last_price_update_at"`
}

// PriceCause explains a price history entry.
type PriceCause string

const (
	CauseHighDemand PriceCause = "high_demand"
	CauseLowDemand  PriceCause = "low_demand"
	CauseManual     PriceCause = "manual"
	CauseReset      PriceCause = "reset"
)

// PriceHistoryEntry is one append-only record of a price change. Entries are
// purged on a rolling horizon by the retention sweep.
type PriceHistoryEntry struct {
	ID            int64      `json:"id"`
	CommunityID   string     `json:"community_id"`
	ActionID      string     `json:"action_id"`
	Price         int64      `json:"price"`
	Cause         PriceCause `json:"cause"`
	PctChange     float64    `json:"pct_change"`
	UsageAtChange int64      `json:"usage_at_change"`
	CreatedAt     time.Time  `json:"created_at"`
}
