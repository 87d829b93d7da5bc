package model

import "time"

// Holding is one account's share position in one community. A fully sold
// position stays as a zero-share row so cumulative dividends remain visible.
type Holding struct {
	CommunityID         string    `json:"community_id"`
	AccountID           string    `json:"account_id"`
	Shares              int64     `json:"shares"`
	PurchasePrice       int64     `json:"purchase_price"`
	CumulativeDividends int64     `json:"cumulative_dividends"`
	PurchasedAt         time.Time `json:"purchased_at"`
}

// ShareTransactionType tags the append-only share log.
type ShareTransactionType string

const (
	ShareBuy      ShareTransactionType = "buy"
	ShareSell     ShareTransactionType = "sell"
	ShareDividend ShareTransactionType = "dividend"
)

// ShareTransaction is one append-only row in the share log.
type ShareTransaction struct {
	ID            int64                `json:"id"`
	CommunityID   string               `json:"community_id"`
	AccountID     string               `json:"account_id"`
	Type          ShareTransactionType `json:"type"`
	Shares        int64                `json:"shares"`
	PricePerShare int64                `json:"price_per_share"`
	TotalAmount   int64                `json:"total_amount"`
	CreatedAt     time.Time            `json:"created_at"`
}

// DividendPayout summarises one dividend fan-out. The ID doubles as the
// idempotency scope for per-holder applied markers, so a retried fan-out
// cannot pay the same holder twice.
type DividendPayout struct {
	ID          string    `json:"id"`
	CommunityID string    `json:"community_id"`
	TotalAmount int64     `json:"total_amount"`
	PerShare    int64     `json:"per_share"`
	HolderCount int       `json:"holder_count"`
	CreatedAt   time.Time `json:"created_at"`
}
