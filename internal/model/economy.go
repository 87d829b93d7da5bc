package model

import "time"

// TransactionKind is the business reason for a ledger movement.
type TransactionKind string

const (
	KindEarn        TransactionKind = "earn"
	KindSpend       TransactionKind = "spend"
	KindAdminAdd    TransactionKind = "admin_add"
	KindAdminRemove TransactionKind = "admin_remove"
)

// Account holds a token balance. Accounts are created lazily on first touch.
// At rest, Balance == TotalEarned - TotalSpent.
type Account struct {
	ID          string    `json:"id"`
	Balance     int64     `json:"balance"`
	TotalEarned int64     `json:"total_earned"`
	TotalSpent  int64     `json:"total_spent"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Transaction is one append-only row in the ledger log. Amounts are signed:
// positive for earn/admin_add, negative for spend/admin_remove.
type Transaction struct {
	ID          int64           `json:"id"`
	AccountID   string          `json:"account_id"`
	CommunityID string          `json:"community_id"`
	Kind        TransactionKind `json:"kind"`
	Amount      int64           `json:"amount"`
	Action      string          `json:"action,omitempty"`
	TargetID    string          `json:"target_id,omitempty"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Cooldown blocks repeat use of an action until ExpiresAt. Expiry is decided
// by comparing against the current time, never by a timer.
type Cooldown struct {
	AccountID   string    `json:"account_id"`
	CommunityID string    `json:"community_id"`
	ActionID    string    `json:"action_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}
