package service

import "errors"

// Share market sentinels. Transports map these to 4xx responses; anything
// else is a 500.
var (
	ErrMarketDisabled     = errors.New("share market is disabled for this community")
	ErrBelowMinPurchase   = errors.New("quantity below minimum purchase")
	ErrHoldingCapExceeded = errors.New("purchase would exceed per-account holding cap")
	ErrSupplyExhausted    = errors.New("not enough shares available")
	ErrSelfTransfer       = errors.New("cannot transfer to the same account")
)

// Outcome codes for action pipeline results. A Perform call that produces one
// of these returns a structured ActionResult with a nil error; only storage
// and wiring problems surface as errors.
const (
	CodeOK                  = "ok"
	CodeActionNotFound      = "action_not_found"
	CodeActionDisabled      = "action_disabled"
	CodeSelfTarget          = "self_target"
	CodeProtectedTarget     = "protected_target"
	CodeOnCooldown          = "on_cooldown"
	CodeInsufficientFunds   = "insufficient_funds"
	CodeAuthorizationDenied = "authorization_denied"
	CodeExecutionFailed     = "execution_failed"
	CodeRateLimited         = "rate_limited"
)
