package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure, with no infrastructure dependency.

var (
	// Ledger errors
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvariantViolation = errors.New("ledger invariant violation: reserved balance would go negative")
	ErrAccountNotFound    = errors.New("account not found")

	// State machine errors
	ErrInvalidTransition = errors.New("invalid request transition")
	ErrRequestNotFound   = errors.New("service request not found")
	ErrPriceMismatch     = errors.New("price does not match provider's published price")
	ErrForbidden         = errors.New("account may not act on this request")

	// Payment errors
	ErrPaymentNotFound = errors.New("payment not found")
	ErrDuplicateTxnID  = errors.New("gateway transaction id already recorded")

	// Gateway errors
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrNotLinked          = errors.New("account has no linked gateway sub-account")
	ErrInvalidStateToken  = errors.New("oauth state token invalid or mismatched")

	// Withdrawal errors
	ErrWithdrawalNotFound = errors.New("withdrawal request not found")
	ErrWithdrawalSettled  = errors.New("withdrawal request already settled")
)
