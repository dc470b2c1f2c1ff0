package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// Gateway abstracts the external payment processor: payment preferences,
// sub-account payouts, and gateway-side cancellation. Implementations
// must bound every call with a timeout and surface failure rather than
// hang.
type Gateway interface {
	// CreatePreference registers a payment and returns the redirect URL
	// the payer is sent to.
	CreatePreference(ctx context.Context, amount int64, description, payerRef string) (*Preference, error)

	// CreatePayout sends funds to the account's linked gateway
	// sub-account. The account must be linked.
	CreatePayout(ctx context.Context, account *Account, amount int64, reference string) (*Payout, error)

	// CancelPayment voids a gateway-side payment. Must be acknowledged
	// (or retried) before any local refund of the same funds.
	CancelPayment(ctx context.Context, gatewayTxnID string) error
}

// Preference is a created gateway payment preference.
type Preference struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirect_url"`
}

// Payout is an acknowledged outbound gateway transfer.
type Payout struct {
	GatewayTxnID string `json:"gateway_txn_id"`
}

// TokenStore persists rotated OAuth token pairs. The old pair must be
// retained when persisting fails, so a broken refresh never corrupts
// the account record.
type TokenStore interface {
	SaveExternalLink(ctx context.Context, accountID string, link ExternalLink) error
	ClearExternalLink(ctx context.Context, accountID string) error
}

// Notifier enqueues a user-facing message. Implementations must never
// let delivery failures affect settlement outcomes.
type Notifier interface {
	Enqueue(ctx context.Context, userID, kind string, payload any)
}
