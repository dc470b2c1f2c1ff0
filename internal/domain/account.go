// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of the settlement core and depends on nothing.
package domain

import "time"

// ─── Account Types ──────────────────────────────────────────────────────────

// Account is a user's wallet inside the platform.
// Balance and Reserved are minor units (cents) and must never go negative.
// Only the ledger operations (reserve, release, withdraw) mutate them.
type Account struct {
	ID          string        `json:"id"`
	DisplayName string        `json:"display_name"`
	Balance     int64         `json:"balance"`
	Reserved    int64         `json:"reserved"`
	External    *ExternalLink `json:"external,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// ExternalLink holds the OAuth linkage to a gateway sub-account.
// RefreshToken is a secret; it is persisted but never serialized outward.
type ExternalLink struct {
	AccountRef   string    `json:"account_ref"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"-"`
}

// Linked reports whether the account can receive gateway payouts.
func (a *Account) Linked() bool {
	return a.External != nil && a.External.AccountRef != ""
}

// Available returns the spendable balance.
func (a *Account) Available() int64 { return a.Balance }
