package domain

import "time"

// ─── Withdrawal Types ───────────────────────────────────────────────────────

// WithdrawalStatus is the review state of a payout request.
type WithdrawalStatus string

const (
	WithdrawalPending WithdrawalStatus = "pending"
	// WithdrawalApproving marks a request claimed by an in-flight
	// approval: the gateway payout has been issued but not yet
	// archived. A claimed request cannot be approved again or denied.
	WithdrawalApproving WithdrawalStatus = "approving"
	WithdrawalApproved  WithdrawalStatus = "approved"
	WithdrawalDenied    WithdrawalStatus = "denied"
)

// WithdrawalRequest is a payout ask awaiting operator review.
// The requested amount is debited from the user's balance up front,
// NOT moved into Reserved. Denying credits it back; approving pays
// out through the gateway minus the platform commission.
type WithdrawalRequest struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Amount    int64            `json:"amount"`
	Status    WithdrawalStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}
