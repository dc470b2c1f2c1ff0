package domain

import "time"

// ─── Payment Types ──────────────────────────────────────────────────────────

// PaymentMethod distinguishes wallet-funded reservations from payments
// routed through the external gateway.
type PaymentMethod string

const (
	MethodWallet  PaymentMethod = "wallet"
	MethodGateway PaymentMethod = "gateway"
)

// PaymentStatus only advances forward; cancelled is reachable from
// pending only.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentSettled   PaymentStatus = "settled"
)

// CanAdvance reports whether s → to is a legal payment status move.
func (s PaymentStatus) CanAdvance(to PaymentStatus) bool {
	switch s {
	case PaymentPending:
		return to == PaymentSettled || to == PaymentCancelled
	}
	return false
}

// Payment records one reservation-of-funds event. Amount is immutable.
// GatewayTxnID is empty until the gateway confirms the transaction and
// is unique across payments once set; webhook reconciliation keys on it.
type Payment struct {
	ID           string        `json:"id"`
	Amount       int64         `json:"amount"`
	PayerID      string        `json:"payer_id"`
	PayeeID      string        `json:"payee_id,omitempty"` // resolved at settlement
	Method       PaymentMethod `json:"method"`
	Status       PaymentStatus `json:"status"`
	GatewayTxnID string        `json:"gateway_txn_id,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}
