package domain

import "time"

// ─── Webhook Inbox Types ────────────────────────────────────────────────────
// Gateway notifications are stored first and processed asynchronously
// (inbox pattern), so replays and handler crashes are harmless.

// InboxStatus is the processing state of a stored webhook event.
type InboxStatus string

const (
	InboxPending   InboxStatus = "pending"
	InboxProcessed InboxStatus = "processed"
	InboxRejected  InboxStatus = "rejected"
)

// WebhookEvent is one gateway notification as received. Events are
// deduplicated on (event_type, gateway_txn_id) at insert time.
type WebhookEvent struct {
	ID           int64       `json:"id"`
	EventType    string      `json:"event_type"`
	GatewayTxnID string      `json:"gateway_txn_id"`
	Status       InboxStatus `json:"status"`
	Attempts     int         `json:"attempts"`
	LastError    string      `json:"last_error,omitempty"`
	ReceivedAt   time.Time   `json:"received_at"`
	ProcessedAt  time.Time   `json:"processed_at,omitempty"`
}

// Recognized gateway event types.
const (
	EventPaymentApproved  = "payment.approved"
	EventPaymentCancelled = "payment.cancelled"
)
