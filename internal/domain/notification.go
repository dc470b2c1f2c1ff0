package domain

import "time"

// ─── Notification Types ─────────────────────────────────────────────────────
// The settlement core only enqueues notifications; delivery is a
// fire-and-forget side effect owned by the dispatcher.

// NotificationStatus is the delivery state of a queued notification.
type NotificationStatus string

const (
	NotifyPending NotificationStatus = "pending"
	NotifySent    NotificationStatus = "sent"
	NotifyFailed  NotificationStatus = "failed"
)

// Notification is one queued user-facing message.
type Notification struct {
	ID        int64              `json:"id"`
	UserID    string             `json:"user_id"`
	Kind      string             `json:"kind"`
	Body      []byte             `json:"body"`
	Status    NotificationStatus `json:"status"`
	Attempts  int                `json:"attempts"`
	CreatedAt time.Time          `json:"created_at"`
}

// Notification kinds emitted by the settlement core.
const (
	NotifyRequestCreated    = "request.created"
	NotifyRequestDelivered  = "request.delivered"
	NotifyRequestCompleted  = "request.completed"
	NotifyRequestDenied     = "request.denied"
	NotifyRequestCancelled  = "request.cancelled"
	NotifyWithdrawalOutcome = "withdrawal.outcome"
	NotifyFundsReceived     = "funds.received"
)
