package domain

import "time"

// ─── Service Request State Machine ──────────────────────────────────────────
// pending → delivered → completed, with side branches
// pending → denied and pending|delivered → cancelled.
// completed, denied and cancelled are terminal.

// RequestStatus is the lifecycle state of a commissioned service request.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusDelivered RequestStatus = "delivered"
	StatusCompleted RequestStatus = "completed"
	StatusDenied    RequestStatus = "denied"
	StatusCancelled RequestStatus = "cancelled"
)

// Terminal reports whether no further transitions are legal.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusDenied, StatusCancelled:
		return true
	}
	return false
}

// transitions is the full legal transition table. Anything absent here
// fails with ErrInvalidTransition and must not touch the ledger.
var transitions = map[RequestStatus][]RequestStatus{
	StatusPending:   {StatusDelivered, StatusDenied, StatusCancelled},
	StatusDelivered: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether from → to is a legal transition.
func CanTransition(from, to RequestStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ServiceRequest is the single authoritative record of one commissioned
// transaction. Workflow queries go through the (client_id, status) and
// (provider_id, status) indices rather than per-party copies, so the two
// participants can never observe diverging status or price.
type ServiceRequest struct {
	ID           string        `json:"id"`
	ClientID     string        `json:"client_id"`
	ProviderID   string        `json:"provider_id"`
	PriceAmount  int64         `json:"price_amount"` // immutable after creation
	Status       RequestStatus `json:"status"`
	Reason       string        `json:"reason,omitempty"` // set on deny/cancel
	Deliverables []string      `json:"deliverables,omitempty"`
	PaymentID    string        `json:"payment_id"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
