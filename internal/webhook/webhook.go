// Package webhook reconciles gateway payment notifications with the
// local settlement state. Ingestion only stores the event (the HTTP
// handler always acknowledges); a processor goroutine drains the inbox
// and applies the ledger and state effects in one transaction per
// event. Replaying an event N times leaves the same state as once.
package webhook

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Leonel308/illustra-settlement/internal/app/ledger"
	"github.com/Leonel308/illustra-settlement/internal/domain"
	"github.com/Leonel308/illustra-settlement/internal/infra/observability"
	"github.com/Leonel308/illustra-settlement/internal/infra/sqlite"
)

// Processor drains the webhook inbox.
type Processor struct {
	db        *sqlite.DB
	ledger    *ledger.Service
	notifier  domain.Notifier
	interval  time.Duration
	batchSize int
}

// NewProcessor creates the inbox processor. notifier may be nil.
func NewProcessor(db *sqlite.DB, lgr *ledger.Service, n domain.Notifier, interval time.Duration) *Processor {
	return &Processor{db: db, ledger: lgr, notifier: n, interval: interval, batchSize: 50}
}

// Ingest stores a received gateway notification. Duplicates collapse
// silently; unrecognized shapes are an error for the caller to log,
// never to bounce back to the gateway.
func (p *Processor) Ingest(ctx context.Context, eventType, gatewayTxnID string) error {
	switch eventType {
	case domain.EventPaymentApproved, domain.EventPaymentCancelled:
	default:
		observability.WebhookEvents.WithLabelValues("rejected").Inc()
		return fmt.Errorf("unrecognized event type %q", eventType)
	}
	if gatewayTxnID == "" {
		observability.WebhookEvents.WithLabelValues("rejected").Inc()
		return fmt.Errorf("event %s carries no transaction id", eventType)
	}

	inserted, err := p.db.InsertWebhookEvent(ctx, eventType, gatewayTxnID)
	if err != nil {
		return err
	}
	if !inserted {
		slog.Debug("webhook redelivery collapsed", "type", eventType, "txn", gatewayTxnID)
	}
	return nil
}

// Run sweeps the inbox on the configured interval until ctx is done.
func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep processes one batch of pending events.
func (p *Processor) Sweep(ctx context.Context) {
	pending, err := p.db.PendingWebhookEvents(ctx, p.batchSize)
	if err != nil {
		slog.Error("webhook sweep failed", "err", err)
		return
	}
	observability.WebhookBacklog.Set(float64(len(pending)))
	for _, e := range pending {
		p.process(ctx, e)
	}
}

// resolution is the decided fate of one event.
type resolution struct {
	status    domain.InboxStatus
	note      string
	duplicate bool

	// set when the event must stay pending for a later sweep
	retry bool

	// deferred notification, sent only after the commit
	notifyUser string
	notifyKind string
	payload    any
}

// errRetryLater aborts the transaction without resolving the event.
var errRetryLater = errors.New("event not processable yet")

func (p *Processor) process(ctx context.Context, e domain.WebhookEvent) {
	var res resolution
	err := p.db.WithTx(ctx, func(tx *sql.Tx) error {
		r, err := p.apply(tx, e)
		if err != nil {
			return err
		}
		res = r
		if r.retry {
			return errRetryLater
		}
		return p.db.ResolveWebhookEventTx(tx, e.ID, r.status, r.note)
	})

	switch {
	case err == nil:
		outcome := string(res.status)
		if res.duplicate {
			outcome = "duplicate"
		}
		observability.WebhookEvents.WithLabelValues(outcome).Inc()
		if res.status == domain.InboxRejected {
			slog.Warn("webhook event rejected, manual reconciliation needed",
				"type", e.EventType, "txn", e.GatewayTxnID, "note", res.note)
		}
		if res.notifyUser != "" && p.notifier != nil {
			p.notifier.Enqueue(ctx, res.notifyUser, res.notifyKind, res.payload)
		}
	case errors.Is(err, errRetryLater):
		observability.WebhookEvents.WithLabelValues("retry").Inc()
		if recErr := p.db.RecordWebhookAttempt(ctx, e.ID, res.note); recErr != nil {
			slog.Error("webhook attempt record failed", "id", e.ID, "err", recErr)
		}
	default:
		observability.WebhookEvents.WithLabelValues("retry").Inc()
		slog.Error("webhook processing failed", "id", e.ID, "txn", e.GatewayTxnID, "err", err)
		if recErr := p.db.RecordWebhookAttempt(ctx, e.ID, err.Error()); recErr != nil {
			slog.Error("webhook attempt record failed", "id", e.ID, "err", recErr)
		}
	}
}

func (p *Processor) apply(tx *sql.Tx, e domain.WebhookEvent) (resolution, error) {
	payment, err := p.db.GetPaymentByTxnIDTx(tx, e.GatewayTxnID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		return resolution{status: domain.InboxRejected, note: "unknown gateway transaction id"}, nil
	}
	if err != nil {
		return resolution{}, err
	}

	switch e.EventType {
	case domain.EventPaymentApproved:
		return p.applyApproved(tx, payment)
	case domain.EventPaymentCancelled:
		return p.applyCancelled(tx, payment)
	}
	return resolution{status: domain.InboxRejected, note: "unsupported event type"}, nil
}

// applyApproved settles a gateway payment. For a wallet top-up the
// payer's balance is credited; for a request-funding payment the same
// effects as an accept land: reserved funds release to the provider
// and the request completes.
func (p *Processor) applyApproved(tx *sql.Tx, payment *domain.Payment) (resolution, error) {
	switch payment.Status {
	case domain.PaymentSettled:
		return resolution{status: domain.InboxProcessed, note: "already settled", duplicate: true}, nil
	case domain.PaymentCancelled:
		return resolution{status: domain.InboxRejected, note: "settlement for a cancelled payment"}, nil
	}

	req, err := p.db.GetRequestByPaymentTx(tx, payment.ID)
	if errors.Is(err, domain.ErrRequestNotFound) {
		// Wallet top-up: the money arrived, credit it.
		if err := p.ledger.CreditIn(tx, payment.PayerID, payment.Amount); err != nil {
			return resolution{}, err
		}
		if err := p.db.AdvancePaymentTx(tx, payment.ID, domain.PaymentPending, domain.PaymentSettled, payment.PayerID); err != nil {
			return resolution{}, err
		}
		return resolution{
			status:     domain.InboxProcessed,
			notifyUser: payment.PayerID,
			notifyKind: domain.NotifyFundsReceived,
			payload:    map[string]any{"amount": payment.Amount},
		}, nil
	}
	if err != nil {
		return resolution{}, err
	}

	if req.Status != domain.StatusDelivered {
		// The money is confirmed but the work is not: hold the event
		// until the provider delivers, then settle on a later sweep.
		return resolution{retry: true, note: "request not yet delivered"}, nil
	}

	if err := p.db.CASStatusTx(tx, req.ID, domain.StatusDelivered, domain.StatusCompleted, ""); err != nil {
		return resolution{}, err
	}
	if err := p.ledger.ReleaseIn(tx, req.ClientID, req.PriceAmount, req.ProviderID); err != nil {
		return resolution{}, err
	}
	if err := p.db.AdvancePaymentTx(tx, payment.ID, domain.PaymentPending, domain.PaymentSettled, req.ProviderID); err != nil {
		return resolution{}, err
	}
	fresh, err := p.db.GetRequestTx(tx, req.ID)
	if err != nil {
		return resolution{}, err
	}
	if err := p.db.ArchiveRequestTx(tx, fresh); err != nil {
		return resolution{}, err
	}
	observability.RequestTransitions.WithLabelValues(string(domain.StatusCompleted)).Inc()
	return resolution{
		status:     domain.InboxProcessed,
		notifyUser: req.ProviderID,
		notifyKind: domain.NotifyFundsReceived,
		payload:    map[string]any{"request_id": req.ID, "amount": req.PriceAmount},
	}, nil
}

// applyCancelled voids a gateway payment. A cancelled top-up never
// credited anything, so only the payment record moves; a cancelled
// request-funding payment refunds the client's reservation and cancels
// the request.
func (p *Processor) applyCancelled(tx *sql.Tx, payment *domain.Payment) (resolution, error) {
	switch payment.Status {
	case domain.PaymentCancelled:
		return resolution{status: domain.InboxProcessed, note: "already cancelled", duplicate: true}, nil
	case domain.PaymentSettled:
		return resolution{status: domain.InboxRejected, note: "cancellation after settlement"}, nil
	}

	req, err := p.db.GetRequestByPaymentTx(tx, payment.ID)
	if errors.Is(err, domain.ErrRequestNotFound) {
		if err := p.db.AdvancePaymentTx(tx, payment.ID, domain.PaymentPending, domain.PaymentCancelled, ""); err != nil {
			return resolution{}, err
		}
		return resolution{status: domain.InboxProcessed}, nil
	}
	if err != nil {
		return resolution{}, err
	}

	if err := p.db.CASStatusTx(tx, req.ID, req.Status, domain.StatusCancelled, "payment cancelled at the gateway"); err != nil {
		return resolution{}, err
	}
	if err := p.ledger.ReleaseIn(tx, req.ClientID, req.PriceAmount, ""); err != nil {
		return resolution{}, err
	}
	if err := p.db.AdvancePaymentTx(tx, payment.ID, domain.PaymentPending, domain.PaymentCancelled, req.ClientID); err != nil {
		return resolution{}, err
	}
	observability.RequestTransitions.WithLabelValues(string(domain.StatusCancelled)).Inc()
	return resolution{
		status:     domain.InboxProcessed,
		notifyUser: req.ClientID,
		notifyKind: domain.NotifyRequestCancelled,
		payload:    map[string]any{"request_id": req.ID, "reason": "payment cancelled at the gateway"},
	}, nil
}
