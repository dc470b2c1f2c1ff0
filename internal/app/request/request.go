// Package request implements the service-request state machine:
//
//	pending → delivered → completed
//	pending → denied
//	pending|delivered → cancelled
//
// Every transition is one transaction combining a compare-and-swap on
// the request's status with the ledger effects it implies, so a lost
// race costs nothing and a won race settles funds exactly once.
package request

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Leonel308/illustra-settlement/internal/app/ledger"
	"github.com/Leonel308/illustra-settlement/internal/domain"
	"github.com/Leonel308/illustra-settlement/internal/infra/observability"
	"github.com/Leonel308/illustra-settlement/internal/infra/sqlite"
)

// Service drives service requests through their lifecycle.
type Service struct {
	db       *sqlite.DB
	ledger   *ledger.Service
	gateway  domain.Gateway
	notifier domain.Notifier
}

// NewService creates the state machine service. gateway and notifier
// may be nil in tests that exercise wallet-only flows.
func NewService(db *sqlite.DB, lgr *ledger.Service, gw domain.Gateway, n domain.Notifier) *Service {
	return &Service{db: db, ledger: lgr, gateway: gw, notifier: n}
}

// Create reserves the client's funds and opens a pending request in a
// single transaction: either both the reservation and the request row
// commit, or neither does.
func (s *Service) Create(ctx context.Context, clientID, providerID string, price int64) (*domain.ServiceRequest, error) {
	if clientID == providerID {
		return nil, fmt.Errorf("client and provider must differ")
	}

	published, err := s.db.PublishedPrice(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if published > 0 && price != published {
		return nil, domain.ErrPriceMismatch
	}

	now := time.Now()
	payment := &domain.Payment{
		ID:        uuid.NewString(),
		Amount:    price,
		PayerID:   clientID,
		Method:    domain.MethodWallet,
		Status:    domain.PaymentPending,
		CreatedAt: now,
	}
	req := &domain.ServiceRequest{
		ID:          uuid.NewString(),
		ClientID:    clientID,
		ProviderID:  providerID,
		PriceAmount: price,
		Status:      domain.StatusPending,
		PaymentID:   payment.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.ledger.ReserveIn(tx, clientID, price); err != nil {
			return err
		}
		if err := s.db.InsertPaymentTx(tx, payment); err != nil {
			return err
		}
		return s.db.InsertRequestTx(tx, req)
	})
	if err != nil {
		return nil, err
	}

	observability.RequestTransitions.WithLabelValues(string(domain.StatusPending)).Inc()
	s.notify(ctx, providerID, domain.NotifyRequestCreated, req)
	return req, nil
}

// Deposit starts a gateway-funded wallet top-up: it registers a
// payment preference with the gateway and records a pending payment
// keyed by the preference id. The balance credit happens later, when
// the gateway's webhook confirms the money actually moved.
func (s *Service) Deposit(ctx context.Context, accountID string, amount int64) (*domain.Preference, error) {
	if s.gateway == nil {
		return nil, domain.ErrGatewayUnavailable
	}
	if _, err := s.db.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	pref, err := s.gateway.CreatePreference(ctx, amount, "wallet deposit", accountID)
	if err != nil {
		return nil, err
	}

	payment := &domain.Payment{
		ID:           uuid.NewString(),
		Amount:       amount,
		PayerID:      accountID,
		Method:       domain.MethodGateway,
		Status:       domain.PaymentPending,
		GatewayTxnID: pref.ID,
		CreatedAt:    time.Now(),
	}
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return s.db.InsertPaymentTx(tx, payment)
	})
	if err != nil {
		return nil, err
	}
	return pref, nil
}

// Deliver attaches the provider's artifacts and moves the request to
// delivered. No funds move.
func (s *Service) Deliver(ctx context.Context, requestID, providerID string, deliverables []string) error {
	req, err := s.authorize(ctx, requestID, providerID, false)
	if err != nil {
		return err
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.db.CASStatusTx(tx, requestID, domain.StatusPending, domain.StatusDelivered, ""); err != nil {
			return err
		}
		return s.db.SetDeliverablesTx(tx, requestID, deliverables)
	})
	if err != nil {
		return s.recordFailure(err)
	}

	observability.RequestTransitions.WithLabelValues(string(domain.StatusDelivered)).Inc()
	s.notify(ctx, req.ClientID, domain.NotifyRequestDelivered, req)
	return nil
}

// Accept is the only path that pays the provider: it settles the
// client's reserved funds into the provider's balance, marks the
// payment settled, and archives the request, all in one transaction.
func (s *Service) Accept(ctx context.Context, requestID, clientID string) error {
	req, err := s.authorize(ctx, requestID, clientID, true)
	if err != nil {
		return err
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		// CAS first: of two concurrent accepts exactly one passes this
		// line, so the release below runs exactly once.
		if err := s.db.CASStatusTx(tx, requestID, domain.StatusDelivered, domain.StatusCompleted, ""); err != nil {
			return err
		}
		if err := s.ledger.ReleaseIn(tx, req.ClientID, req.PriceAmount, req.ProviderID); err != nil {
			return err
		}
		if err := s.db.AdvancePaymentTx(tx, req.PaymentID, domain.PaymentPending, domain.PaymentSettled, req.ProviderID); err != nil {
			return err
		}
		fresh, err := s.db.GetRequestTx(tx, requestID)
		if err != nil {
			return err
		}
		return s.db.ArchiveRequestTx(tx, fresh)
	})
	if err != nil {
		return s.recordFailure(err)
	}

	observability.RequestTransitions.WithLabelValues(string(domain.StatusCompleted)).Inc()
	s.notify(ctx, req.ClientID, domain.NotifyRequestCompleted, req)
	s.notify(ctx, req.ProviderID, domain.NotifyFundsReceived, map[string]any{
		"request_id": req.ID, "amount": req.PriceAmount,
	})
	return nil
}

// Deny lets the provider decline a pending job before starting.
// The reservation flows back to the client.
func (s *Service) Deny(ctx context.Context, requestID, providerID, reason string) error {
	req, err := s.authorize(ctx, requestID, providerID, false)
	if err != nil {
		return err
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.db.CASStatusTx(tx, requestID, domain.StatusPending, domain.StatusDenied, reason); err != nil {
			return err
		}
		if err := s.ledger.ReleaseIn(tx, req.ClientID, req.PriceAmount, ""); err != nil {
			return err
		}
		return s.db.AdvancePaymentTx(tx, req.PaymentID, domain.PaymentPending, domain.PaymentCancelled, req.ClientID)
	})
	if err != nil {
		return s.recordFailure(err)
	}

	observability.RequestTransitions.WithLabelValues(string(domain.StatusDenied)).Inc()
	s.notify(ctx, req.ClientID, domain.NotifyRequestDenied, map[string]any{
		"request_id": req.ID, "reason": reason,
	})
	return nil
}

// Cancel refunds the client from pending or delivered. When the funding
// payment went through the gateway, the gateway-side cancellation must
// be acknowledged before the local refund; a late gateway settlement
// after a refund would credit the provider for work already refunded.
func (s *Service) Cancel(ctx context.Context, requestID, providerID, reason string) error {
	req, err := s.authorize(ctx, requestID, providerID, false)
	if err != nil {
		return err
	}
	if !domain.CanTransition(req.Status, domain.StatusCancelled) {
		return s.recordFailure(domain.ErrInvalidTransition)
	}

	payment, err := s.db.GetPayment(ctx, req.PaymentID)
	if err != nil {
		return err
	}
	if payment.Method == domain.MethodGateway && payment.GatewayTxnID != "" {
		if s.gateway == nil {
			return domain.ErrGatewayUnavailable
		}
		if err := s.gateway.CancelPayment(ctx, payment.GatewayTxnID); err != nil {
			return fmt.Errorf("gateway-side cancel must precede refund: %w", err)
		}
	}

	from := req.Status
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.db.CASStatusTx(tx, requestID, from, domain.StatusCancelled, reason); err != nil {
			return err
		}
		if err := s.ledger.ReleaseIn(tx, req.ClientID, req.PriceAmount, ""); err != nil {
			return err
		}
		return s.db.AdvancePaymentTx(tx, req.PaymentID, domain.PaymentPending, domain.PaymentCancelled, req.ClientID)
	})
	if err != nil {
		return s.recordFailure(err)
	}

	observability.RequestTransitions.WithLabelValues(string(domain.StatusCancelled)).Inc()
	s.notify(ctx, req.ClientID, domain.NotifyRequestCancelled, map[string]any{
		"request_id": req.ID, "reason": reason,
	})
	return nil
}

// Get returns a live request.
func (s *Service) Get(ctx context.Context, requestID string) (*domain.ServiceRequest, error) {
	return s.db.GetRequest(ctx, requestID)
}

// List returns one side's view through the workflow indices.
func (s *Service) List(ctx context.Context, role, accountID string, status domain.RequestStatus) ([]domain.ServiceRequest, error) {
	return s.db.ListRequests(ctx, role, accountID, status)
}

// authorize loads the request and checks the actor is the right
// participant. asClient selects which side may act.
func (s *Service) authorize(ctx context.Context, requestID, actorID string, asClient bool) (*domain.ServiceRequest, error) {
	req, err := s.db.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if asClient && req.ClientID != actorID {
		return nil, domain.ErrForbidden
	}
	if !asClient && req.ProviderID != actorID {
		return nil, domain.ErrForbidden
	}
	return req, nil
}

func (s *Service) recordFailure(err error) error {
	if errors.Is(err, domain.ErrInvalidTransition) {
		observability.InvalidTransitions.Inc()
	}
	return err
}

// notify enqueues fire-and-forget; a nil notifier is a no-op.
func (s *Service) notify(ctx context.Context, userID, kind string, payload any) {
	if s.notifier == nil {
		return
	}
	s.notifier.Enqueue(ctx, userID, kind, payload)
	slog.Debug("notification enqueued", "user", userID, "kind", kind)
}
