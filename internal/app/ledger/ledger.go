// Package ledger is the wallet ledger of the settlement core: the only
// component allowed to mutate an account's balance and reserved fields.
//
// Three operations exist. reserve earmarks client funds for an in-flight
// request, release settles reserved funds (provider payout or client
// refund), withdraw debits spendable balance for a payout request.
// Each has a standalone form that runs in its own transaction and an
// *In form for composition into a larger one (reserve+create-request,
// transition+release, …).
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/Leonel308/illustra-settlement/internal/domain"
	"github.com/Leonel308/illustra-settlement/internal/infra/observability"
	"github.com/Leonel308/illustra-settlement/internal/infra/sqlite"
)

// Service exposes the ledger operations.
type Service struct {
	db *sqlite.DB
}

// NewService creates the ledger service.
func NewService(db *sqlite.DB) *Service {
	return &Service{db: db}
}

// Reserve moves amount from accountID's balance into its reserved
// balance. Fails with domain.ErrInsufficientFunds when the spendable
// balance is too small.
func (s *Service) Reserve(ctx context.Context, accountID string, amount int64) error {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return s.ReserveIn(tx, accountID, amount)
	})
	return err
}

// ReserveIn is Reserve inside the caller's transaction.
func (s *Service) ReserveIn(tx *sql.Tx, accountID string, amount int64) error {
	err := s.db.ReserveTx(tx, accountID, amount)
	record("reserve", amount, err)
	return err
}

// Release settles amount of accountID's reserved balance. A non-empty
// destID credits the destination (provider payout); an empty destID
// refunds the source. Fails with domain.ErrInvariantViolation when the
// reserved balance would go negative. That is an abort, never a clamp.
func (s *Service) Release(ctx context.Context, accountID string, amount int64, destID string) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return s.ReleaseIn(tx, accountID, amount, destID)
	})
}

// ReleaseIn is Release inside the caller's transaction.
func (s *Service) ReleaseIn(tx *sql.Tx, accountID string, amount int64, destID string) error {
	err := s.db.ReleaseTx(tx, accountID, amount, destID)
	record("release", amount, err)
	if errors.Is(err, domain.ErrInvariantViolation) {
		slog.Error("ledger invariant violation, operator attention required",
			"account", accountID, "amount", amount, "dest", destID)
	}
	return err
}

// Withdraw debits accountID's spendable balance. Withdrawal requests
// are tracked in their own table, not as a reserved hold; a user can
// therefore race a withdrawal against a service request for the same
// funds, and whichever guarded update runs second fails cleanly.
func (s *Service) Withdraw(ctx context.Context, accountID string, amount int64) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return s.WithdrawIn(tx, accountID, amount)
	})
}

// WithdrawIn is Withdraw inside the caller's transaction.
func (s *Service) WithdrawIn(tx *sql.Tx, accountID string, amount int64) error {
	err := s.db.WithdrawTx(tx, accountID, amount)
	record("withdraw", amount, err)
	return err
}

// CreditIn restores amount to accountID's balance (withdrawal-deny
// path). Kept inside the ledger so balance writers stay in one place.
func (s *Service) CreditIn(tx *sql.Tx, accountID string, amount int64) error {
	err := s.db.CreditTx(tx, accountID, amount)
	record("credit", amount, err)
	return err
}

func record(op string, amount int64, err error) {
	outcome := "ok"
	switch {
	case err == nil:
		observability.AmountMoved.WithLabelValues(op).Add(float64(amount))
	case errors.Is(err, domain.ErrInsufficientFunds):
		outcome = "insufficient"
	case errors.Is(err, domain.ErrInvariantViolation):
		outcome = "invariant"
		observability.InvariantViolations.Inc()
	default:
		outcome = "error"
	}
	observability.LedgerOps.WithLabelValues(op, outcome).Inc()
}
