// Package withdrawal implements the payout approval workflow. A user
// asks to withdraw, the amount leaves their spendable balance at once,
// and an operator later approves (gateway payout minus commission) or
// denies (balance restored).
package withdrawal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Leonel308/illustra-settlement/internal/app/ledger"
	"github.com/Leonel308/illustra-settlement/internal/domain"
	"github.com/Leonel308/illustra-settlement/internal/infra/observability"
	"github.com/Leonel308/illustra-settlement/internal/infra/sqlite"
)

// Service drives the withdrawal workflow.
type Service struct {
	db         *sqlite.DB
	ledger     *ledger.Service
	gateway    domain.Gateway
	notifier   domain.Notifier
	feePercent decimal.Decimal
}

// NewService creates the withdrawal service. feePercent is the platform
// commission in percent, e.g. "2.5".
func NewService(db *sqlite.DB, lgr *ledger.Service, gw domain.Gateway, n domain.Notifier, feePercent decimal.Decimal) *Service {
	return &Service{db: db, ledger: lgr, gateway: gw, notifier: n, feePercent: feePercent}
}

// Request debits the user's balance and records the pending payout
// request in one transaction. The debit is immediate so the funds
// cannot be double-spent into a service request while review is
// pending; it is not a reserved hold.
func (s *Service) Request(ctx context.Context, userID string, amount int64) (*domain.WithdrawalRequest, error) {
	w := &domain.WithdrawalRequest{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Status:    domain.WithdrawalPending,
		CreatedAt: time.Now(),
	}
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.ledger.WithdrawIn(tx, userID, amount); err != nil {
			return err
		}
		return s.db.InsertWithdrawalTx(tx, w)
	})
	if err != nil {
		return nil, err
	}
	observability.WithdrawalOutcomes.WithLabelValues("requested").Inc()
	return w, nil
}

// Approve pays the user out through the gateway, minus the platform
// commission, then archives the request. The request is claimed before
// the gateway is touched, so concurrent approvals (or a concurrent
// deny) cannot race the payout. A gateway failure releases the claim
// and leaves the request pending for a later retry; the balance debit
// stands either way, so no retry can pay twice.
func (s *Service) Approve(ctx context.Context, withdrawalID string) error {
	// Claim first: of two concurrent approvals exactly one passes this
	// CAS, so at most one payout is ever issued for the request.
	var w *domain.WithdrawalRequest
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		w, err = s.db.GetWithdrawalTx(tx, withdrawalID)
		if err != nil {
			return err
		}
		return s.db.CASWithdrawalStatusTx(tx, withdrawalID,
			domain.WithdrawalPending, domain.WithdrawalApproving)
	})
	if err != nil {
		return err
	}

	account, err := s.db.GetAccount(ctx, w.UserID)
	if err != nil {
		return s.unclaim(ctx, w.ID, err)
	}
	if !account.Linked() {
		return s.unclaim(ctx, w.ID, domain.ErrNotLinked)
	}

	payout := s.payoutAmount(w.Amount)
	result, err := s.gateway.CreatePayout(ctx, account, payout, w.ID)
	if err != nil {
		observability.WithdrawalOutcomes.WithLabelValues("gateway_failed").Inc()
		slog.Error("withdrawal payout failed, request stays pending",
			"withdrawal", w.ID, "user", w.UserID, "err", err)
		return s.unclaim(ctx, w.ID, fmt.Errorf("payout for withdrawal %s: %w", w.ID, err))
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return s.db.ArchiveWithdrawalTx(tx, w,
			domain.WithdrawalApproving, domain.WithdrawalApproved, payout, result.GatewayTxnID)
	})
	if err != nil {
		return err
	}

	observability.WithdrawalOutcomes.WithLabelValues("approved").Inc()
	s.notify(ctx, w.UserID, map[string]any{
		"withdrawal_id": w.ID, "outcome": domain.WithdrawalApproved, "payout_amount": payout,
	})
	return nil
}

// unclaim releases an approval claim so the request is reviewable
// again, then returns cause. If the release itself fails the row stays
// claimed for operator attention rather than risking a second payout.
func (s *Service) unclaim(ctx context.Context, withdrawalID string, cause error) error {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return s.db.CASWithdrawalStatusTx(tx, withdrawalID,
			domain.WithdrawalApproving, domain.WithdrawalPending)
	})
	if err != nil {
		slog.Error("withdrawal claim stuck, operator attention required",
			"withdrawal", withdrawalID, "err", err)
	}
	return cause
}

// Deny restores the debited amount to the user's balance and archives
// the request, both in one transaction. The guarded archive only
// consumes an unclaimed pending row, so a deny cannot restore balance
// while an approval's payout is in flight.
func (s *Service) Deny(ctx context.Context, withdrawalID string) error {
	w, err := s.db.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		return err
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.ledger.CreditIn(tx, w.UserID, w.Amount); err != nil {
			return err
		}
		return s.db.ArchiveWithdrawalTx(tx, w,
			domain.WithdrawalPending, domain.WithdrawalDenied, 0, "")
	})
	if err != nil {
		return err
	}

	observability.WithdrawalOutcomes.WithLabelValues("denied").Inc()
	s.notify(ctx, w.UserID, map[string]any{
		"withdrawal_id": w.ID, "outcome": domain.WithdrawalDenied,
	})
	return nil
}

// Pending lists the requests awaiting operator review.
func (s *Service) Pending(ctx context.Context) ([]domain.WithdrawalRequest, error) {
	return s.db.ListWithdrawals(ctx, domain.WithdrawalPending)
}

// payoutAmount applies the commission: amount minus feePercent of it,
// fee rounded half-up to whole minor units so fractional cents always
// favor the platform side deterministically.
func (s *Service) payoutAmount(amount int64) int64 {
	fee := decimal.NewFromInt(amount).
		Mul(s.feePercent).
		Div(decimal.NewFromInt(100)).
		Round(0)
	return amount - fee.IntPart()
}

func (s *Service) notify(ctx context.Context, userID string, payload any) {
	if s.notifier == nil {
		return
	}
	s.notifier.Enqueue(ctx, userID, domain.NotifyWithdrawalOutcome, payload)
}
