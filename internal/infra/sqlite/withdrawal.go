package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Leonel308/illustra-settlement/internal/domain"
)

// ─── Withdrawal Operations ──────────────────────────────────────────────────

// InsertWithdrawalTx persists a new payout request (paired with the
// balance debit in the same transaction).
func (db *DB) InsertWithdrawalTx(tx *sql.Tx, w *domain.WithdrawalRequest) error {
	_, err := tx.Exec(`
		INSERT INTO withdrawals (id, user_id, amount, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, w.ID, w.UserID, w.Amount, w.Status, fmtTime(w.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

// GetWithdrawal loads a live withdrawal request.
func (db *DB) GetWithdrawal(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	return scanWithdrawal(db.db.QueryRowContext(ctx, withdrawalQuery+` WHERE id = ?`, id))
}

// GetWithdrawalTx loads a live withdrawal request in a transaction.
func (db *DB) GetWithdrawalTx(tx *sql.Tx, id string) (*domain.WithdrawalRequest, error) {
	return scanWithdrawal(tx.QueryRow(withdrawalQuery+` WHERE id = ?`, id))
}

const withdrawalQuery = `
	SELECT id, user_id, amount, status, created_at FROM withdrawals`

func scanWithdrawal(row rowScanner) (*domain.WithdrawalRequest, error) {
	var w domain.WithdrawalRequest
	var createdAt string
	err := row.Scan(&w.ID, &w.UserID, &w.Amount, &w.Status, &createdAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, err
	}
	w.CreatedAt = parseTime(createdAt)
	return &w, nil
}

// CASWithdrawalStatusTx moves a withdrawal between review states with
// compare-and-swap semantics: the write only lands if the current
// status equals from. Of two concurrent approvals, exactly one claims
// the pending row; the loser gets ErrWithdrawalSettled.
func (db *DB) CASWithdrawalStatusTx(tx *sql.Tx, id string, from, to domain.WithdrawalStatus) error {
	res, err := tx.Exec(`
		UPDATE withdrawals SET status = ? WHERE id = ? AND status = ?
	`, to, id, from)
	if err != nil {
		return fmt.Errorf("cas withdrawal status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM withdrawals WHERE id = ?`, id).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return domain.ErrWithdrawalNotFound
		}
		return domain.ErrWithdrawalSettled
	}
	return nil
}

// ListWithdrawals returns withdrawal requests, optionally by status.
func (db *DB) ListWithdrawals(ctx context.Context, status domain.WithdrawalStatus) ([]domain.WithdrawalRequest, error) {
	query := withdrawalQuery
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}
	return result, rows.Err()
}

// ArchiveWithdrawalTx records the settled outcome and removes the live
// request, atomically with the caller's ledger/gateway effects. The
// delete is guarded on from, the live status the caller expects: an
// approval consumes its own approving claim, a denial only consumes an
// unclaimed pending row.
func (db *DB) ArchiveWithdrawalTx(tx *sql.Tx, w *domain.WithdrawalRequest, from, outcome domain.WithdrawalStatus, payoutAmount int64, gatewayTxnID string) error {
	_, err := tx.Exec(`
		INSERT INTO withdrawal_archive (id, user_id, amount, status, payout_amount, gateway_txn_id, created_at, settled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.UserID, w.Amount, outcome, payoutAmount, gatewayTxnID, fmtTime(w.CreatedAt), fmtTime(time.Now()))
	if err != nil {
		return fmt.Errorf("archive withdrawal: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM withdrawals WHERE id = ? AND status = ?`, w.ID, from)
	if err != nil {
		return err
	}
	// A concurrent approve/deny already consumed or claimed the request.
	return requireRow(res, domain.ErrWithdrawalSettled)
}
