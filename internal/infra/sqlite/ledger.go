package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/Leonel308/illustra-settlement/internal/domain"
)

// ─── Ledger Primitives ──────────────────────────────────────────────────────
// The only writers of accounts.balance / accounts.reserved. Each is a
// guarded UPDATE: the WHERE clause re-checks the precondition at write
// time, so a concurrent mutation between read and write simply makes
// the statement match zero rows instead of corrupting a balance.
// Callers compose these inside a WithTx transaction.

// ReserveTx moves amount from balance to reserved.
// Fails with ErrInsufficientFunds when balance < amount.
func (db *DB) ReserveTx(tx *sql.Tx, accountID string, amount int64) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	res, err := tx.Exec(`
		UPDATE accounts
		SET balance = balance - ?, reserved = reserved + ?
		WHERE id = ? AND balance >= ?
	`, amount, amount, accountID, amount)
	if err != nil {
		return fmt.Errorf("reserve: %w", err)
	}
	return db.explainMiss(tx, res, accountID, domain.ErrInsufficientFunds)
}

// ReleaseTx settles reserved funds: decrements the source's reserved
// balance and credits destID's balance. An empty destID credits the
// source itself (refund path). Fails with ErrInvariantViolation when
// reserved would go negative, never clamps.
func (db *DB) ReleaseTx(tx *sql.Tx, accountID string, amount int64, destID string) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if destID == "" || destID == accountID {
		// Refund: reserved → own balance in one statement.
		res, err := tx.Exec(`
			UPDATE accounts
			SET reserved = reserved - ?, balance = balance + ?
			WHERE id = ? AND reserved >= ?
		`, amount, amount, accountID, amount)
		if err != nil {
			return fmt.Errorf("release refund: %w", err)
		}
		return db.explainMiss(tx, res, accountID, domain.ErrInvariantViolation)
	}

	res, err := tx.Exec(`
		UPDATE accounts
		SET reserved = reserved - ?
		WHERE id = ? AND reserved >= ?
	`, amount, accountID, amount)
	if err != nil {
		return fmt.Errorf("release: %w", err)
	}
	if err := db.explainMiss(tx, res, accountID, domain.ErrInvariantViolation); err != nil {
		return err
	}
	return db.CreditTx(tx, destID, amount)
}

// WithdrawTx debits balance without a reserved hold (withdrawal
// requests are tracked in their own table, not as a ledger hold).
func (db *DB) WithdrawTx(tx *sql.Tx, accountID string, amount int64) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	res, err := tx.Exec(`
		UPDATE accounts
		SET balance = balance - ?
		WHERE id = ? AND balance >= ?
	`, amount, accountID, amount)
	if err != nil {
		return fmt.Errorf("withdraw: %w", err)
	}
	return db.explainMiss(tx, res, accountID, domain.ErrInsufficientFunds)
}

// CreditTx adds funds to balance (payout destination, withdrawal-deny
// restore). Not reachable from outside the ledger service.
func (db *DB) CreditTx(tx *sql.Tx, accountID string, amount int64) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	res, err := tx.Exec(`
		UPDATE accounts SET balance = balance + ? WHERE id = ?
	`, amount, accountID)
	if err != nil {
		return fmt.Errorf("credit: %w", err)
	}
	return requireRow(res, domain.ErrAccountNotFound)
}

// explainMiss distinguishes "precondition failed" from "no such
// account" when a guarded UPDATE matched zero rows.
func (db *DB) explainMiss(tx *sql.Tx, res sql.Result, accountID string, precondition error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM accounts WHERE id = ?`, accountID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return domain.ErrAccountNotFound
	}
	return precondition
}

func validAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %d", amount)
	}
	return nil
}
