package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Leonel308/illustra-settlement/internal/domain"
)

// ─── Payment Operations ─────────────────────────────────────────────────────

// InsertPaymentTx persists a new payment record.
func (db *DB) InsertPaymentTx(tx *sql.Tx, p *domain.Payment) error {
	var txnID any // NULL until the gateway confirms
	if p.GatewayTxnID != "" {
		txnID = p.GatewayTxnID
	}
	_, err := tx.Exec(`
		INSERT INTO payments (id, amount, payer_id, payee_id, method, status, gateway_txn_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Amount, p.PayerID, p.PayeeID, p.Method, p.Status, txnID, fmtTime(p.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return domain.ErrDuplicateTxnID
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetPayment loads a payment by id.
func (db *DB) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	return scanPayment(db.db.QueryRowContext(ctx, paymentQuery+` WHERE id = ?`, id))
}

// GetPaymentByTxnIDTx resolves a gateway transaction id to the local
// payment it funds. This is the webhook reconciliation lookup.
func (db *DB) GetPaymentByTxnIDTx(tx *sql.Tx, gatewayTxnID string) (*domain.Payment, error) {
	return scanPayment(tx.QueryRow(paymentQuery+` WHERE gateway_txn_id = ?`, gatewayTxnID))
}

const paymentQuery = `
	SELECT id, amount, payer_id, payee_id, method, status, gateway_txn_id, created_at
	FROM payments`

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var p domain.Payment
	var txnID sql.NullString
	var createdAt string
	err := row.Scan(&p.ID, &p.Amount, &p.PayerID, &p.PayeeID, &p.Method, &p.Status, &txnID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	p.GatewayTxnID = txnID.String
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// AdvancePaymentTx moves a payment's status forward with the same CAS
// discipline as request transitions: the write only lands from the
// expected source status.
func (db *DB) AdvancePaymentTx(tx *sql.Tx, id string, from, to domain.PaymentStatus, payeeID string) error {
	if !from.CanAdvance(to) {
		return domain.ErrInvalidTransition
	}
	res, err := tx.Exec(`
		UPDATE payments SET status = ?, payee_id = ? WHERE id = ? AND status = ?
	`, to, payeeID, id, from)
	if err != nil {
		return fmt.Errorf("advance payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM payments WHERE id = ?`, id).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return domain.ErrPaymentNotFound
		}
		return domain.ErrInvalidTransition
	}
	return nil
}
