package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Leonel308/illustra-settlement/internal/domain"
)

// ─── Service Request Operations ─────────────────────────────────────────────

// InsertRequestTx persists a new service request inside a transaction
// (paired with the funds reservation; the two never commit apart).
func (db *DB) InsertRequestTx(tx *sql.Tx, r *domain.ServiceRequest) error {
	deliverables, err := json.Marshal(r.Deliverables)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT INTO service_requests
			(id, client_id, provider_id, price_amount, status, reason, deliverables, payment_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.ClientID, r.ProviderID, r.PriceAmount, r.Status, r.Reason,
		string(deliverables), r.PaymentID, fmtTime(r.CreatedAt), fmtTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// GetRequest loads a live service request.
func (db *DB) GetRequest(ctx context.Context, id string) (*domain.ServiceRequest, error) {
	return scanRequest(db.db.QueryRowContext(ctx, requestQuery+` WHERE id = ?`, id))
}

// GetRequestTx loads a live service request inside a transaction.
func (db *DB) GetRequestTx(tx *sql.Tx, id string) (*domain.ServiceRequest, error) {
	return scanRequest(tx.QueryRow(requestQuery+` WHERE id = ?`, id))
}

// GetRequestByPaymentTx resolves the live request funded by a payment.
// Used by webhook reconciliation to find what a settlement is for.
func (db *DB) GetRequestByPaymentTx(tx *sql.Tx, paymentID string) (*domain.ServiceRequest, error) {
	return scanRequest(tx.QueryRow(requestQuery+` WHERE payment_id = ?`, paymentID))
}

const requestQuery = `
	SELECT id, client_id, provider_id, price_amount, status, reason,
	       deliverables, payment_id, created_at, updated_at
	FROM service_requests`

func scanRequest(row rowScanner) (*domain.ServiceRequest, error) {
	var r domain.ServiceRequest
	var deliverables, createdAt, updatedAt string
	err := row.Scan(&r.ID, &r.ClientID, &r.ProviderID, &r.PriceAmount, &r.Status,
		&r.Reason, &deliverables, &r.PaymentID, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(deliverables), &r.Deliverables); err != nil {
		return nil, fmt.Errorf("decode deliverables: %w", err)
	}
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

// CASStatusTx transitions a request's status with compare-and-swap
// semantics: the write only lands if the current status equals from.
// Returns ErrInvalidTransition (and touches nothing) otherwise.
func (db *DB) CASStatusTx(tx *sql.Tx, id string, from, to domain.RequestStatus, reason string) error {
	res, err := tx.Exec(`
		UPDATE service_requests
		SET status = ?, reason = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, to, reason, fmtTime(time.Now()), id, from)
	if err != nil {
		return fmt.Errorf("cas status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either the request is gone or someone else won the race.
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM service_requests WHERE id = ?`, id).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return domain.ErrRequestNotFound
		}
		return domain.ErrInvalidTransition
	}
	return nil
}

// SetDeliverablesTx attaches delivered artifact references.
func (db *DB) SetDeliverablesTx(tx *sql.Tx, id string, refs []string) error {
	data, err := json.Marshal(refs)
	if err != nil {
		return err
	}
	res, err := tx.Exec(`
		UPDATE service_requests SET deliverables = ?, updated_at = ? WHERE id = ?
	`, string(data), fmtTime(time.Now()), id)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrRequestNotFound)
}

// ArchiveRequestTx moves a terminal-success request into the
// completed-records store and deletes it from the live table, all in
// the caller's transaction.
func (db *DB) ArchiveRequestTx(tx *sql.Tx, r *domain.ServiceRequest) error {
	deliverables, err := json.Marshal(r.Deliverables)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT INTO completed_requests
			(id, client_id, provider_id, price_amount, reason, deliverables, payment_id, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.ClientID, r.ProviderID, r.PriceAmount, r.Reason,
		string(deliverables), r.PaymentID, fmtTime(r.CreatedAt), fmtTime(time.Now()))
	if err != nil {
		return fmt.Errorf("archive request: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM service_requests WHERE id = ?`, r.ID); err != nil {
		return fmt.Errorf("remove live request: %w", err)
	}
	return nil
}

// GetCompletedRequest loads an archived request.
func (db *DB) GetCompletedRequest(ctx context.Context, id string) (*domain.ServiceRequest, error) {
	var r domain.ServiceRequest
	var deliverables, createdAt, completedAt string
	err := db.db.QueryRowContext(ctx, `
		SELECT id, client_id, provider_id, price_amount, reason, deliverables, payment_id, created_at, completed_at
		FROM completed_requests WHERE id = ?
	`, id).Scan(&r.ID, &r.ClientID, &r.ProviderID, &r.PriceAmount, &r.Reason,
		&deliverables, &r.PaymentID, &createdAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(deliverables), &r.Deliverables); err != nil {
		return nil, err
	}
	r.Status = domain.StatusCompleted
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(completedAt)
	return &r, nil
}

// ListRequests returns live requests for one side of the marketplace,
// optionally filtered by status. role is "client" or "provider".
func (db *DB) ListRequests(ctx context.Context, role, accountID string, status domain.RequestStatus) ([]domain.ServiceRequest, error) {
	column := "client_id"
	if role == "provider" {
		column = "provider_id"
	}
	query := requestQuery + ` WHERE ` + column + ` = ?`
	args := []any{accountID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ServiceRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}
