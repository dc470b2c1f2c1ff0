package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Leonel308/illustra-settlement/internal/domain"
)

// ─── Webhook Inbox Operations ───────────────────────────────────────────────
// Store-then-process: the HTTP handler only inserts; the processor
// drains pending rows. Redeliveries collapse on the UNIQUE constraint.

// InsertWebhookEvent stores a received gateway notification. Returns
// false when an identical event was already stored (gateway retry).
func (db *DB) InsertWebhookEvent(ctx context.Context, eventType, gatewayTxnID string) (bool, error) {
	res, err := db.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO webhook_events (event_type, gateway_txn_id, received_at)
		VALUES (?, ?, ?)
	`, eventType, gatewayTxnID, fmtTime(time.Now()))
	if err != nil {
		return false, fmt.Errorf("insert webhook event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PendingWebhookEvents returns up to limit unprocessed events, oldest
// first.
func (db *DB) PendingWebhookEvents(ctx context.Context, limit int) ([]domain.WebhookEvent, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, event_type, gateway_txn_id, status, attempts, last_error, received_at
		FROM webhook_events
		WHERE status = ?
		ORDER BY received_at ASC
		LIMIT ?
	`, domain.InboxPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.WebhookEvent
	for rows.Next() {
		var e domain.WebhookEvent
		var receivedAt string
		if err := rows.Scan(&e.ID, &e.EventType, &e.GatewayTxnID, &e.Status,
			&e.Attempts, &e.LastError, &receivedAt); err != nil {
			return nil, err
		}
		e.ReceivedAt = parseTime(receivedAt)
		result = append(result, e)
	}
	return result, rows.Err()
}

// GetWebhookEvent loads one stored event.
func (db *DB) GetWebhookEvent(ctx context.Context, eventType, gatewayTxnID string) (*domain.WebhookEvent, error) {
	var e domain.WebhookEvent
	var receivedAt string
	var processedAt sql.NullString
	err := db.db.QueryRowContext(ctx, `
		SELECT id, event_type, gateway_txn_id, status, attempts, last_error, received_at, processed_at
		FROM webhook_events WHERE event_type = ? AND gateway_txn_id = ?
	`, eventType, gatewayTxnID).Scan(&e.ID, &e.EventType, &e.GatewayTxnID, &e.Status,
		&e.Attempts, &e.LastError, &receivedAt, &processedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("webhook event not found")
	}
	if err != nil {
		return nil, err
	}
	e.ReceivedAt = parseTime(receivedAt)
	if processedAt.Valid {
		e.ProcessedAt = parseTime(processedAt.String)
	}
	return &e, nil
}

// ResolveWebhookEventTx finishes an event: processed or rejected.
func (db *DB) ResolveWebhookEventTx(tx *sql.Tx, id int64, status domain.InboxStatus, lastError string) error {
	_, err := tx.Exec(`
		UPDATE webhook_events
		SET status = ?, last_error = ?, processed_at = ?, attempts = attempts + 1
		WHERE id = ?
	`, status, lastError, fmtTime(time.Now()), id)
	return err
}

// RecordWebhookAttempt notes a failed processing attempt, keeping the
// event pending for the next sweep.
func (db *DB) RecordWebhookAttempt(ctx context.Context, id int64, lastError string) error {
	// Cap stored error text; gateway bodies can be noisy.
	if len(lastError) > 500 {
		lastError = lastError[:500]
	}
	lastError = strings.ToValidUTF8(lastError, "")
	_, err := db.db.ExecContext(ctx, `
		UPDATE webhook_events SET attempts = attempts + 1, last_error = ? WHERE id = ?
	`, lastError, id)
	return err
}
