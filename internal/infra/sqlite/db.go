// Package sqlite is the persistence layer of the settlement core.
// A single SQLite database holds accounts, service requests, payments,
// withdrawals, the webhook inbox, and the notification queue.
//
// Every money-moving operation runs inside one immediate transaction, so
// per-entity serialization falls out of SQLite's single-writer model and
// guarded UPDATEs make read-then-write races harmless.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the settlement database.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the settlement database inside dir and applies
// all migrations.
func Open(dir string) (*DB, error) {
	path := filepath.Join(dir, "settlement.db")
	dsn := fmt.Sprintf(
		"file:%s?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
		path,
	)

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer connection keeps transactions strictly serialized.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{db: sqlDB}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the underlying database.
func (db *DB) Close() error { return db.db.Close() }

// WithTx runs fn inside a transaction. Rollback on error, commit
// otherwise. The transaction is the unit every settlement operation is
// built on: reserve+create, CAS transition+release, approve+archive.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// migrate applies the schema. Each string is a single SQL statement
// (SQLite executes one at a time).
func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(40, len(stmt))], err)
		}
	}
	return nil
}

// Migrations returns the schema migration statements.
func Migrations() []string {
	return []string{
		// Wallet accounts. balance/reserved are minor units; the CHECK
		// constraints are the last line of defense behind the guarded
		// UPDATEs in ledger.go.
		`CREATE TABLE IF NOT EXISTS accounts (
			id               TEXT PRIMARY KEY,
			display_name     TEXT NOT NULL,
			balance          INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
			reserved         INTEGER NOT NULL DEFAULT 0 CHECK (reserved >= 0),
			published_price  INTEGER NOT NULL DEFAULT 0,
			external_ref     TEXT NOT NULL DEFAULT '',
			access_token     TEXT NOT NULL DEFAULT '',
			refresh_token    TEXT NOT NULL DEFAULT '',
			token_expires_at TEXT NOT NULL DEFAULT '',
			created_at       TEXT NOT NULL
		)`,

		// Single authoritative service request record; both participants
		// read it through the two composite indices below.
		`CREATE TABLE IF NOT EXISTS service_requests (
			id           TEXT PRIMARY KEY,
			client_id    TEXT NOT NULL,
			provider_id  TEXT NOT NULL,
			price_amount INTEGER NOT NULL,
			status       TEXT NOT NULL,
			reason       TEXT NOT NULL DEFAULT '',
			deliverables TEXT NOT NULL DEFAULT '[]',
			payment_id   TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_client ON service_requests(client_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_provider ON service_requests(provider_id, status)`,

		// Completed-records store. Terminal-success requests move here
		// and leave the live table in the same transaction.
		`CREATE TABLE IF NOT EXISTS completed_requests (
			id           TEXT PRIMARY KEY,
			client_id    TEXT NOT NULL,
			provider_id  TEXT NOT NULL,
			price_amount INTEGER NOT NULL,
			reason       TEXT NOT NULL DEFAULT '',
			deliverables TEXT NOT NULL DEFAULT '[]',
			payment_id   TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			completed_at TEXT NOT NULL
		)`,

		// One payment per reservation-of-funds event. gateway_txn_id is
		// unique once set; webhook reconciliation keys on it.
		`CREATE TABLE IF NOT EXISTS payments (
			id             TEXT PRIMARY KEY,
			amount         INTEGER NOT NULL,
			payer_id       TEXT NOT NULL,
			payee_id       TEXT NOT NULL DEFAULT '',
			method         TEXT NOT NULL,
			status         TEXT NOT NULL,
			gateway_txn_id TEXT,
			created_at     TEXT NOT NULL,
			UNIQUE(gateway_txn_id)
		)`,

		// Withdrawal requests awaiting operator review.
		`CREATE TABLE IF NOT EXISTS withdrawals (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			amount     INTEGER NOT NULL,
			status     TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_withdrawals_status ON withdrawals(status)`,

		// Settled withdrawals archive.
		`CREATE TABLE IF NOT EXISTS withdrawal_archive (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL,
			amount         INTEGER NOT NULL,
			status         TEXT NOT NULL,
			payout_amount  INTEGER NOT NULL DEFAULT 0,
			gateway_txn_id TEXT NOT NULL DEFAULT '',
			created_at     TEXT NOT NULL,
			settled_at     TEXT NOT NULL
		)`,

		// Webhook inbox: store-then-process. The UNIQUE constraint
		// collapses gateway redeliveries at insert time.
		`CREATE TABLE IF NOT EXISTS webhook_events (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type     TEXT NOT NULL,
			gateway_txn_id TEXT NOT NULL,
			status         TEXT NOT NULL DEFAULT 'pending',
			attempts       INTEGER NOT NULL DEFAULT 0,
			last_error     TEXT NOT NULL DEFAULT '',
			received_at    TEXT NOT NULL,
			processed_at   TEXT,
			UNIQUE(event_type, gateway_txn_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_webhook_pending ON webhook_events(status, received_at)`,

		// Notification queue drained by the dispatcher.
		`CREATE TABLE IF NOT EXISTS notifications (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL,
			kind       TEXT NOT NULL,
			body       BLOB NOT NULL,
			status     TEXT NOT NULL DEFAULT 'pending',
			attempts   INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_pending ON notifications(status, created_at)`,
	}
}

// ─── Time Helpers ───────────────────────────────────────────────────────────

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
