package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Leonel308/illustra-settlement/internal/domain"
)

// ─── Account Operations ─────────────────────────────────────────────────────

// CreateAccount inserts a fresh account with zero balances.
func (db *DB) CreateAccount(ctx context.Context, id, displayName string) (*domain.Account, error) {
	now := time.Now()
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO accounts (id, display_name, created_at)
		VALUES (?, ?, ?)
	`, id, displayName, fmtTime(now))
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return &domain.Account{ID: id, DisplayName: displayName, CreatedAt: now}, nil
}

// GetAccount loads an account by id.
func (db *DB) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return scanAccount(db.db.QueryRowContext(ctx, accountQuery+` WHERE id = ?`, id))
}

// GetAccountTx loads an account inside a transaction.
func (db *DB) GetAccountTx(tx *sql.Tx, id string) (*domain.Account, error) {
	return scanAccount(tx.QueryRow(accountQuery+` WHERE id = ?`, id))
}

const accountQuery = `
	SELECT id, display_name, balance, reserved, external_ref,
	       access_token, refresh_token, token_expires_at, created_at
	FROM accounts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var a domain.Account
	var extRef, accessToken, refreshToken, expiresAt, createdAt string
	err := row.Scan(&a.ID, &a.DisplayName, &a.Balance, &a.Reserved,
		&extRef, &accessToken, &refreshToken, &expiresAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	a.CreatedAt = parseTime(createdAt)
	if extRef != "" {
		a.External = &domain.ExternalLink{
			AccountRef:   extRef,
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresAt:    parseTime(expiresAt),
		}
	}
	return &a, nil
}

// SetPublishedPrice sets the provider's advertised commission price.
func (db *DB) SetPublishedPrice(ctx context.Context, accountID string, price int64) error {
	res, err := db.db.ExecContext(ctx,
		`UPDATE accounts SET published_price = ? WHERE id = ?`, price, accountID)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrAccountNotFound)
}

// PublishedPrice returns the provider's advertised price (0 if unset).
func (db *DB) PublishedPrice(ctx context.Context, accountID string) (int64, error) {
	var price int64
	err := db.db.QueryRowContext(ctx,
		`SELECT published_price FROM accounts WHERE id = ?`, accountID).Scan(&price)
	if err == sql.ErrNoRows {
		return 0, domain.ErrAccountNotFound
	}
	return price, err
}

// ─── Token Store (domain.TokenStore) ────────────────────────────────────────

// SaveExternalLink persists a rotated OAuth token pair. The previous
// pair stays on disk when this write fails, which is exactly what the
// refresh contract requires.
func (db *DB) SaveExternalLink(ctx context.Context, accountID string, link domain.ExternalLink) error {
	res, err := db.db.ExecContext(ctx, `
		UPDATE accounts
		SET external_ref = ?, access_token = ?, refresh_token = ?, token_expires_at = ?
		WHERE id = ?
	`, link.AccountRef, link.AccessToken, link.RefreshToken, fmtTime(link.ExpiresAt), accountID)
	if err != nil {
		return fmt.Errorf("save external link: %w", err)
	}
	return requireRow(res, domain.ErrAccountNotFound)
}

// ClearExternalLink removes the gateway linkage and stored tokens.
func (db *DB) ClearExternalLink(ctx context.Context, accountID string) error {
	res, err := db.db.ExecContext(ctx, `
		UPDATE accounts
		SET external_ref = '', access_token = '', refresh_token = '', token_expires_at = ''
		WHERE id = ?
	`, accountID)
	if err != nil {
		return fmt.Errorf("clear external link: %w", err)
	}
	return requireRow(res, domain.ErrAccountNotFound)
}

// requireRow maps "zero rows affected" to the given sentinel.
func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
