package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/Leonel308/illustra-settlement/internal/domain"
)

// ─── Notification Queue Operations ──────────────────────────────────────────

// InsertNotification queues a user-facing message.
func (db *DB) InsertNotification(ctx context.Context, userID, kind string, body []byte) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, kind, body, created_at)
		VALUES (?, ?, ?, ?)
	`, userID, kind, body, fmtTime(time.Now()))
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// PendingNotifications returns up to limit undelivered notifications.
func (db *DB) PendingNotifications(ctx context.Context, limit int) ([]domain.Notification, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, user_id, kind, body, status, attempts, created_at
		FROM notifications
		WHERE status = ?
		ORDER BY created_at ASC
		LIMIT ?
	`, domain.NotifyPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var createdAt string
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Body, &n.Status, &n.Attempts, &createdAt); err != nil {
			return nil, err
		}
		n.CreatedAt = parseTime(createdAt)
		result = append(result, n)
	}
	return result, rows.Err()
}

// MarkNotification updates a notification's delivery state.
func (db *DB) MarkNotification(ctx context.Context, id int64, status domain.NotificationStatus) error {
	_, err := db.db.ExecContext(ctx, `
		UPDATE notifications SET status = ?, attempts = attempts + 1 WHERE id = ?
	`, status, id)
	return err
}
