// Package notify is the notification sink of the settlement core.
// Services enqueue; a background dispatcher delivers. Delivery is
// strictly fire-and-forget: nothing here can fail a settlement.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Leonel308/illustra-settlement/internal/domain"
	"github.com/Leonel308/illustra-settlement/internal/infra/observability"
	"github.com/Leonel308/illustra-settlement/internal/infra/sqlite"
)

// Queue implements domain.Notifier on the sqlite-backed queue.
type Queue struct {
	db *sqlite.DB
}

// NewQueue creates the queue.
func NewQueue(db *sqlite.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue stores a notification for later delivery. Errors are logged
// and swallowed: a full queue must never abort the settlement that
// triggered the message.
func (q *Queue) Enqueue(ctx context.Context, userID, kind string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("notification payload not serializable", "kind", kind, "err", err)
		return
	}
	if err := q.db.InsertNotification(ctx, userID, kind, body); err != nil {
		slog.Warn("notification enqueue failed", "kind", kind, "user", userID, "err", err)
	}
}

// Dispatcher drains the queue and POSTs each notification to the
// configured sink endpoint.
type Dispatcher struct {
	db          *sqlite.DB
	client      *http.Client
	sinkURL     string
	interval    time.Duration
	maxAttempts int
	batchSize   int
}

// NewDispatcher creates the dispatcher. An empty sinkURL means there is
// no external sink; notifications are then marked delivered as soon as
// they are swept, which keeps the queue bounded in dev setups.
func NewDispatcher(db *sqlite.DB, sinkURL string, interval time.Duration) *Dispatcher {
	return &Dispatcher{
		db:          db,
		client:      &http.Client{Timeout: 5 * time.Second},
		sinkURL:     sinkURL,
		interval:    interval,
		maxAttempts: 5,
		batchSize:   50,
	}
}

// Run sweeps the queue on the configured interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Sweep(ctx)
		}
	}
}

// Sweep delivers one batch of pending notifications and returns how
// many were sent.
func (d *Dispatcher) Sweep(ctx context.Context) int {
	pending, err := d.db.PendingNotifications(ctx, d.batchSize)
	if err != nil {
		slog.Error("notification sweep failed", "err", err)
		return 0
	}

	var sent int
	for _, n := range pending {
		if err := d.deliver(ctx, n); err != nil {
			d.recordFailure(ctx, n, err)
			continue
		}
		if err := d.db.MarkNotification(ctx, n.ID, domain.NotifySent); err != nil {
			slog.Error("notification mark failed", "id", n.ID, "err", err)
			continue
		}
		observability.NotificationsDispatched.WithLabelValues("sent").Inc()
		sent++
	}
	return sent
}

// envelope is the wire shape posted to the sink.
type envelope struct {
	UserID    string          `json:"user_id"`
	Kind      string          `json:"kind"`
	Body      json.RawMessage `json:"body"`
	CreatedAt time.Time       `json:"created_at"`
}

func (d *Dispatcher) deliver(ctx context.Context, n domain.Notification) error {
	if d.sinkURL == "" {
		return nil
	}
	payload, err := json.Marshal(envelope{
		UserID: n.UserID, Kind: n.Kind, Body: n.Body, CreatedAt: n.CreatedAt,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.sinkURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sink returned %d", resp.StatusCode)
	}
	return nil
}

// recordFailure keeps the notification pending until the attempt cap,
// then drops it. Notifications are best-effort; the settlement record
// is the source of truth, not the sink.
func (d *Dispatcher) recordFailure(ctx context.Context, n domain.Notification, cause error) {
	status := domain.NotifyPending
	if n.Attempts+1 >= d.maxAttempts {
		status = domain.NotifyFailed
		observability.NotificationsDispatched.WithLabelValues("dropped").Inc()
		slog.Warn("notification dropped after retries",
			"id", n.ID, "kind", n.Kind, "attempts", n.Attempts+1, "err", cause)
	}
	if err := d.db.MarkNotification(ctx, n.ID, status); err != nil {
		slog.Error("notification mark failed", "id", n.ID, "err", err)
	}
}
