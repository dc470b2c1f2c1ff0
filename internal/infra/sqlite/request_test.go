package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/Leonel308/illustra-settlement/internal/domain"
)

// ─── Request Storage Tests ──────────────────────────────────────────────────

func insertTestRequest(t *testing.T, db *DB, id string, status domain.RequestStatus) *domain.ServiceRequest {
	t.Helper()
	now := time.Now()
	r := &domain.ServiceRequest{
		ID:          id,
		ClientID:    "client-1",
		ProviderID:  "provider-1",
		PriceAmount: 400,
		Status:      status,
		PaymentID:   "pay-" + id,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := db.WithTx(context.Background(), func(tx *sql.Tx) error {
		return db.InsertRequestTx(tx, r)
	})
	if err != nil {
		t.Fatalf("insert request %s: %v", id, err)
	}
	return r
}

func TestInsertAndGetRequest(t *testing.T) {
	db := newTestDB(t)
	insertTestRequest(t, db, "req-1", domain.StatusPending)

	got, err := db.GetRequest(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("GetRequest() error: %v", err)
	}
	if got.Status != domain.StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if got.PriceAmount != 400 {
		t.Errorf("price = %d, want 400", got.PriceAmount)
	}
	if len(got.Deliverables) != 0 {
		t.Errorf("deliverables = %v, want empty", got.Deliverables)
	}
}

func TestCASStatusTx(t *testing.T) {
	db := newTestDB(t)
	insertTestRequest(t, db, "req-1", domain.StatusPending)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		return db.CASStatusTx(tx, "req-1", domain.StatusPending, domain.StatusDelivered, "")
	})
	if err != nil {
		t.Fatalf("CASStatusTx() error: %v", err)
	}

	got, _ := db.GetRequest(ctx, "req-1")
	if got.Status != domain.StatusDelivered {
		t.Errorf("status = %s, want delivered", got.Status)
	}
}

func TestCASStatusTx_WrongSourceState(t *testing.T) {
	db := newTestDB(t)
	insertTestRequest(t, db, "req-1", domain.StatusPending)
	ctx := context.Background()

	// accept requires delivered; the request is still pending.
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		return db.CASStatusTx(tx, "req-1", domain.StatusDelivered, domain.StatusCompleted, "")
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("error = %v, want ErrInvalidTransition", err)
	}

	got, _ := db.GetRequest(ctx, "req-1")
	if got.Status != domain.StatusPending {
		t.Errorf("status mutated to %s on failed CAS", got.Status)
	}
}

func TestCASStatusTx_MissingRequest(t *testing.T) {
	db := newTestDB(t)
	err := db.WithTx(context.Background(), func(tx *sql.Tx) error {
		return db.CASStatusTx(tx, "ghost", domain.StatusPending, domain.StatusDelivered, "")
	})
	if !errors.Is(err, domain.ErrRequestNotFound) {
		t.Errorf("error = %v, want ErrRequestNotFound", err)
	}
}

func TestSetDeliverablesTx(t *testing.T) {
	db := newTestDB(t)
	insertTestRequest(t, db, "req-1", domain.StatusPending)
	ctx := context.Background()

	refs := []string{"art/final.png", "art/sketch.png"}
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		return db.SetDeliverablesTx(tx, "req-1", refs)
	})
	if err != nil {
		t.Fatalf("SetDeliverablesTx() error: %v", err)
	}

	got, _ := db.GetRequest(ctx, "req-1")
	if len(got.Deliverables) != 2 || got.Deliverables[0] != "art/final.png" {
		t.Errorf("deliverables = %v, want %v", got.Deliverables, refs)
	}
}

func TestArchiveRequestTx(t *testing.T) {
	db := newTestDB(t)
	r := insertTestRequest(t, db, "req-1", domain.StatusDelivered)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		return db.ArchiveRequestTx(tx, r)
	})
	if err != nil {
		t.Fatalf("ArchiveRequestTx() error: %v", err)
	}

	// Gone from the live table, present in the archive.
	if _, err := db.GetRequest(ctx, "req-1"); !errors.Is(err, domain.ErrRequestNotFound) {
		t.Errorf("live lookup error = %v, want ErrRequestNotFound", err)
	}
	archived, err := db.GetCompletedRequest(ctx, "req-1")
	if err != nil {
		t.Fatalf("GetCompletedRequest() error: %v", err)
	}
	if archived.Status != domain.StatusCompleted {
		t.Errorf("archived status = %s, want completed", archived.Status)
	}
	if archived.PriceAmount != 400 {
		t.Errorf("archived price = %d, want 400", archived.PriceAmount)
	}
}

func TestListRequests(t *testing.T) {
	db := newTestDB(t)
	insertTestRequest(t, db, "req-1", domain.StatusPending)
	insertTestRequest(t, db, "req-2", domain.StatusDelivered)
	ctx := context.Background()

	t.Run("client sees both", func(t *testing.T) {
		all, err := db.ListRequests(ctx, "client", "client-1", "")
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 2 {
			t.Errorf("got %d requests, want 2", len(all))
		}
	})

	t.Run("provider filtered by status", func(t *testing.T) {
		delivered, err := db.ListRequests(ctx, "provider", "provider-1", domain.StatusDelivered)
		if err != nil {
			t.Fatal(err)
		}
		if len(delivered) != 1 || delivered[0].ID != "req-2" {
			t.Errorf("got %v, want just req-2", delivered)
		}
	})

	t.Run("stranger sees none", func(t *testing.T) {
		none, err := db.ListRequests(ctx, "client", "someone-else", "")
		if err != nil {
			t.Fatal(err)
		}
		if len(none) != 0 {
			t.Errorf("got %d requests, want 0", len(none))
		}
	})
}

// ─── Payment Storage Tests ──────────────────────────────────────────────────

func insertTestPayment(t *testing.T, db *DB, id, txnID string, status domain.PaymentStatus) {
	t.Helper()
	p := &domain.Payment{
		ID:           id,
		Amount:       400,
		PayerID:      "client-1",
		Method:       domain.MethodGateway,
		Status:       status,
		GatewayTxnID: txnID,
		CreatedAt:    time.Now(),
	}
	err := db.WithTx(context.Background(), func(tx *sql.Tx) error {
		return db.InsertPaymentTx(tx, p)
	})
	if err != nil {
		t.Fatalf("insert payment %s: %v", id, err)
	}
}

func TestPaymentByTxnID(t *testing.T) {
	db := newTestDB(t)
	insertTestPayment(t, db, "pay-1", "mp-100", domain.PaymentPending)

	err := db.WithTx(context.Background(), func(tx *sql.Tx) error {
		p, err := db.GetPaymentByTxnIDTx(tx, "mp-100")
		if err != nil {
			return err
		}
		if p.ID != "pay-1" {
			t.Errorf("payment id = %s, want pay-1", p.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestPaymentByTxnID_Unknown(t *testing.T) {
	db := newTestDB(t)
	err := db.WithTx(context.Background(), func(tx *sql.Tx) error {
		_, err := db.GetPaymentByTxnIDTx(tx, "mp-unknown")
		return err
	})
	if !errors.Is(err, domain.ErrPaymentNotFound) {
		t.Errorf("error = %v, want ErrPaymentNotFound", err)
	}
}

func TestAdvancePaymentTx(t *testing.T) {
	db := newTestDB(t)
	insertTestPayment(t, db, "pay-1", "mp-100", domain.PaymentPending)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		return db.AdvancePaymentTx(tx, "pay-1", domain.PaymentPending, domain.PaymentSettled, "provider-1")
	})
	if err != nil {
		t.Fatalf("AdvancePaymentTx() error: %v", err)
	}

	p, _ := db.GetPayment(ctx, "pay-1")
	if p.Status != domain.PaymentSettled {
		t.Errorf("status = %s, want settled", p.Status)
	}
	if p.PayeeID != "provider-1" {
		t.Errorf("payee = %s, want provider-1", p.PayeeID)
	}

	// Settled is final: no further advance, no going back.
	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		return db.AdvancePaymentTx(tx, "pay-1", domain.PaymentSettled, domain.PaymentCancelled, "")
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("error = %v, want ErrInvalidTransition", err)
	}
}

func TestInsertPayment_DuplicateTxnID(t *testing.T) {
	db := newTestDB(t)
	insertTestPayment(t, db, "pay-1", "mp-100", domain.PaymentPending)

	p := &domain.Payment{
		ID: "pay-2", Amount: 100, PayerID: "x",
		Method: domain.MethodGateway, Status: domain.PaymentPending,
		GatewayTxnID: "mp-100", CreatedAt: time.Now(),
	}
	err := db.WithTx(context.Background(), func(tx *sql.Tx) error {
		return db.InsertPaymentTx(tx, p)
	})
	if !errors.Is(err, domain.ErrDuplicateTxnID) {
		t.Errorf("error = %v, want ErrDuplicateTxnID", err)
	}
}
