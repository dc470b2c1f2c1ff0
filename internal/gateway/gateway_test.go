package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Leonel308/illustra-settlement/internal/domain"
)

// ─── Test Fixtures ──────────────────────────────────────────────────────────

type memStore struct {
	mu      sync.Mutex
	links   map[string]domain.ExternalLink
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{links: make(map[string]domain.ExternalLink)}
}

func (s *memStore) SaveExternalLink(ctx context.Context, accountID string, link domain.ExternalLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.links[accountID] = link
	return nil
}

func (s *memStore) ClearExternalLink(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, accountID)
	return nil
}

func (s *memStore) get(accountID string) (domain.ExternalLink, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[accountID]
	return l, ok
}

func newTestClient(baseURL string, store domain.TokenStore) *Client {
	return NewClient(Config{
		BaseURL:      baseURL,
		AuthBaseURL:  "https://auth.gw.test",
		ClientID:     "app-1",
		ClientSecret: "platform-secret",
		RedirectURL:  "https://illustra.test/gateway/callback",
		StateSecret:  "state-hmac-key",
		Timeout:      2 * time.Second,
		MaxRetries:   2,
	}, store)
}

func linkedAccount(expiry time.Time) *domain.Account {
	return &domain.Account{
		ID: "alice",
		External: &domain.ExternalLink{
			AccountRef:   "mp-user-9",
			AccessToken:  "old-access",
			RefreshToken: "old-refresh",
			ExpiresAt:    expiry,
		},
	}
}

// ─── Payment Endpoint Tests ─────────────────────────────────────────────────

func TestCreatePreference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/checkout/preferences" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer platform-secret" {
			t.Errorf("auth header = %q", got)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["amount"].(float64) != 400 {
			t.Errorf("amount = %v, want 400", body["amount"])
		}
		json.NewEncoder(w).Encode(map[string]string{
			"id": "pref-77", "init_point": "https://gw.test/pay/pref-77",
		})
	}))
	defer srv.Close()

	pref, err := newTestClient(srv.URL, newMemStore()).
		CreatePreference(context.Background(), 400, "commission", "req-1")
	if err != nil {
		t.Fatalf("CreatePreference() error: %v", err)
	}
	if pref.ID != "pref-77" || pref.RedirectURL != "https://gw.test/pay/pref-77" {
		t.Errorf("preference = %+v", pref)
	}
}

func TestCall_RetriesServerErrors(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "pref-1"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, newMemStore()).
		CreatePreference(context.Background(), 100, "d", "r")
	if err != nil {
		t.Fatalf("error after retries: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestCall_ClientErrorIsPermanent(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, newMemStore()).
		CreatePreference(context.Background(), 100, "d", "r")
	if err == nil {
		t.Fatal("expected error on 400")
	}
	if errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Error("a 400 is not an outage")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on 4xx)", attempts)
	}
}

func TestCall_UnreachableGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens anymore

	c := NewClient(Config{
		BaseURL: srv.URL, StateSecret: "k", Timeout: 200 * time.Millisecond, MaxRetries: 1,
	}, newMemStore())
	_, err := c.CreatePreference(context.Background(), 100, "d", "r")
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Errorf("error = %v, want ErrGatewayUnavailable", err)
	}
}

func TestCancelPayment_NotFoundIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if err := newTestClient(srv.URL, newMemStore()).CancelPayment(context.Background(), "mp-9"); err != nil {
		t.Errorf("CancelPayment() on 404 = %v, want nil", err)
	}
}

// ─── OAuth Tests ────────────────────────────────────────────────────────────

func TestStateToken_RoundTrip(t *testing.T) {
	c := newTestClient("http://unused", newMemStore())

	u, err := c.AuthorizationURL("alice")
	if err != nil {
		t.Fatalf("AuthorizationURL() error: %v", err)
	}
	if !strings.Contains(u, "client_id=app-1") || !strings.Contains(u, "state=") {
		t.Errorf("authorization url missing parameters: %s", u)
	}

	state, err := c.signState("alice")
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.verifyState(state)
	if err != nil || got != "alice" {
		t.Errorf("verifyState() = %q, %v; want alice, nil", got, err)
	}

	t.Run("tampered token rejected", func(t *testing.T) {
		if _, err := c.verifyState(state + "x"); !errors.Is(err, domain.ErrInvalidStateToken) {
			t.Errorf("error = %v, want ErrInvalidStateToken", err)
		}
	})
	t.Run("wrong key rejected", func(t *testing.T) {
		other := newTestClient("http://unused", newMemStore())
		other.cfg.StateSecret = "different-key"
		if _, err := other.verifyState(state); !errors.Is(err, domain.ErrInvalidStateToken) {
			t.Errorf("error = %v, want ErrInvalidStateToken", err)
		}
	})
}

func TestExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/token" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["grant_type"] != "authorization_code" || body["code"] != "code-123" {
			t.Errorf("token request body = %v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-new", "refresh_token": "rt-new",
			"expires_in": 21600, "user_id": "mp-user-9",
		})
	}))
	defer srv.Close()

	store := newMemStore()
	c := newTestClient(srv.URL, store)
	state, _ := c.signState("alice")

	accountID, err := c.ExchangeCode(context.Background(), "code-123", state)
	if err != nil {
		t.Fatalf("ExchangeCode() error: %v", err)
	}
	if accountID != "alice" {
		t.Errorf("account = %s, want alice", accountID)
	}

	link, ok := store.get("alice")
	if !ok {
		t.Fatal("link never persisted")
	}
	if link.AccountRef != "mp-user-9" || link.AccessToken != "at-new" {
		t.Errorf("stored link = %+v", link)
	}
}

func TestExchangeCode_BadState(t *testing.T) {
	c := newTestClient("http://unused", newMemStore())
	if _, err := c.ExchangeCode(context.Background(), "code", "garbage"); !errors.Is(err, domain.ErrInvalidStateToken) {
		t.Errorf("error = %v, want ErrInvalidStateToken", err)
	}
}

func TestRefreshToken_FailureRetainsOldPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := newMemStore()
	store.links["alice"] = domain.ExternalLink{AccessToken: "old-access", RefreshToken: "old-refresh"}

	c := newTestClient(srv.URL, store)
	_, err := c.RefreshToken(context.Background(), linkedAccount(time.Now()))
	if err == nil {
		t.Fatal("refresh succeeded against a 401")
	}
	if link, _ := store.get("alice"); link.AccessToken != "old-access" {
		t.Errorf("stored token mutated to %q on failed refresh", link.AccessToken)
	}
}

func TestCreatePayout_RefreshesStaleToken(t *testing.T) {
	var payoutAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "at-fresh", "refresh_token": "rt-fresh", "expires_in": 21600,
			})
		case "/payouts":
			payoutAuth = r.Header.Get("Authorization")
			json.NewEncoder(w).Encode(map[string]string{"id": "payout-5"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	store := newMemStore()
	c := newTestClient(srv.URL, store)

	// Token expired an hour ago: the payout must refresh first.
	payout, err := c.CreatePayout(context.Background(), linkedAccount(time.Now().Add(-time.Hour)), 195, "w-1")
	if err != nil {
		t.Fatalf("CreatePayout() error: %v", err)
	}
	if payout.GatewayTxnID != "payout-5" {
		t.Errorf("txn id = %s, want payout-5", payout.GatewayTxnID)
	}
	if payoutAuth != "Bearer at-fresh" {
		t.Errorf("payout auth = %q, want the refreshed token", payoutAuth)
	}
	if link, ok := store.get("alice"); !ok || link.AccessToken != "at-fresh" {
		t.Errorf("rotated pair not persisted: %+v", link)
	}
}

func TestCreatePayout_UnlinkedAccount(t *testing.T) {
	c := newTestClient("http://unused", newMemStore())
	_, err := c.CreatePayout(context.Background(), &domain.Account{ID: "bob"}, 100, "w-1")
	if !errors.Is(err, domain.ErrNotLinked) {
		t.Errorf("error = %v, want ErrNotLinked", err)
	}
}
