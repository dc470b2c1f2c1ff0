// Package gateway is the adapter for the external payment processor.
// It owns every outbound HTTP call: checkout preferences, sub-account
// payouts, payment cancellation, and the OAuth account linking flow.
// All calls are bounded by a timeout and retried with exponential
// backoff; a processor outage surfaces as domain.ErrGatewayUnavailable
// rather than a hang.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Leonel308/illustra-settlement/internal/domain"
	"github.com/Leonel308/illustra-settlement/internal/infra/observability"
)

// Config holds the processor credentials and endpoints.
type Config struct {
	BaseURL      string        // REST API base, no trailing slash
	AuthBaseURL  string        // OAuth authorize endpoint base
	ClientID     string        // platform application id
	ClientSecret string        // platform secret, used as the platform bearer token
	RedirectURL  string        // OAuth callback registered with the processor
	StateSecret  string        // HMAC key for OAuth state tokens
	Timeout      time.Duration // per-attempt HTTP timeout
	MaxRetries   uint64        // retry attempts after the first
}

// Client implements domain.Gateway against the processor's REST API.
type Client struct {
	cfg    Config
	http   *http.Client
	tokens domain.TokenStore
}

// NewClient creates the adapter. tokens persists rotated OAuth pairs.
func NewClient(cfg Config, tokens domain.TokenStore) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		tokens: tokens,
	}
}

// ─── Payment Endpoints ──────────────────────────────────────────────────────

type preferenceResponse struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

// CreatePreference registers a payment with the processor and returns
// the checkout redirect for the payer.
func (c *Client) CreatePreference(ctx context.Context, amount int64, description, payerRef string) (*domain.Preference, error) {
	body := map[string]any{
		"amount":             amount,
		"description":        description,
		"external_reference": payerRef,
	}
	var resp preferenceResponse
	err := c.call(ctx, "create_preference", http.MethodPost, "/checkout/preferences", c.cfg.ClientSecret, body, &resp)
	if err != nil {
		return nil, err
	}
	return &domain.Preference{ID: resp.ID, RedirectURL: resp.InitPoint}, nil
}

type payoutResponse struct {
	ID string `json:"id"`
}

// CreatePayout transfers funds to the account's linked sub-account.
// The stored access token is refreshed first when close to expiry, so
// the payout itself never fails on a stale token.
func (c *Client) CreatePayout(ctx context.Context, account *domain.Account, amount int64, reference string) (*domain.Payout, error) {
	link, err := c.freshLink(ctx, account)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"amount":             amount,
		"receiver":           link.AccountRef,
		"external_reference": reference,
	}
	var resp payoutResponse
	err = c.call(ctx, "create_payout", http.MethodPost, "/payouts", link.AccessToken, body, &resp)
	if err != nil {
		return nil, err
	}
	return &domain.Payout{GatewayTxnID: resp.ID}, nil
}

// CancelPayment voids a processor-side payment. A 404 counts as
// success: the payment is already gone on their side, which is the
// state the caller needs before refunding locally.
func (c *Client) CancelPayment(ctx context.Context, gatewayTxnID string) error {
	path := fmt.Sprintf("/payments/%s/cancel", gatewayTxnID)
	err := c.call(ctx, "cancel_payment", http.MethodPut, path, c.cfg.ClientSecret, nil, nil)
	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusNotFound {
		return nil
	}
	return err
}

// ─── HTTP Plumbing ──────────────────────────────────────────────────────────

// statusError carries a non-2xx response through the retry loop.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.code, e.body)
}

// call runs one logical API call with retries. Network errors and 5xx
// responses retry; 4xx responses are permanent.
func (c *Client) call(ctx context.Context, endpoint, method, path, bearer string, body, out any) error {
	timer := time.Now()
	defer func() {
		observability.GatewayCalls.WithLabelValues(endpoint).Observe(time.Since(timer).Seconds())
	}()

	operation := func() error {
		return c.attempt(ctx, method, path, bearer, body, out)
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.cfg.MaxRetries), ctx)

	err := backoff.Retry(operation, policy)
	if err != nil {
		observability.GatewayFailures.WithLabelValues(endpoint).Inc()
		var se *statusError
		if errors.As(err, &se) && se.code < 500 {
			return fmt.Errorf("%s: %w", endpoint, err)
		}
		return fmt.Errorf("%s: %v: %w", endpoint, err, domain.ErrGatewayUnavailable)
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return backoff.Permanent(err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		se := &statusError{code: resp.StatusCode, body: string(raw)}
		if resp.StatusCode >= 500 {
			return se
		}
		return backoff.Permanent(se)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}
