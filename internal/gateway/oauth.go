package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Leonel308/illustra-settlement/internal/domain"
	"github.com/Leonel308/illustra-settlement/internal/infra/observability"
)

// ─── OAuth Account Linking ──────────────────────────────────────────────────
// Providers link their processor sub-account through the standard
// authorization-code flow. The state parameter is a short-lived signed
// token carrying the account id, so the callback can be matched to the
// account that started the flow without server-side session state.

const stateTokenTTL = 10 * time.Minute

// AuthorizationURL builds the processor consent URL for accountID.
func (c *Client) AuthorizationURL(accountID string) (string, error) {
	state, err := c.signState(accountID)
	if err != nil {
		return "", err
	}
	q := url.Values{
		"client_id":     {c.cfg.ClientID},
		"response_type": {"code"},
		"redirect_uri":  {c.cfg.RedirectURL},
		"state":         {state},
	}
	return c.cfg.AuthBaseURL + "/authorize?" + q.Encode(), nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	UserID       string `json:"user_id"`
}

// ExchangeCode completes the linking flow: it verifies the state
// token, trades the authorization code for a token pair, and persists
// the link. Returns the account id the link was stored under.
func (c *Client) ExchangeCode(ctx context.Context, code, state string) (string, error) {
	accountID, err := c.verifyState(state)
	if err != nil {
		return "", err
	}

	body := map[string]any{
		"grant_type":    "authorization_code",
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"code":          code,
		"redirect_uri":  c.cfg.RedirectURL,
	}
	var resp tokenResponse
	if err := c.call(ctx, "oauth_exchange", http.MethodPost, "/oauth/token", c.cfg.ClientSecret, body, &resp); err != nil {
		return "", err
	}

	link := domain.ExternalLink{
		AccountRef:   resp.UserID,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	if err := c.tokens.SaveExternalLink(ctx, accountID, link); err != nil {
		return "", fmt.Errorf("persist link for %s: %w", accountID, err)
	}
	return accountID, nil
}

// Unlink removes the stored sub-account linkage.
func (c *Client) Unlink(ctx context.Context, accountID string) error {
	return c.tokens.ClearExternalLink(ctx, accountID)
}

// RefreshToken rotates the account's token pair. The old pair stays
// persisted until the new one is stored, so a failed refresh leaves
// the account usable with whatever it had.
func (c *Client) RefreshToken(ctx context.Context, account *domain.Account) (*domain.ExternalLink, error) {
	if !account.Linked() {
		return nil, domain.ErrNotLinked
	}

	body := map[string]any{
		"grant_type":    "refresh_token",
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"refresh_token": account.External.RefreshToken,
	}
	var resp tokenResponse
	if err := c.call(ctx, "oauth_refresh", http.MethodPost, "/oauth/token", c.cfg.ClientSecret, body, &resp); err != nil {
		observability.TokenRefreshes.WithLabelValues("failed").Inc()
		return nil, err
	}

	link := domain.ExternalLink{
		AccountRef:   account.External.AccountRef,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	if err := c.tokens.SaveExternalLink(ctx, account.ID, link); err != nil {
		observability.TokenRefreshes.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("persist rotated tokens for %s: %w", account.ID, err)
	}
	observability.TokenRefreshes.WithLabelValues("ok").Inc()
	return &link, nil
}

// freshLink returns a link whose access token is valid for at least
// another minute, refreshing when needed.
func (c *Client) freshLink(ctx context.Context, account *domain.Account) (*domain.ExternalLink, error) {
	if !account.Linked() {
		return nil, domain.ErrNotLinked
	}
	if time.Until(account.External.ExpiresAt) > time.Minute {
		return account.External, nil
	}
	return c.RefreshToken(ctx, account)
}

// ─── State Tokens ───────────────────────────────────────────────────────────

func (c *Client) signState(accountID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(stateTokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.cfg.StateSecret))
}

func (c *Client) verifyState(state string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(t *jwt.Token) (any, error) {
		return []byte(c.cfg.StateSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || claims.Subject == "" {
		return "", domain.ErrInvalidStateToken
	}
	return claims.Subject, nil
}
