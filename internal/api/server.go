// Package api provides the HTTP server of the settlement daemon:
// accounts, service requests, withdrawals, gateway linking, and the
// webhook ingestion endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Leonel308/illustra-settlement/internal/app/request"
	"github.com/Leonel308/illustra-settlement/internal/app/withdrawal"
	"github.com/Leonel308/illustra-settlement/internal/domain"
	"github.com/Leonel308/illustra-settlement/internal/infra/sqlite"
	"github.com/Leonel308/illustra-settlement/internal/webhook"
)

var validate = validator.New()

// OAuthLinker is the account-linking surface of the gateway adapter.
type OAuthLinker interface {
	AuthorizationURL(accountID string) (string, error)
	ExchangeCode(ctx context.Context, code, state string) (string, error)
	Unlink(ctx context.Context, accountID string) error
}

// Server is the settlement HTTP API server.
type Server struct {
	db             *sqlite.DB
	requests       *request.Service
	withdrawals    *withdrawal.Service
	inbox          *webhook.Processor
	linker         OAuthLinker
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(db *sqlite.DB, requests *request.Service, withdrawals *withdrawal.Service, inbox *webhook.Processor, linker OAuthLinker) *Server {
	return &Server{
		db:          db,
		requests:    requests,
		withdrawals: withdrawals,
		inbox:       inbox,
		linker:      linker,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", s.handleCreateAccount)
			r.Get("/{id}", s.handleGetAccount)
			r.Put("/{id}/price", s.handleSetPrice)
			r.Post("/{id}/deposit", s.handleDeposit)
		})

		r.Route("/requests", func(r chi.Router) {
			r.Post("/", s.handleCreateRequest)
			r.Get("/", s.handleListRequests)
			r.Get("/{id}", s.handleGetRequest)
			r.Post("/{id}/deliver", s.handleDeliver)
			r.Post("/{id}/accept", s.handleAccept)
			r.Post("/{id}/deny", s.handleDeny)
			r.Post("/{id}/cancel", s.handleCancel)
		})

		r.Route("/withdrawals", func(r chi.Router) {
			r.Post("/", s.handleCreateWithdrawal)
			r.Get("/", s.handleListWithdrawals)
			r.Post("/{id}/approve", s.handleApproveWithdrawal)
			r.Post("/{id}/deny", s.handleDenyWithdrawal)
		})

		r.Route("/gateway", func(r chi.Router) {
			r.Get("/link", s.handleLinkStart)
			r.Get("/callback", s.handleLinkCallback)
			r.Delete("/link/{id}", s.handleUnlink)
			r.Post("/webhook", s.handleWebhook)
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// writeDomainError maps a service error onto the HTTP taxonomy:
// missing records 404, precondition failures 4xx with the reason,
// gateway trouble 502, invariant violations a bare 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrRequestNotFound),
		errors.Is(err, domain.ErrPaymentNotFound),
		errors.Is(err, domain.ErrWithdrawalNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrInvalidStateToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrWithdrawalSettled),
		errors.Is(err, domain.ErrDuplicateTxnID),
		errors.Is(err, domain.ErrNotLinked):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrPriceMismatch):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrGatewayUnavailable):
		writeError(w, http.StatusBadGateway, "payment gateway is unavailable, try again later")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeValid decodes a JSON body and runs struct validation.
func decodeValid(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
