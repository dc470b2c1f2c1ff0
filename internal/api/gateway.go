package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ─── Gateway Linking Handlers ───────────────────────────────────────────────

func (s *Server) handleLinkStart(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	if _, err := s.db.GetAccount(r.Context(), accountID); err != nil {
		writeDomainError(w, err)
		return
	}
	u, err := s.linker.AuthorizationURL(accountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"authorization_url": u})
}

func (s *Server) handleLinkCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		writeError(w, http.StatusBadRequest, "code and state are required")
		return
	}
	accountID, err := s.linker.ExchangeCode(r.Context(), code, state)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "linked", "account_id": accountID})
}

func (s *Server) handleUnlink(w http.ResponseWriter, r *http.Request) {
	if err := s.linker.Unlink(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unlinked"})
}

// ─── Webhook Ingestion ──────────────────────────────────────────────────────

type webhookDTO struct {
	EventType    string `json:"event_type"`
	GatewayTxnID string `json:"gateway_txn_id"`
}

// handleWebhook always acknowledges with 200. A non-2xx answer would
// put the gateway into a retry storm; failures are logged for manual
// reconciliation instead and the inbox dedupe absorbs redeliveries.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var dto webhookDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		slog.Warn("webhook body unparseable", "err", err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
		return
	}
	if err := s.inbox.Ingest(r.Context(), dto.EventType, dto.GatewayTxnID); err != nil {
		slog.Warn("webhook event not ingested", "type", dto.EventType, "txn", dto.GatewayTxnID, "err", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}
