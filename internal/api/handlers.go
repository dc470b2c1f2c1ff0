package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Leonel308/illustra-settlement/internal/domain"
)

// ─── Account Handlers ───────────────────────────────────────────────────────

type createAccountDTO struct {
	ID          string `json:"id" validate:"required"`
	DisplayName string `json:"display_name" validate:"required"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var dto createAccountDTO
	if err := decodeValid(r, &dto); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	account, err := s.db.CreateAccount(r.Context(), dto.ID, dto.DisplayName)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.db.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

type setPriceDTO struct {
	Price int64 `json:"price" validate:"gte=0"`
}

func (s *Server) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	var dto setPriceDTO
	if err := decodeValid(r, &dto); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.db.SetPublishedPrice(r.Context(), chi.URLParam(r, "id"), dto.Price); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type depositDTO struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var dto depositDTO
	if err := decodeValid(r, &dto); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pref, err := s.requests.Deposit(r.Context(), chi.URLParam(r, "id"), dto.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pref)
}

// ─── Request Handlers ───────────────────────────────────────────────────────

type createRequestDTO struct {
	ClientID   string `json:"client_id" validate:"required"`
	ProviderID string `json:"provider_id" validate:"required"`
	Price      int64  `json:"price" validate:"required,gt=0"`
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var dto createRequestDTO
	if err := decodeValid(r, &dto); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := s.requests.Create(r.Context(), dto.ClientID, dto.ProviderID, dto.Price)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.requests.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role != "client" && role != "provider" {
		writeError(w, http.StatusBadRequest, "role must be client or provider")
		return
	}
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	status := domain.RequestStatus(r.URL.Query().Get("status"))

	list, err := s.requests.List(r.Context(), role, accountID, status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if list == nil {
		list = []domain.ServiceRequest{}
	}
	writeJSON(w, http.StatusOK, list)
}

type deliverDTO struct {
	ProviderID   string   `json:"provider_id" validate:"required"`
	Deliverables []string `json:"deliverables"`
}

func (s *Server) handleDeliver(w http.ResponseWriter, r *http.Request) {
	var dto deliverDTO
	if err := decodeValid(r, &dto); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.requests.Deliver(r.Context(), chi.URLParam(r, "id"), dto.ProviderID, dto.Deliverables); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}

type acceptDTO struct {
	ClientID string `json:"client_id" validate:"required"`
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	var dto acceptDTO
	if err := decodeValid(r, &dto); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.requests.Accept(r.Context(), chi.URLParam(r, "id"), dto.ClientID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

type denyDTO struct {
	ProviderID string `json:"provider_id" validate:"required"`
	Reason     string `json:"reason"`
}

func (s *Server) handleDeny(w http.ResponseWriter, r *http.Request) {
	var dto denyDTO
	if err := decodeValid(r, &dto); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.requests.Deny(r.Context(), chi.URLParam(r, "id"), dto.ProviderID, dto.Reason); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "denied"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var dto denyDTO
	if err := decodeValid(r, &dto); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.requests.Cancel(r.Context(), chi.URLParam(r, "id"), dto.ProviderID, dto.Reason); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// ─── Withdrawal Handlers ────────────────────────────────────────────────────

type createWithdrawalDTO struct {
	UserID string `json:"user_id" validate:"required"`
	Amount int64  `json:"amount" validate:"required,gt=0"`
}

func (s *Server) handleCreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var dto createWithdrawalDTO
	if err := decodeValid(r, &dto); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := s.withdrawals.Request(r.Context(), dto.UserID, dto.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleListWithdrawals(w http.ResponseWriter, r *http.Request) {
	list, err := s.withdrawals.Pending(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if list == nil {
		list = []domain.WithdrawalRequest{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	if err := s.withdrawals.Approve(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

func (s *Server) handleDenyWithdrawal(w http.ResponseWriter, r *http.Request) {
	if err := s.withdrawals.Deny(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "denied"})
}
