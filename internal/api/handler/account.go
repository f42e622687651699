package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/bmptec/ledger-core/internal/domain"
	"github.com/bmptec/ledger-core/internal/models"
	"github.com/bmptec/ledger-core/internal/service"
	"github.com/google/uuid"
)

const birthDateLayout = "2006-01-02"

type AccountHandler struct {
	svc *service.AccountService
}

func NewAccountHandler(svc *service.AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	birthDate, err := time.Parse(birthDateLayout, req.BirthDate)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-birth-date", "birth_date must be formatted as YYYY-MM-DD")
		return
	}
	kind, err := domain.ParseAccountKind(req.AccountKind)
	if err != nil {
		RespondDomainError(w, r, err, "create account failed")
		return
	}

	account, err := h.svc.CreateAccount(r.Context(), service.CreateAccountCmd{
		Name:           req.Name,
		CPF:            req.CPF,
		Email:          req.Email,
		BirthDate:      birthDate,
		Phone:          req.Phone,
		Kind:           kind,
		InitialBalance: req.InitialBalance.Decimal(),
	})
	if err != nil {
		RespondDomainError(w, r, err, "create account failed")
		return
	}
	RespondJSON(w, http.StatusCreated, models.NewAccountResponse(account))
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "account_id")
	if !ok {
		return
	}
	account, err := h.svc.GetAccountByID(r.Context(), id)
	if err != nil {
		RespondDomainError(w, r, err, "get account failed")
		return
	}
	RespondJSON(w, http.StatusOK, models.NewAccountResponse(account))
}

func (h *AccountHandler) ListClientAccounts(w http.ResponseWriter, r *http.Request) {
	clientID, ok := uuidParam(w, r, "client_id")
	if !ok {
		return
	}
	accounts, err := h.svc.ListAccountsByClient(r.Context(), clientID)
	if err != nil {
		RespondDomainError(w, r, err, "list accounts failed")
		return
	}
	out := make([]models.AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, models.NewAccountResponse(a))
	}
	RespondJSON(w, http.StatusOK, out)
}

func (h *AccountHandler) CloseAccount(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.svc.CloseAccount)
}

func (h *AccountHandler) BlockAccount(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.svc.BlockAccount)
}

func (h *AccountHandler) UnblockAccount(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.svc.UnblockAccount)
}

func (h *AccountHandler) changeStatus(w http.ResponseWriter, r *http.Request, change func(context.Context, uuid.UUID) (*domain.Account, error)) {
	id, ok := uuidParam(w, r, "account_id")
	if !ok {
		return
	}
	account, err := change(r.Context(), id)
	if err != nil {
		RespondDomainError(w, r, err, "account status change failed")
		return
	}
	RespondJSON(w, http.StatusOK, models.NewAccountResponse(account))
}
