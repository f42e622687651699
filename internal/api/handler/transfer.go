package handler

import (
	"net/http"
	"strconv"

	"github.com/bmptec/ledger-core/internal/models"
	"github.com/bmptec/ledger-core/internal/service"
)

const requestKeyHeader = "Idempotency-Key"

type TransferHandler struct {
	svc *service.TransferService
}

func NewTransferHandler(svc *service.TransferService) *TransferHandler {
	return &TransferHandler{svc: svc}
}

func (h *TransferHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req models.TransferRequest
	if !decodeBody(w, r, &req) {
		return
	}

	m, err := h.svc.Transfer(r.Context(), service.TransferCmd{
		SourceAccountID:      req.SourceAccountID,
		DestinationAccountID: req.DestinationAccountID,
		Amount:               req.Amount.Decimal(),
		RequestKey:           r.Header.Get(requestKeyHeader),
	})
	if err != nil {
		RespondDomainError(w, r, err, "transfer failed")
		return
	}
	RespondJSON(w, http.StatusCreated, models.NewMovementResponse(m))
}

func (h *TransferHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req models.DepositRequest
	if !decodeBody(w, r, &req) {
		return
	}

	m, err := h.svc.Deposit(r.Context(), service.DepositCmd{
		AccountID:  req.AccountID,
		Amount:     req.Amount.Decimal(),
		RequestKey: r.Header.Get(requestKeyHeader),
	})
	if err != nil {
		RespondDomainError(w, r, err, "deposit failed")
		return
	}
	RespondJSON(w, http.StatusCreated, models.NewMovementResponse(m))
}

func (h *TransferHandler) GetMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "movement_id")
	if !ok {
		return
	}
	m, err := h.svc.GetMovement(r.Context(), id)
	if err != nil {
		RespondDomainError(w, r, err, "get movement failed")
		return
	}
	RespondJSON(w, http.StatusOK, models.NewMovementResponse(m))
}

func (h *TransferHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	movements, err := h.svc.ListMovements(r.Context(), page, pageSize)
	if err != nil {
		RespondDomainError(w, r, err, "list movements failed")
		return
	}
	out := make([]models.MovementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, models.NewMovementResponse(m))
	}
	RespondJSON(w, http.StatusOK, out)
}
