package models

import (
	"time"

	"github.com/bmptec/ledger-core/internal/domain"
	"github.com/google/uuid"
)

// CreateAccountRequest carries the client data and the account options for
// opening an account. An existing client with the same CPF is reused.
type CreateAccountRequest struct {
	Name           string       `json:"name"`
	CPF            string       `json:"cpf"`
	Email          string       `json:"email"`
	BirthDate      string       `json:"birth_date"`
	Phone          string       `json:"phone"`
	AccountKind    string       `json:"account_kind"`
	InitialBalance domain.Money `json:"initial_balance"`
}

type AccountResponse struct {
	ID             uuid.UUID    `json:"id"`
	ClientID       uuid.UUID    `json:"client_id"`
	AccountNumber  string       `json:"account_number"`
	Branch         string       `json:"branch"`
	Kind           string       `json:"account_kind"`
	Balance        domain.Money `json:"balance"`
	OpeningBalance domain.Money `json:"opening_balance"`
	Status         string       `json:"status"`
	HolderName     string       `json:"holder_name,omitempty"`
	OpenedAt       time.Time    `json:"opened_at"`
	ClosedAt       *time.Time   `json:"closed_at,omitempty"`
}

func NewAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:             a.ID,
		ClientID:       a.ClientID,
		AccountNumber:  a.Number,
		Branch:         a.Branch,
		Kind:           a.Kind.String(),
		Balance:        domain.NewMoney(a.Balance),
		OpeningBalance: domain.NewMoney(a.OpeningBalance),
		Status:         a.Status.String(),
		HolderName:     a.HolderName,
		OpenedAt:       a.OpenedAt,
		ClosedAt:       a.ClosedAt,
	}
}

type TransferRequest struct {
	SourceAccountID      uuid.UUID    `json:"source_account_id"`
	DestinationAccountID uuid.UUID    `json:"destination_account_id"`
	Amount               domain.Money `json:"amount"`
}

type DepositRequest struct {
	AccountID uuid.UUID    `json:"account_id"`
	Amount    domain.Money `json:"amount"`
}

type MovementResponse struct {
	ID                       uuid.UUID     `json:"id"`
	TrackingCode             string        `json:"tracking_code"`
	Kind                     string        `json:"kind"`
	SourceAccountID          *uuid.UUID    `json:"source_account_id,omitempty"`
	SourceAccountNumber      string        `json:"source_account_number,omitempty"`
	DestinationAccountID     uuid.UUID     `json:"destination_account_id"`
	DestinationAccountNumber string        `json:"destination_account_number,omitempty"`
	Amount                   domain.Money  `json:"amount"`
	Fee                      *domain.Money `json:"fee,omitempty"`
	Description              string        `json:"description"`
	Status                   string        `json:"status"`
	RequestedAt              time.Time     `json:"requested_at"`
	ProcessedAt              *time.Time    `json:"processed_at,omitempty"`
}

func NewMovementResponse(m *domain.MoneyMovement) MovementResponse {
	resp := MovementResponse{
		ID:                       m.ID,
		TrackingCode:             m.TrackingCode,
		Kind:                     m.Kind(),
		SourceAccountID:          m.SourceAccountID,
		SourceAccountNumber:      m.SourceAccountNumber,
		DestinationAccountID:     m.DestinationAccountID,
		DestinationAccountNumber: m.DestinationAccountNumber,
		Amount:                   domain.NewMoney(m.Amount),
		Description:              m.Description,
		Status:                   m.Status.String(),
		RequestedAt:              m.RequestedAt,
		ProcessedAt:              m.ProcessedAt,
	}
	if m.Fee != nil {
		fee := domain.NewMoney(*m.Fee)
		resp.Fee = &fee
	}
	return resp
}

// StatementRequest selects a period of an account's history. Page and
// PageSize fall back to 1 and the configured default when zero.
type StatementRequest struct {
	AccountID uuid.UUID
	From      time.Time
	To        time.Time
	Page      int
	PageSize  int
}

type HolidayResponse struct {
	Date string `json:"date"`
	Name string `json:"name"`
	Type string `json:"type"`
}
