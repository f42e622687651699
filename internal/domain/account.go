package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is a ledger account. Balances change only through Credit and Debit.
type Account struct {
	ID       uuid.UUID
	ClientID uuid.UUID
	Number   string
	Branch   string
	Kind     AccountKind
	Balance  decimal.Decimal
	// OpeningBalance is the balance right after Open; statements replay from it.
	OpeningBalance decimal.Decimal
	Status         AccountStatus
	OpenedAt       time.Time
	ClosedAt       *time.Time

	// HolderName is filled on reads that join the owning client.
	HolderName string
}

// NewAccount returns an active account with zero balance.
func NewAccount(clientID uuid.UUID, number, branch string, kind AccountKind, now time.Time) (*Account, error) {
	if strings.TrimSpace(number) == "" {
		return nil, Errorf(ErrInvalidInput, "account number is required")
	}
	if clientID == uuid.Nil {
		return nil, Errorf(ErrInvalidInput, "client is required")
	}
	if branch == "" {
		branch = DefaultBranch
	}
	if kind == "" {
		kind = AccountKindChecking
	}
	return &Account{
		ID:             uuid.New(),
		ClientID:       clientID,
		Number:         number,
		Branch:         branch,
		Kind:           kind,
		Balance:        decimal.Zero,
		OpeningBalance: decimal.Zero,
		Status:         AccountStatusActive,
		OpenedAt:       now.UTC(),
	}, nil
}

// Open credits the initial deposit through Credit and records the result as
// the opening balance.
func (a *Account) Open(initial decimal.Decimal) error {
	if initial.IsNegative() {
		return Errorf(ErrInvalidAmount, "initial balance must not be negative")
	}
	if initial.IsPositive() {
		if err := a.Credit(initial); err != nil {
			return err
		}
	}
	a.OpeningBalance = a.Balance
	return nil
}

// Credit adds amount to the balance.
func (a *Account) Credit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if a.Status != AccountStatusActive {
		return Errorf(ErrAccountNotActive, "account %s is %s and cannot receive credits", a.Number, a.Status)
	}
	a.Balance = a.Balance.Add(amount)
	return nil
}

// Debit subtracts amount from the balance, never letting it go negative.
func (a *Account) Debit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if a.Status != AccountStatusActive {
		return Errorf(ErrAccountNotActive, "account %s is %s and cannot be debited", a.Number, a.Status)
	}
	if a.Balance.LessThan(amount) {
		return Errorf(ErrInsufficientFunds, "insufficient funds in account %s: balance %s, requested %s",
			a.Number, a.Balance.StringFixed(2), amount.StringFixed(2))
	}
	a.Balance = a.Balance.Sub(amount)
	return nil
}

// Close moves the account to the terminal Closed state.
func (a *Account) Close(now time.Time) error {
	if a.Status == AccountStatusClosed {
		return ErrAlreadyClosed
	}
	if a.Balance.IsPositive() {
		return Errorf(ErrNonZeroBalance, "account %s still holds %s", a.Number, a.Balance.StringFixed(2))
	}
	closedAt := now.UTC()
	a.Status = AccountStatusClosed
	a.ClosedAt = &closedAt
	return nil
}

// Block suspends all balance mutation.
func (a *Account) Block() {
	a.Status = AccountStatusBlocked
}

// Unblock reactivates a blocked account. Any other status is left untouched.
func (a *Account) Unblock() {
	if a.Status == AccountStatusBlocked {
		a.Status = AccountStatusActive
	}
}

func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

func (a *Account) String() string {
	return fmt.Sprintf("account %s branch %s", a.Number, a.Branch)
}
