package domain

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// MoneyMovement is a deposit (no source) or a transfer between two accounts.
// Its status is an audit trail; balances are mutated by the orchestrator.
type MoneyMovement struct {
	ID                   uuid.UUID
	TrackingCode         string
	SourceAccountID      *uuid.UUID
	DestinationAccountID uuid.UUID
	Amount               decimal.Decimal
	Fee                  *decimal.Decimal
	Description          string
	Status               MovementStatus
	RequestedAt          time.Time
	ProcessedAt          *time.Time
	// RequestKey is the client's Idempotency-Key, when the movement was
	// requested with one. At most one movement holds a given key.
	RequestKey string

	// Filled on reads that join the accounts table.
	SourceAccountNumber      string
	DestinationAccountNumber string
}

var movementTransitions = map[MovementStatus]map[MovementStatus]struct{}{
	MovementStatusPending: {
		MovementStatusProcessing: {},
		MovementStatusCompleted:  {},
		MovementStatusCancelled:  {},
		MovementStatusFailed:     {},
	},
	MovementStatusProcessing: {
		MovementStatusCompleted: {},
	},
	MovementStatusCompleted: {},
	MovementStatusCancelled: {},
	MovementStatusFailed:    {},
}

// CanTransition reports whether a movement may move from current to next.
func CanTransition(current, next MovementStatus) bool {
	nextStates, ok := movementTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

// NewMovement builds a pending movement. A nil source denotes an external deposit.
func NewMovement(source *uuid.UUID, destination uuid.UUID, amount decimal.Decimal, description string, now time.Time) (*MoneyMovement, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if destination == uuid.Nil {
		return nil, Errorf(ErrInvalidInput, "destination account is required")
	}
	if source != nil && *source == destination {
		return nil, ErrSameAccount
	}
	if strings.TrimSpace(description) == "" {
		return nil, Errorf(ErrInvalidInput, "description is required")
	}
	var src *uuid.UUID
	if source != nil {
		id := *source
		src = &id
	}
	return &MoneyMovement{
		ID:                   uuid.New(),
		TrackingCode:         NewTrackingCode(now),
		SourceAccountID:      src,
		DestinationAccountID: destination,
		Amount:               amount,
		Description:          description,
		Status:               MovementStatusPending,
		RequestedAt:          now.UTC(),
	}, nil
}

// Matches reports whether m is the movement a request for amount from source
// to destination would produce. A nil source is a deposit.
func (m *MoneyMovement) Matches(source *uuid.UUID, destination uuid.UUID, amount decimal.Decimal) bool {
	if (source == nil) != (m.SourceAccountID == nil) {
		return false
	}
	if source != nil && *source != *m.SourceAccountID {
		return false
	}
	return m.DestinationAccountID == destination && m.Amount.Equal(amount)
}

func (m *MoneyMovement) IsDeposit() bool {
	return m.SourceAccountID == nil
}

// Kind returns "deposit" or "transfer".
func (m *MoneyMovement) Kind() string {
	if m.IsDeposit() {
		return MovementKindDeposit
	}
	return MovementKindTransfer
}

// Touches reports whether accountID is the source or destination.
func (m *MoneyMovement) Touches(accountID uuid.UUID) bool {
	return m.DestinationAccountID == accountID || (m.SourceAccountID != nil && *m.SourceAccountID == accountID)
}

// IsSource reports whether accountID is the debited side.
func (m *MoneyMovement) IsSource(accountID uuid.UUID) bool {
	return m.SourceAccountID != nil && *m.SourceAccountID == accountID
}

// FeeOrZero returns the charged fee, zero when none was applied.
func (m *MoneyMovement) FeeOrZero() decimal.Decimal {
	if m.Fee == nil {
		return decimal.Zero
	}
	return *m.Fee
}

// TotalDebit is what the source account paid: amount plus fee.
func (m *MoneyMovement) TotalDebit() decimal.Decimal {
	return m.Amount.Add(m.FeeOrZero())
}

func (m *MoneyMovement) transition(next MovementStatus) error {
	if !CanTransition(m.Status, next) {
		return Errorf(ErrInvalidTransition, "movement %s cannot go from %s to %s", m.TrackingCode, m.Status, next)
	}
	m.Status = next
	return nil
}

// StartProcessing moves a pending movement to processing.
func (m *MoneyMovement) StartProcessing() error {
	return m.transition(MovementStatusProcessing)
}

// Complete stamps the processing time and the applied fee.
func (m *MoneyMovement) Complete(fee *decimal.Decimal, at time.Time) error {
	if err := m.transition(MovementStatusCompleted); err != nil {
		return err
	}
	processed := at.UTC()
	m.ProcessedAt = &processed
	if fee != nil && fee.IsPositive() {
		f := *fee
		m.Fee = &f
	}
	return nil
}

// Cancel marks a pending movement as cancelled.
func (m *MoneyMovement) Cancel(reason string) error {
	if err := m.transition(MovementStatusCancelled); err != nil {
		return err
	}
	m.Description = fmt.Sprintf("%s [CANCELLED: %s]", m.Description, reason)
	return nil
}

// Fail marks a pending movement as failed.
func (m *MoneyMovement) Fail(reason string) error {
	if err := m.transition(MovementStatusFailed); err != nil {
		return err
	}
	m.Description = fmt.Sprintf("%s [FAILED: %s]", m.Description, reason)
	return nil
}

// ComputeFee applies the fee policy: 1% above 1000, otherwise a flat 5.00
// outside business days, otherwise nothing.
func (m *MoneyMovement) ComputeFee(businessDay bool) decimal.Decimal {
	if m.Amount.GreaterThan(feeThreshold) {
		return m.Amount.Mul(feeRate).Round(2)
	}
	if !businessDay {
		return nonBusinessFee
	}
	return decimal.Zero
}

// Summary is a one-line human description of the movement.
func (m *MoneyMovement) Summary() string {
	source := ExternalCounterparty
	if m.SourceAccountNumber != "" {
		source = m.SourceAccountNumber
	}
	return fmt.Sprintf("Movement: %s -> %s | %s | %s",
		source, m.DestinationAccountNumber, m.Amount.StringFixed(2), m.Status)
}

func (m *MoneyMovement) String() string {
	return fmt.Sprintf("movement %s | %s | %s", m.TrackingCode, m.Amount.StringFixed(2), m.Status)
}

const trackingCodePrefix = "TRF"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewTrackingCode returns TRF + yyMMddHHmmss + the random part of a ULID.
// Codes are opaque and not unique by construction.
func NewTrackingCode(now time.Time) string {
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(now), entropy)
	entropyMu.Unlock()

	// The last 16 characters of a ULID encode its 80 random bits.
	random := id.String()[10:]
	return trackingCodePrefix + now.UTC().Format("060102150405") + random
}
