package domain

import (
	"fmt"
	"strings"
)

// AccountKind is the product type of an account.
type AccountKind string

const (
	AccountKindChecking   AccountKind = "CHECKING"
	AccountKindSavings    AccountKind = "SAVINGS"
	AccountKindPayroll    AccountKind = "PAYROLL"
	AccountKindInvestment AccountKind = "INVESTMENT"
	AccountKindStudent    AccountKind = "STUDENT"
	AccountKindJoint      AccountKind = "JOINT"
	AccountKindDigital    AccountKind = "DIGITAL"
)

var accountKinds = map[AccountKind]struct{}{
	AccountKindChecking:   {},
	AccountKindSavings:    {},
	AccountKindPayroll:    {},
	AccountKindInvestment: {},
	AccountKindStudent:    {},
	AccountKindJoint:      {},
	AccountKindDigital:    {},
}

// ParseAccountKind normalizes s and defaults to checking when empty.
func ParseAccountKind(s string) (AccountKind, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return AccountKindChecking, nil
	}
	kind := AccountKind(s)
	if _, ok := accountKinds[kind]; !ok {
		return "", Errorf(ErrInvalidInput, "unknown account kind %q", s)
	}
	return kind, nil
}

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	AccountStatusActive          AccountStatus = "ACTIVE"
	AccountStatusInactive        AccountStatus = "INACTIVE"
	AccountStatusBlocked         AccountStatus = "BLOCKED"
	AccountStatusClosed          AccountStatus = "CLOSED"
	AccountStatusPendingApproval AccountStatus = "PENDING_APPROVAL"
	AccountStatusRestricted      AccountStatus = "RESTRICTED"
)

// MovementStatus is the audit state of a money movement.
type MovementStatus string

const (
	MovementStatusPending    MovementStatus = "PENDING"
	MovementStatusProcessing MovementStatus = "PROCESSING"
	MovementStatusCompleted  MovementStatus = "COMPLETED"
	MovementStatusCancelled  MovementStatus = "CANCELLED"
	MovementStatusFailed     MovementStatus = "FAILED"
)

// Counter names used by the sequence allocator.
const (
	CounterAccount  = "ACCOUNT"
	CounterTransfer = "TRANSFER"
)

const (
	DefaultBranch = "0001"

	// ExternalCounterparty labels credits that did not originate from a ledger account.
	ExternalCounterparty = "EXTERNAL"

	MovementKindTransfer = "transfer"
	MovementKindDeposit  = "deposit"
)

func (k AccountKind) String() string    { return string(k) }
func (s AccountStatus) String() string  { return string(s) }
func (s MovementStatus) String() string { return string(s) }

// ParseAccountStatus validates a persisted status value.
func ParseAccountStatus(s string) (AccountStatus, error) {
	switch st := AccountStatus(s); st {
	case AccountStatusActive, AccountStatusInactive, AccountStatusBlocked,
		AccountStatusClosed, AccountStatusPendingApproval, AccountStatusRestricted:
		return st, nil
	}
	return "", fmt.Errorf("unknown account status %q", s)
}
