package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how callers should surface it.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindInfrastructure
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

// Error is a ledger error with a stable code. Two errors match under errors.Is
// when their codes are equal, so sentinels survive re-wording via Errorf.
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrInvalidAmount = &Error{Kind: KindValidation, Code: "invalid_amount", Message: "amount must be greater than zero"}
	ErrInvalidInput  = &Error{Kind: KindValidation, Code: "invalid_input", Message: "invalid input"}
	ErrInvalidRange  = &Error{Kind: KindValidation, Code: "invalid_range", Message: "start date must not be after end date"}
	ErrRangeTooLarge = &Error{Kind: KindValidation, Code: "range_too_large", Message: "statement period is too large"}
	ErrSameAccount   = &Error{Kind: KindValidation, Code: "same_account", Message: "source and destination accounts must differ"}
	ErrInvalidClient = &Error{Kind: KindValidation, Code: "invalid_client", Message: "invalid client data"}

	ErrAccountNotFound  = &Error{Kind: KindNotFound, Code: "account_not_found", Message: "account not found"}
	ErrClientNotFound   = &Error{Kind: KindNotFound, Code: "client_not_found", Message: "client not found"}
	ErrMovementNotFound = &Error{Kind: KindNotFound, Code: "movement_not_found", Message: "movement not found"}

	ErrAccountNotActive  = &Error{Kind: KindConflict, Code: "account_not_active", Message: "account is not active"}
	ErrInsufficientFunds = &Error{Kind: KindConflict, Code: "insufficient_funds", Message: "insufficient funds"}
	ErrAlreadyClosed     = &Error{Kind: KindConflict, Code: "already_closed", Message: "account is already closed"}
	ErrNonZeroBalance    = &Error{Kind: KindConflict, Code: "non_zero_balance", Message: "account with positive balance cannot be closed"}
	ErrNonBusinessDay    = &Error{Kind: KindConflict, Code: "non_business_day", Message: "operation not allowed outside business days"}
	ErrInvalidTransition = &Error{Kind: KindConflict, Code: "invalid_transition", Message: "invalid status transition"}
	ErrClientInactive    = &Error{Kind: KindConflict, Code: "client_inactive", Message: "client is inactive"}
	ErrRequestKeyReused  = &Error{Kind: KindConflict, Code: "request_key_reused", Message: "request key already used for a different movement"}

	ErrSequenceExhausted      = &Error{Kind: KindInfrastructure, Code: "sequence_exhausted", Message: "could not allocate a unique account number"}
	ErrPartialTransferFailure = &Error{Kind: KindInfrastructure, Code: "partial_transfer_failure", Message: "transfer outcome unknown", Retryable: true}
)

// Errorf returns a copy of base with a formatted message.
func Errorf(base *Error, format string, args ...any) error {
	return &Error{
		Kind:      base.Kind,
		Code:      base.Code,
		Message:   fmt.Sprintf(format, args...),
		Retryable: base.Retryable,
	}
}

// Wrap returns a copy of base that carries cause.
func Wrap(base *Error, cause error) error {
	return &Error{
		Kind:      base.Kind,
		Code:      base.Code,
		Message:   base.Message,
		Retryable: base.Retryable,
		Err:       cause,
	}
}

// KindOf reports the kind of the first ledger error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf reports the stable code of err, or "internal" for foreign errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

// IsRetryable reports whether the caller may safely retry the operation.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}
