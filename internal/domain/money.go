package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a fixed-point amount that always renders with two decimal places.
// Arithmetic happens on decimal.Decimal; Money exists for presentation.
type Money decimal.Decimal

var (
	feeRate        = decimal.RequireFromString("0.01")
	feeThreshold   = decimal.NewFromInt(1000)
	nonBusinessFee = decimal.RequireFromString("5.00")
)

// NewMoney wraps d rounded to cents.
func NewMoney(d decimal.Decimal) Money {
	return Money(d.Round(2))
}

// ParseMoney parses a decimal string such as "1200.50".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, Errorf(ErrInvalidInput, "invalid amount %q", s)
	}
	return NewMoney(d), nil
}

// Decimal returns the underlying value.
func (m Money) Decimal() decimal.Decimal {
	return decimal.Decimal(m)
}

// String returns the amount with exactly two decimals.
func (m Money) String() string {
	return decimal.Decimal(m).StringFixed(2)
}

// MarshalJSON renders the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts both quoted and bare numbers.
func (m *Money) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("decode money: %w", err)
	}
	*m = Money(d)
	return nil
}
