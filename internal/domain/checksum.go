package domain

import "fmt"

// AccountNumberWidth is the zero-padded width of the sequence part of an account number.
const AccountNumberWidth = 6

// CheckDigit computes the weighted modulo-11 verification digit of digits.
// Weights run 2..9 from the rightmost digit and wrap back to 2; results of
// 10 and 11 map to 0 and 1.
func CheckDigit(digits string) (int, error) {
	if digits == "" {
		return 0, Errorf(ErrInvalidInput, "check digit input must not be empty")
	}

	sum := 0
	weight := 2
	for i := len(digits) - 1; i >= 0; i-- {
		c := digits[i]
		if c < '0' || c > '9' {
			return 0, Errorf(ErrInvalidInput, "check digit input must contain only digits: %q", digits)
		}
		sum += int(c-'0') * weight
		if weight == 9 {
			weight = 2
		} else {
			weight++
		}
	}

	digit := 11 - sum%11
	switch digit {
	case 10:
		return 0, nil
	case 11:
		return 1, nil
	}
	return digit, nil
}

// FormatAccountNumber renders seq as NNNNNN-D.
func FormatAccountNumber(seq int64) (string, error) {
	if seq <= 0 {
		return "", Errorf(ErrInvalidInput, "account sequence must be positive, got %d", seq)
	}
	base := fmt.Sprintf("%0*d", AccountNumberWidth, seq)
	digit, err := CheckDigit(base)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d", base, digit), nil
}

// ValidAccountNumber reports whether number carries a correct check digit.
func ValidAccountNumber(number string) bool {
	if len(number) < 3 || number[len(number)-2] != '-' {
		return false
	}
	base, check := number[:len(number)-2], number[len(number)-1]
	digit, err := CheckDigit(base)
	if err != nil {
		return false
	}
	return int(check-'0') == digit
}
