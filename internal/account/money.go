package account

import (
	"errors"

	"github.com/shopspring/decimal"
)

// MinorUnitExponent is the number of decimal places kept for cash amounts.
const MinorUnitExponent = 2

// ErrInvalidAmount is returned for malformed, non-positive or over-precise amounts.
var ErrInvalidAmount = errors.New("amount must be a positive decimal with at most 2 places")

// ParseAmount converts a decimal string such as "1500.50" into minor units.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return 0, ErrInvalidAmount
	}
	minor := d.Shift(MinorUnitExponent)
	if !minor.IsInteger() {
		return 0, ErrInvalidAmount
	}
	return minor.IntPart(), nil
}

// FormatAmount renders minor units as a fixed two-place decimal string.
func FormatAmount(minor int64) string {
	return decimal.New(minor, -MinorUnitExponent).StringFixed(MinorUnitExponent)
}
