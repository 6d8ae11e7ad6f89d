// Package core holds the domain model shared by every layer: money records,
// transactions, users, and the fixed-point money representation.
//
// Amounts are carried as integer cents everywhere inside the service.
// Decimal strings only exist at the boundaries (JSON bodies, CSV cells) and
// are converted here, so no binary floating point ever touches a sum.
package core

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseAmount converts a decimal amount string (e.g. "12.34") to positive
// cents with half-up rounding on anything past the second decimal place.
// Returns ErrInvalidAmount for malformed input, zero, or negative values.
//
// Examples:
//
//	ParseAmount("12.34")  -> 1234, nil
//	ParseAmount("12.345") -> 1235, nil (rounds half-up)
//	ParseAmount("-5")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	cents := d.Mul(hundred).Round(0)
	if !cents.IsPositive() {
		return Money{}, ErrInvalidAmount
	}
	// Reject values that overflow int64 cents.
	if !cents.BigInt().IsInt64() {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: cents.IntPart()}, nil
}

// Decimal returns the amount as an exact decimal value.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String renders the amount as a plain decimal string with two places,
// e.g. 1234 cents -> "12.34". Used for JSON and CSV output.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Add returns the sum of two amounts.
func (m Money) Add(other Money) Money {
	return Money{Cents: m.Cents + other.Cents}
}

// Sub returns the difference m - other. The result may be negative; a net
// balance is the one place a signed value is legitimate.
func (m Money) Sub(other Money) Money {
	return Money{Cents: m.Cents - other.Cents}
}
