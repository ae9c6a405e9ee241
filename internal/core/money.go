// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and converting between cents and decimal representations.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in integer cents.
type Money struct {
	Cents int64
}

var hundred = decimal.NewFromInt(100)

// ParseMoney converts a decimal string to Money.
//
// Both dot (12.34) and comma (12,34) separators are accepted. Values are
// rounded half away from zero to two places. Zero, negative and malformed
// values are rejected with ErrInvalidArgument.
//
// Examples:
//
//	ParseMoney("12.34")  -> {1234}, nil
//	ParseMoney("12,34")  -> {1234}, nil
//	ParseMoney("12.345") -> {1235}, nil
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return MoneyFromDecimal(d)
}

// MoneyFromDecimal rounds d to cents and rejects non-positive amounts.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	cents := d.Mul(hundred).Round(0)
	if !cents.IsPositive() {
		return Money{}, fmt.Errorf("%w: %s", ErrInvalidAmount, d.String())
	}
	if cents.GreaterThan(decimal.NewFromInt(MaxCents)) {
		return Money{}, fmt.Errorf("%w: %s exceeds %s", ErrInvalidAmount, d.String(), Money{Cents: MaxCents})
	}
	return Money{Cents: cents.IntPart()}, nil
}

// ErrInvalidAmount is an ErrInvalidArgument raised for amounts.
var ErrInvalidAmount = fmt.Errorf("%w: amount must be a positive number", ErrInvalidArgument)

// MaxCents bounds a single amount so sums over many budgets stay far
// inside int64.
const MaxCents int64 = 100_000_000_000_00

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	if m.Cents > MaxCents {
		return fmt.Errorf("%w: %d cents exceeds the maximum of %d", ErrInvalidAmount, m.Cents, MaxCents)
	}
	return nil
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }

func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String formats the amount with two decimal places, e.g. "12.30".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON renders the amount as a JSON number with two decimal places.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts both JSON numbers and strings.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, string(data))
	}
	parsed, err := MoneyFromDecimal(d)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
