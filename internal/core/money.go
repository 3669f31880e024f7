// Package core provides money parsing and handling utilities.
//
// This file contains the conversion between user-supplied decimal amounts
// and the integer cents that every store persists. Amounts never pass
// through float64 until they are rendered for a response.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmount is the largest storable magnitude: ten significant digits,
// two of them fractional.
var MaxAmount = decimal.RequireFromString("99999999.99")

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrNegativeAmount  = errors.New("amount must not be negative")
	ErrAmountPrecision = errors.New("amount must have at most 2 decimal places")
	ErrAmountTooLarge  = errors.New("amount must have at most 10 digits")
)

type Money struct {
	Cents int64
}

// ParseAmount converts a decimal string to Money.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators; a comma
// must be the only separator and be followed by one or two digits. Unlike a
// rounding parser it rejects a third fractional digit instead of guessing,
// and it rejects negative values; zero is a valid amount.
//
// Examples:
//
//	ParseAmount("12.34")  -> {1234}, nil
//	ParseAmount("12,3")   -> {1230}, nil
//	ParseAmount("12.345") -> error
//	ParseAmount("1,000")  -> error
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	if whole, frac, ok := strings.Cut(s, ","); ok {
		// a comma is only a decimal separator: "1,000" is rejected, not 1.00
		if strings.ContainsAny(frac, ",.") || len(frac) < 1 || len(frac) > 2 {
			return Money{}, ErrInvalidAmount
		}
		s = whole + "." + frac
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return MoneyFromDecimal(d)
}

// MoneyFromDecimal validates d and converts it to cents.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return Money{}, ErrNegativeAmount
	}
	if !d.Equal(d.Truncate(2)) {
		return Money{}, ErrAmountPrecision
	}
	if d.GreaterThan(MaxAmount) {
		return Money{}, ErrAmountTooLarge
	}
	return Money{Cents: d.Shift(2).IntPart()}, nil
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrNegativeAmount
	}
	if m.Cents > MaxAmount.Shift(2).IntPart() {
		return ErrAmountTooLarge
	}
	return nil
}

// Decimal returns the exact decimal value of m.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String renders m with exactly two fractional digits, e.g. "200.50".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}
