// Package core provides money parsing and handling utilities.
//
// This file contains the decimal-backed Money type and the amount parser used
// by manual entry, CSV import and inline edits.
package core

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a non-negative decimal magnitude. Sums are exact; rounding to two
// decimals happens only in Display and StringFixed.
type Money struct {
	d decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{}

// NewMoney wraps a decimal value.
func NewMoney(d decimal.Decimal) Money {
	return Money{d: d}
}

// MoneyFromCents builds a Money from an integer number of cents.
func MoneyFromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -2)}
}

// MustMoney parses s and panics on error. Intended for tests and constants.
func MustMoney(s string) Money {
	m, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return m
}

// ParseAmount converts a user or CSV supplied amount into Money.
//
// It accepts both dot (45.20) and comma (45,20) decimal separators. When both
// appear the last one is the decimal separator and the other is treated as
// thousands grouping ("1.234,56" and "1,234.56" are both 1234.56). A euro sign
// and surrounding spaces are ignored. The absolute value is returned.
//
// Examples:
//
//	ParseAmount("45,20")    -> 45.20
//	ParseAmount("-12.5")    -> 12.50
//	ParseAmount("1.234,56") -> 1234.56
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.Trim(s, "€"))
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return Money{}, ErrInvalidAmount
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0 && lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastComma >= 0 && lastDot >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return Money{}, ErrInvalidAmount
		}
		s = strings.Replace(s, ",", ".", 1)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return Money{d: d.Abs()}, nil
}

// Decimal exposes the underlying value.
func (m Money) Decimal() decimal.Decimal { return m.d }

func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }

func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }

// Half returns m/2 without rounding.
func (m Money) Half() Money { return Money{d: m.d.Div(decimal.NewFromInt(2))} }

// DivInt divides by n with 8 decimal places of precision. Division by zero yields Zero.
func (m Money) DivInt(n int) Money {
	if n == 0 {
		return Zero
	}
	return Money{d: m.d.DivRound(decimal.NewFromInt(int64(n)), 8)}
}

func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }

func (m Money) Equal(o Money) bool { return m.d.Equal(o.d) }

func (m Money) GreaterThan(o Money) bool { return m.d.GreaterThan(o.d) }

func (m Money) IsZero() bool { return m.d.IsZero() }

func (m Money) IsNegative() bool { return m.d.IsNegative() }

// String returns the exact value using a dot separator.
func (m Money) String() string { return m.d.String() }

// StringFixed returns the value rounded to two decimals with a dot separator.
func (m Money) StringFixed() string { return m.d.StringFixed(2) }

// Display formats the amount for the UI, e.g. "1.234,50 €".
func (m Money) Display() string {
	fixed := m.d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	sign := ""
	if m.d.IsNegative() {
		sign = "-"
	}
	return sign + b.String() + "," + frac + " €"
}

// Float64 is only meant for chart payloads.
func (m Money) Float64() float64 {
	f, _ := m.d.Float64()
	return f
}

// MarshalJSON encodes the amount as a bare JSON number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.d.String()), nil
}

// UnmarshalJSON accepts both numbers and quoted strings.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	m.d = d
	return nil
}

// Value implements driver.Valuer.
func (m Money) Value() (driver.Value, error) {
	return m.d.String(), nil
}

// Scan implements sql.Scanner.
func (m *Money) Scan(src any) error {
	return m.d.Scan(src)
}
