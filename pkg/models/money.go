// Package models defines the shared domain types for the Agora marketplace
// runtime: service descriptors, money, subtasks, payment artifacts, and the
// orchestration ledger entries exchanged between packages.
package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MicrosPerUnit is the number of micro-units in one whole currency unit.
// All balances and prices are carried as int64 micro-units so that budget
// arithmetic is exact; floats appear only inside ranking normalization.
const MicrosPerUnit int64 = 1_000_000

// ErrMalformedAmount indicates a money string that could not be parsed.
var ErrMalformedAmount = errors.New("malformed amount")

// Money is an exact monetary amount in micro-units of a currency.
type Money struct {
	// Micros is the amount in 1/1,000,000ths of a unit. Never negative
	// for prices; deltas may be negative during reservation release.
	Micros int64 `json:"micros"`
	// Currency is the currency code, e.g. "USDC".
	Currency string `json:"currency"`
}

// NewMoney builds a Money value from micro-units.
func NewMoney(micros int64, currency string) Money {
	return Money{Micros: micros, Currency: currency}
}

// ParseMoney parses a decimal string such as "0.03" into a Money value.
// At most six fractional digits are accepted.
func ParseMoney(s, currency string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, fmt.Errorf("%w: empty string", ErrMalformedAmount)
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	whole := s
	frac := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 6 {
		return Money{}, fmt.Errorf("%w: more than 6 fractional digits in %q", ErrMalformedAmount, s)
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
	}

	var f int64
	if frac != "" {
		f, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return Money{}, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
		}
		for i := len(frac); i < 6; i++ {
			f *= 10
		}
	}

	micros := w*MicrosPerUnit + f
	if neg {
		micros = -micros
	}
	return Money{Micros: micros, Currency: currency}, nil
}

// IsZero returns true for a zero amount.
func (m Money) IsZero() bool {
	return m.Micros == 0
}

// Negative returns true if the amount is below zero.
func (m Money) Negative() bool {
	return m.Micros < 0
}

// Add returns m + other. Currencies must match and the sum must fit in
// int64; mismatches and overflow are programming errors and panic rather
// than silently wrapping a balance.
func (m Money) Add(other Money) Money {
	m.mustMatch(other)
	sum := m.Micros + other.Micros
	if (other.Micros > 0 && sum < m.Micros) || (other.Micros < 0 && sum > m.Micros) {
		panic(fmt.Sprintf("money overflow: %d + %d", m.Micros, other.Micros))
	}
	return Money{Micros: sum, Currency: m.Currency}
}

// Sub returns m - other, with the same overflow rule as Add.
func (m Money) Sub(other Money) Money {
	m.mustMatch(other)
	diff := m.Micros - other.Micros
	if (other.Micros < 0 && diff < m.Micros) || (other.Micros > 0 && diff > m.Micros) {
		panic(fmt.Sprintf("money overflow: %d - %d", m.Micros, other.Micros))
	}
	return Money{Micros: diff, Currency: m.Currency}
}

// Cmp compares m against other: -1 if less, 0 if equal, 1 if greater.
func (m Money) Cmp(other Money) int {
	m.mustMatch(other)
	switch {
	case m.Micros < other.Micros:
		return -1
	case m.Micros > other.Micros:
		return 1
	default:
		return 0
	}
}

// LessThan reports m < other.
func (m Money) LessThan(other Money) bool {
	return m.Cmp(other) < 0
}

// Units returns the amount as a float64 of whole units. Display only.
func (m Money) Units() float64 {
	return float64(m.Micros) / float64(MicrosPerUnit)
}

// String formats the amount as "0.030000 USDC" with trailing zeros trimmed.
func (m Money) String() string {
	sign := ""
	micros := m.Micros
	if micros < 0 {
		sign = "-"
		micros = -micros
	}
	whole := micros / MicrosPerUnit
	frac := micros % MicrosPerUnit
	if frac == 0 {
		return fmt.Sprintf("%s%d %s", sign, whole, m.Currency)
	}
	fracStr := strings.TrimRight(fmt.Sprintf("%06d", frac), "0")
	return fmt.Sprintf("%s%d.%s %s", sign, whole, fracStr, m.Currency)
}

func (m Money) mustMatch(other Money) {
	if m.Currency != other.Currency && m.Currency != "" && other.Currency != "" {
		panic(fmt.Sprintf("currency mismatch: %s vs %s", m.Currency, other.Currency))
	}
}
