package models

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount      = errors.New("amount must be a non-negative number")
	ErrInvalidDate        = errors.New("date must be in YYYY-MM-DD format")
	ErrEmptyCategory      = errors.New("category is required")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
)

const maxDescriptionLength = 200

// MaxAmount is the exclusive upper bound of an amount. It matches the
// NUMERIC(14,2) column of the PostgreSQL schema.
var MaxAmount = decimal.New(1, 12)

// Plain digits with an optional fraction. A comma is accepted as the decimal
// separator only before one or two digits, so "1,234" is never read as 1.23.
var (
	dotAmount   = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
	commaAmount = regexp.MustCompile(`^[0-9]+,[0-9]{1,2}$`)
)

// ParseAmount parses a non-negative decimal amount below MaxAmount. Exponents,
// signs and digit grouping are rejected. The result is rounded half-up to two
// fractional digits.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	switch {
	case dotAmount.MatchString(s):
	case commaAmount.MatchString(s):
		s = strings.Replace(s, ",", ".", 1)
	default:
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(2)
	if !validAmount(d) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

func validAmount(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThan(MaxAmount)
}

// ParseDate parses a calendar date in DateLayout. Only the date part of an
// ISO timestamp is considered.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) && (s[len(DateLayout)] == 'T' || s[len(DateLayout)] == ' ') {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// NewExpense validates raw form values and builds an expense for userID.
func NewExpense(userID int64, date, category, amount, description string) (Expense, error) {
	d, err := ParseDate(date)
	if err != nil {
		return Expense{}, err
	}
	a, err := ParseAmount(amount)
	if err != nil {
		return Expense{}, err
	}
	e := Expense{
		UserID:      userID,
		Date:        d,
		Category:    strings.TrimSpace(category),
		Amount:      a,
		Description: strings.TrimSpace(description),
	}
	return e, e.Validate()
}

// Validate checks the write-time invariants of an expense.
func (e Expense) Validate() error {
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if !validAmount(e.Amount) {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if len(e.Description) > maxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}
