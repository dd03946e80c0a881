package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the storage and wire format of an expense date.
const DateLayout = "2006-01-02"

// HistoryPageSize is the number of expenses shown per history page.
const HistoryPageSize = 5

// MaxPage caps the page number of a filter so the row offset cannot overflow.
const MaxPage = 1_000_000

// Expense represents a single dated spending record owned by one user.
type Expense struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	Date        time.Time       `json:"date"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// DateString returns the expense date in DateLayout.
func (e Expense) DateString() string {
	return e.Date.Format(DateLayout)
}

// AmountString returns the amount with two fractional digits.
func (e Expense) AmountString() string {
	return e.Amount.StringFixed(2)
}

// User represents a user account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session represents a user session.
type Session struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionInfo holds session validation data.
type SessionInfo struct {
	User         *User
	LastActivity time.Time
	ExpiresAt    time.Time
}

// ExpenseFilter selects one page of a user's expense history.
type ExpenseFilter struct {
	Search   string
	Page     int
	PageSize int
}

// Offset returns the row offset for the filter's page, treating pages below 1
// as the first and pages above MaxPage as MaxPage.
func (f ExpenseFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (min(f.Page, MaxPage) - 1) * f.Limit()
}

// Limit returns the page size, falling back to HistoryPageSize.
func (f ExpenseFilter) Limit() int {
	if f.PageSize < 1 {
		return HistoryPageSize
	}
	return f.PageSize
}

// ExpensePage is one page of filtered expenses, newest first.
type ExpensePage struct {
	Items   []Expense
	HasNext bool
}

// MutationResult reports the outcome of an owner-scoped update or delete.
type MutationResult int

const (
	// MutationApplied means the row existed, belonged to the caller and was changed.
	MutationApplied MutationResult = iota
	// MutationNotFound means no row has the given id.
	MutationNotFound
	// MutationForbidden means the row exists but belongs to another user.
	MutationForbidden
)

func (r MutationResult) String() string {
	switch r {
	case MutationApplied:
		return "applied"
	case MutationNotFound:
		return "not-found"
	case MutationForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}
