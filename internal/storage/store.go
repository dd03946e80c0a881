package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"expense-insights/internal/models"
)

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when a row exists but belongs to another user.
	ErrForbidden = errors.New("forbidden")
	// ErrDuplicateUsername is returned when signing up with a taken username.
	ErrDuplicateUsername = errors.New("username already exists")
)

// Store is the record store for users, sessions and expenses. Every expense
// read and mutation is scoped to an owner id.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UserCount(ctx context.Context) (int, error)

	CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error
	ValidateSession(ctx context.Context, token string) (*models.User, error)
	ValidateSessionWithInfo(ctx context.Context, token string) (*models.SessionInfo, error)
	RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error
	DeleteSession(ctx context.Context, token string) error
	CleanExpiredSessions(ctx context.Context) (int64, error)

	CreateExpense(ctx context.Context, e *models.Expense) error
	// ImportExpenses inserts every expense in one transaction: either all rows
	// are stored (and their IDs set) or none are.
	ImportExpenses(ctx context.Context, expenses []models.Expense) error
	GetExpense(ctx context.Context, userID, id int64) (*models.Expense, error)
	UpdateExpense(ctx context.Context, userID int64, e *models.Expense) (models.MutationResult, error)
	DeleteExpense(ctx context.Context, userID, id int64) (models.MutationResult, error)
	ListExpenses(ctx context.Context, userID int64) ([]models.Expense, error)
	SearchExpenses(ctx context.Context, userID int64, f models.ExpenseFilter) (*models.ExpensePage, error)

	Close() error
}

// LikePattern builds a substring LIKE pattern with wildcards in s escaped by a backslash.
func LikePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
