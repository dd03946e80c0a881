// Package postgres implements storage.Store on a pgx connection pool.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"expense-insights/internal/models"
	"expense-insights/internal/storage"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

// Store is a storage.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// New connects to dsn, migrates the schema and returns a ready Store.
func New(ctx context.Context, dsn string) (*Store, error) {
	if err := Migrate(dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate applies the embedded migrations to the database at dsn.
func Migrate(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(dsn))
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// migrateURL rewrites a postgres DSN to the scheme of migrate's pgx/v5 driver.
func migrateURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, password_hash) VALUES ($1, $2)
		RETURNING id, username, password_hash, created_at
	`, username, passwordHash).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, storage.ErrDuplicateUsername
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.getUser(ctx, "id = $1", id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, "username = $1", username)
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE "+where, arg,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) UserCount(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&n)
	return n, err
}

func (s *Store) CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO sessions (token, user_id, expires_at, last_activity) VALUES ($1, $2, $3, $4)",
		token, userID, expiresAt.UTC(), time.Now().UTC(),
	)
	return err
}

func (s *Store) ValidateSession(ctx context.Context, token string) (*models.User, error) {
	info, err := s.ValidateSessionWithInfo(ctx, token)
	if err != nil {
		return nil, err
	}
	return info.User, nil
}

func (s *Store) ValidateSessionWithInfo(ctx context.Context, token string) (*models.SessionInfo, error) {
	var u models.User
	var info models.SessionInfo
	err := s.pool.QueryRow(ctx, `
		SELECT u.id, u.username, u.password_hash, u.created_at, s.last_activity, s.expires_at
		FROM sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.token = $1 AND s.expires_at > $2
	`, token, time.Now().UTC()).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &info.LastActivity, &info.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	info.User = &u
	return &info, nil
}

func (s *Store) RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE sessions SET last_activity = $1, expires_at = $2 WHERE token = $3",
		time.Now().UTC(), newExpiresAt.UTC(), token,
	)
	return err
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM sessions WHERE token = $1", token)
	return err
}

func (s *Store) CleanExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM sessions WHERE expires_at <= $1", time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const expenseColumns = "id, user_id, to_char(date, 'YYYY-MM-DD'), category, amount::text, description"

func (s *Store) CreateExpense(ctx context.Context, e *models.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO expenses (user_id, date, category, amount, description)
		VALUES ($1, $2::text::date, $3, $4::text::numeric, $5)
		RETURNING id
	`, e.UserID, e.DateString(), e.Category, e.AmountString(), e.Description).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	return nil
}

func (s *Store) ImportExpenses(ctx context.Context, expenses []models.Expense) error {
	for i := range expenses {
		if err := expenses[i].Validate(); err != nil {
			return fmt.Errorf("expense %d: %w", i+1, err)
		}
	}

	ids := make([]int64, len(expenses))
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for i, e := range expenses {
			err := tx.QueryRow(ctx, `
				INSERT INTO expenses (user_id, date, category, amount, description)
				VALUES ($1, $2::text::date, $3, $4::text::numeric, $5)
				RETURNING id
			`, e.UserID, e.DateString(), e.Category, e.AmountString(), e.Description).Scan(&ids[i])
			if err != nil {
				return fmt.Errorf("insert expense %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for i := range expenses {
		expenses[i].ID = ids[i]
	}
	return nil
}

func (s *Store) GetExpense(ctx context.Context, userID, id int64) (*models.Expense, error) {
	e, err := scanExpense(s.pool.QueryRow(ctx, "SELECT "+expenseColumns+" FROM expenses WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if e.UserID != userID {
		return nil, storage.ErrForbidden
	}
	return e, nil
}

func (s *Store) UpdateExpense(ctx context.Context, userID int64, e *models.Expense) (models.MutationResult, error) {
	if err := e.Validate(); err != nil {
		return models.MutationNotFound, err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE expenses
		SET date = $1::text::date, category = $2, amount = $3::text::numeric, description = $4
		WHERE id = $5 AND user_id = $6
	`, e.DateString(), e.Category, e.AmountString(), e.Description, e.ID, userID)
	if err != nil {
		return models.MutationNotFound, fmt.Errorf("update expense: %w", err)
	}
	return s.mutationResult(ctx, tag, e.ID)
}

func (s *Store) DeleteExpense(ctx context.Context, userID, id int64) (models.MutationResult, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM expenses WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return models.MutationNotFound, fmt.Errorf("delete expense: %w", err)
	}
	return s.mutationResult(ctx, tag, id)
}

func (s *Store) mutationResult(ctx context.Context, tag pgconn.CommandTag, id int64) (models.MutationResult, error) {
	if tag.RowsAffected() > 0 {
		return models.MutationApplied, nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM expenses WHERE id = $1)", id).Scan(&exists); err != nil {
		return models.MutationNotFound, err
	}
	if exists {
		return models.MutationForbidden, nil
	}
	return models.MutationNotFound, nil
}

func (s *Store) ListExpenses(ctx context.Context, userID int64) ([]models.Expense, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE user_id = $1 ORDER BY date ASC, id ASC",
		userID,
	)
	if err != nil {
		return nil, err
	}
	return collectExpenses(rows)
}

func (s *Store) SearchExpenses(ctx context.Context, userID int64, f models.ExpenseFilter) (*models.ExpensePage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE user_id = $1 AND (category ILIKE $2 OR description ILIKE $2)
		ORDER BY date DESC, id DESC
		LIMIT $3 OFFSET $4
	`, userID, storage.LikePattern(f.Search), f.Limit()+1, f.Offset())
	if err != nil {
		return nil, err
	}
	items, err := collectExpenses(rows)
	if err != nil {
		return nil, err
	}
	page := &models.ExpensePage{Items: items}
	if len(items) > f.Limit() {
		page.Items = items[:f.Limit()]
		page.HasNext = true
	}
	return page, nil
}

func scanExpense(row pgx.Row) (*models.Expense, error) {
	var e models.Expense
	var date, amount string
	if err := row.Scan(&e.ID, &e.UserID, &date, &e.Category, &amount, &e.Description); err != nil {
		return nil, err
	}
	var err error
	if e.Date, err = models.ParseDate(date); err != nil {
		return nil, fmt.Errorf("expense %d: %w", e.ID, err)
	}
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("expense %d: %w", e.ID, models.ErrInvalidAmount)
	}
	return &e, nil
}

func collectExpenses(rows pgx.Rows) ([]models.Expense, error) {
	defer rows.Close()

	var expenses []models.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *e)
	}
	return expenses, rows.Err()
}
