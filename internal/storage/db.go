package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"expense-insights/internal/models"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB is the SQLite implementation of Store.
type DB struct {
	conn *sql.DB
}

var _ Store = (*DB)(nil)

// NewDB opens a SQLite database at path (":memory:" for a private in-memory
// database) and migrates it to the latest schema.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases coherent and serializes writers.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := migrateSQLite(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

// CreateUser creates a new user with the given username and password hash.
func (db *DB) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	result, err := db.conn.ExecContext(ctx,
		"INSERT INTO users (username, password_hash) VALUES (?, ?)",
		username, passwordHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateUsername
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE id = ?",
		id,
	)
	return scanUser(row)
}

// GetUserByUsername retrieves a user by username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE username = ?",
		username,
	)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// UserCount returns the number of users in the database.
func (db *DB) UserCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

// CreateSession creates a new session for a user.
func (db *DB) CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO sessions (token, user_id, expires_at, last_activity) VALUES (?, ?, ?, ?)",
		token, userID, expiresAt.UTC(), time.Now().UTC(),
	)
	return err
}

// ValidateSession checks if a session token is valid and returns the associated user.
func (db *DB) ValidateSession(ctx context.Context, token string) (*models.User, error) {
	info, err := db.ValidateSessionWithInfo(ctx, token)
	if err != nil {
		return nil, err
	}
	return info.User, nil
}

// ValidateSessionWithInfo checks if a session token is valid and returns session details.
func (db *DB) ValidateSessionWithInfo(ctx context.Context, token string) (*models.SessionInfo, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.password_hash, u.created_at, s.last_activity, s.expires_at
		FROM sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.token = ? AND s.expires_at > ?
	`, token, time.Now().UTC())

	var u models.User
	var info models.SessionInfo
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &info.LastActivity, &info.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	info.User = &u
	return &info, nil
}

// RenewSession updates the last_activity and expires_at for a session.
func (db *DB) RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE sessions SET last_activity = ?, expires_at = ? WHERE token = ?",
		time.Now().UTC(), newExpiresAt.UTC(), token,
	)
	return err
}

// DeleteSession removes a session by token.
func (db *DB) DeleteSession(ctx context.Context, token string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token)
	return err
}

// CleanExpiredSessions removes all expired sessions and reports how many were removed.
func (db *DB) CleanExpiredSessions(ctx context.Context) (int64, error) {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CreateExpense inserts e and sets its ID.
func (db *DB) CreateExpense(ctx context.Context, e *models.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	res, err := db.conn.ExecContext(ctx,
		"INSERT INTO expenses (user_id, date, category, amount, description) VALUES (?, ?, ?, ?, ?)",
		e.UserID, e.DateString(), e.Category, e.AmountString(), e.Description,
	)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	e.ID, err = res.LastInsertId()
	return err
}

// ImportExpenses inserts expenses atomically.
func (db *DB) ImportExpenses(ctx context.Context, expenses []models.Expense) error {
	for i := range expenses {
		if err := expenses[i].Validate(); err != nil {
			return fmt.Errorf("expense %d: %w", i+1, err)
		}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO expenses (user_id, date, category, amount, description) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare import: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, len(expenses))
	for i, e := range expenses {
		res, err := stmt.ExecContext(ctx, e.UserID, e.DateString(), e.Category, e.AmountString(), e.Description)
		if err != nil {
			return fmt.Errorf("insert expense %d: %w", i+1, err)
		}
		if ids[i], err = res.LastInsertId(); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	for i := range expenses {
		expenses[i].ID = ids[i]
	}
	return nil
}

// GetExpense retrieves a single expense owned by userID.
func (db *DB) GetExpense(ctx context.Context, userID, id int64) (*models.Expense, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, user_id, date, category, amount, description FROM expenses WHERE id = ?",
		id,
	)
	e, err := scanExpense(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if e.UserID != userID {
		return nil, ErrForbidden
	}
	return e, nil
}

// UpdateExpense replaces every field of an owned expense except its ID and owner.
func (db *DB) UpdateExpense(ctx context.Context, userID int64, e *models.Expense) (models.MutationResult, error) {
	if err := e.Validate(); err != nil {
		return models.MutationNotFound, err
	}
	res, err := db.conn.ExecContext(ctx,
		"UPDATE expenses SET date = ?, category = ?, amount = ?, description = ? WHERE id = ? AND user_id = ?",
		e.DateString(), e.Category, e.AmountString(), e.Description, e.ID, userID,
	)
	if err != nil {
		return models.MutationNotFound, fmt.Errorf("update expense: %w", err)
	}
	return db.mutationResult(ctx, res, e.ID)
}

// DeleteExpense removes an owned expense.
func (db *DB) DeleteExpense(ctx context.Context, userID, id int64) (models.MutationResult, error) {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM expenses WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return models.MutationNotFound, fmt.Errorf("delete expense: %w", err)
	}
	return db.mutationResult(ctx, res, id)
}

// mutationResult tells a missing row apart from one owned by someone else
// when an owner-scoped statement touched nothing.
func (db *DB) mutationResult(ctx context.Context, res sql.Result, id int64) (models.MutationResult, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return models.MutationNotFound, err
	}
	if n > 0 {
		return models.MutationApplied, nil
	}
	var exists bool
	err = db.conn.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM expenses WHERE id = ?)", id).Scan(&exists)
	if err != nil {
		return models.MutationNotFound, err
	}
	if exists {
		return models.MutationForbidden, nil
	}
	return models.MutationNotFound, nil
}

// ListExpenses returns every expense of userID, oldest first.
func (db *DB) ListExpenses(ctx context.Context, userID int64) ([]models.Expense, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, user_id, date, category, amount, description FROM expenses WHERE user_id = ? ORDER BY date ASC, id ASC",
		userID,
	)
	if err != nil {
		return nil, err
	}
	return collectExpenses(rows)
}

// SearchExpenses returns one page of userID's expenses whose category or
// description contains f.Search, newest first.
func (db *DB) SearchExpenses(ctx context.Context, userID int64, f models.ExpenseFilter) (*models.ExpensePage, error) {
	pattern := LikePattern(f.Search)
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, date, category, amount, description
		FROM expenses
		WHERE user_id = ?
		AND (category LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\')
		ORDER BY date DESC, id DESC
		LIMIT ? OFFSET ?
	`, userID, pattern, pattern, f.Limit()+1, f.Offset())
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

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(s scanner) (*models.Expense, error) {
	var e models.Expense
	var date, amount string
	if err := s.Scan(&e.ID, &e.UserID, &date, &e.Category, &amount, &e.Description); err != nil {
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

func collectExpenses(rows *sql.Rows) ([]models.Expense, error) {
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
