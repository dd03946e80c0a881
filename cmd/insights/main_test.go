package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"expense-insights/internal/models"
	"expense-insights/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDB(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "insights.db")

	db, err := storage.NewDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	user, err := db.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)
	for _, e := range []struct{ date, category, amount string }{
		{"2025-01-10", "Food", "250"},
		{"2025-02-10", "Transport", "120"},
		{"2025-03-10", "Food", "180"},
	} {
		exp, err := models.NewExpense(user.ID, e.date, e.category, e.amount, "")
		require.NoError(t, err)
		require.NoError(t, db.CreateExpense(ctx, &exp))
	}
	_, err = db.CreateUser(ctx, "bob", "hash")
	require.NoError(t, err)
	return dbPath
}

func TestRun_UserReport(t *testing.T) {
	dbPath := seedDB(t)
	stdout := new(bytes.Buffer)

	err := run(context.Background(), []string{"-user", "alice", "-db", dbPath}, stdout, new(bytes.Buffer))
	require.NoError(t, err)

	out := stdout.String()
	assert.Contains(t, out, "Spending insights for alice")
	assert.Contains(t, out, "550.00")
	assert.Contains(t, out, "Food (78.18%)")
	assert.Contains(t, out, "113.33")
	assert.Contains(t, out, "saver")
	assert.Contains(t, out, "You are overspending on Food.")
	assert.Contains(t, out, "2025-02")
}

func TestRun_UserWithoutExpenses(t *testing.T) {
	dbPath := seedDB(t)
	stdout := new(bytes.Buffer)

	err := run(context.Background(), []string{"-user", "bob", "-db", dbPath}, stdout, new(bytes.Buffer))
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "No expenses recorded yet.")
}

func TestRun_UnknownUser(t *testing.T) {
	dbPath := seedDB(t)

	err := run(context.Background(), []string{"-user", "carol", "-db", dbPath}, new(bytes.Buffer), new(bytes.Buffer))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user carol not found")
}

func TestRun_MissingDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "absent.db")

	err := run(context.Background(), []string{"-user", "alice", "-db", dbPath}, new(bytes.Buffer), new(bytes.Buffer))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open database")
	assert.NoFileExists(t, dbPath)
}

func TestRun_CSVReport(t *testing.T) {
	csvPath := filepath.Join(t.TempDir(), "export.csv")
	content := "date,category,amount,description\n" +
		"2025-01-10,Food,250,\n" +
		"2025-02-10,Transport,120,bus\n" +
		"not-a-date,Food,180,\n" +
		"2025-03-10,Food,abc,\n"
	require.NoError(t, os.WriteFile(csvPath, []byte(content), 0o600))

	stdout := new(bytes.Buffer)
	err := run(context.Background(), []string{"-csv", csvPath}, stdout, new(bytes.Buffer))
	require.NoError(t, err)

	out := stdout.String()
	assert.Contains(t, out, "550.00")
	assert.Contains(t, out, "3 (1 skipped)")
}

func TestRun_MissingFlags(t *testing.T) {
	stdout := new(bytes.Buffer)

	err := run(context.Background(), nil, stdout, new(bytes.Buffer))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required flags")
	assert.Contains(t, stdout.String(), "Usage:")
}
