package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"expense-insights/internal/auth"
	"expense-insights/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	stdout, stderr string
	err            error
}

func runCmd(args []string, input string) result {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, bytes.NewBufferString(input), &stdout, &stderr)
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// storedUserMatches opens dbPath and checks that username exists with password.
func storedUserMatches(t *testing.T, dbPath, username, password string) {
	t.Helper()
	db, err := storage.NewDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	u, err := db.GetUserByUsername(context.Background(), username)
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(password, u.PasswordHash), "stored hash does not match %q", password)
}

func TestRun(t *testing.T) {
	tests := []struct {
		name      string
		args      func(dbPath string) []string
		input     string
		wantErr   string
		wantOut   []string
		checkUser string
		checkPass string
	}{
		{
			name:      "password flag",
			args:      func(db string) []string { return []string{"-user", "alice", "-password", "secret", "-db", db} },
			wantOut:   []string{"User alice created successfully"},
			checkUser: "alice",
			checkPass: "secret",
		},
		{
			name:      "prompted password",
			args:      func(db string) []string { return []string{"-user", "bob", "-db", db} },
			input:     "from-stdin\n",
			wantOut:   []string{"Password: ", "User bob created successfully"},
			checkUser: "bob",
			checkPass: "from-stdin",
		},
		{
			name:      "prompted password without newline",
			args:      func(db string) []string { return []string{"-user", "erin", "-db", db} },
			input:     "no-newline\r",
			checkUser: "erin",
			checkPass: "no-newline",
		},
		{
			name:    "empty prompted password",
			args:    func(db string) []string { return []string{"-user", "carol", "-db", db} },
			input:   "\n",
			wantErr: "password cannot be empty",
		},
		{
			name:    "no input at prompt",
			args:    func(db string) []string { return []string{"-user", "carol", "-db", db} },
			wantErr: "failed to read password",
		},
		{
			name:    "missing user",
			args:    func(string) []string { return []string{"-password", "secret"} },
			wantErr: "missing required flags: user",
			wantOut: []string{"Usage:"},
		},
		{
			name:    "unknown flag",
			args:    func(string) []string { return []string{"-invalid"} },
			wantErr: "flag provided but not defined",
		},
		{
			name:    "database path is a directory",
			args:    func(db string) []string { return []string{"-user", "dave", "-password", "secret", "-db", filepath.Dir(db)} },
			wantErr: "failed to open database",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dbPath := filepath.Join(t.TempDir(), "users.db")
			res := runCmd(tt.args(dbPath), tt.input)

			if tt.wantErr != "" {
				require.Error(t, res.err)
				assert.Contains(t, res.err.Error(), tt.wantErr)
			} else {
				require.NoError(t, res.err)
			}
			for _, want := range tt.wantOut {
				assert.Contains(t, res.stdout, want)
			}
			if tt.checkUser != "" {
				storedUserMatches(t, dbPath, tt.checkUser, tt.checkPass)
			}
		})
	}
}

func TestRun_DuplicateUser(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "dup.db")
	args := []string{"-user", "alice", "-password", "secret", "-db", dbPath}

	require.NoError(t, runCmd(args, "").err, "first run should succeed")

	res := runCmd(args, "")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "user alice already exists")
}

func TestRun_PasswordTooShort(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "short.db")

	res := runCmd([]string{"-user", "shorty", "-password", "abc", "-db", dbPath}, "")
	require.Error(t, res.err)
	assert.ErrorIs(t, res.err, auth.ErrPasswordTooShort)
}

func TestRun_DBPathFromEnv(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "env.db")
	t.Setenv("DB_PATH", dbPath)

	require.NoError(t, runCmd([]string{"-user", "envuser", "-password", "secret"}, "").err)
	storedUserMatches(t, dbPath, "envuser", "secret")
}

func TestRun_CreatesDatabaseDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "expenses.db")

	require.NoError(t, runCmd([]string{"-user", "nested", "-password", "secret", "-db", dbPath}, "").err)
	assert.FileExists(t, dbPath)
}
