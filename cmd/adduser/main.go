// Command adduser creates a login account in the expense database.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"expense-insights/internal/auth"
	"expense-insights/internal/storage"
	"expense-insights/internal/storage/postgres"

	"golang.org/x/term"
)

const defaultDBPath = "./data/expenses.db"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	username    string
	password    string
	dbPath      string
	databaseURL string
}

func parseArgs(args []string, stdout, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.username, "user", "", "Username")
	fs.StringVar(&opts.password, "password", "", "Password; prompted for when omitted")
	fs.StringVar(&opts.dbPath, "db", defaultDBPath, "SQLite database file")
	fs.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL URL; takes precedence over -db")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.username == "" {
		fmt.Fprintln(stdout, "Usage: adduser -user <username> [-password <password>] [-db <db_path> | -database-url <url>]")
		fs.PrintDefaults()
		return options{}, errors.New("missing required flags: user")
	}
	if path := os.Getenv("DB_PATH"); path != "" && opts.dbPath == defaultDBPath {
		opts.dbPath = path
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts, err := parseArgs(args, stdout, stderr)
	if err != nil {
		return err
	}

	if opts.password == "" {
		fmt.Fprint(stdout, "Password: ")
		opts.password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout)
	}
	if strings.TrimSpace(opts.password) == "" {
		return errors.New("password cannot be empty")
	}

	hash, err := auth.HashPassword(opts.password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	store, err := openStore(ctx, opts.dbPath, opts.databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	user, err := store.CreateUser(ctx, opts.username, hash)
	switch {
	case errors.Is(err, storage.ErrDuplicateUsername):
		return fmt.Errorf("user %s already exists", opts.username)
	case err != nil:
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(stdout, "User %s created successfully with ID %d\n", user.Username, user.ID)
	return nil
}

func openStore(ctx context.Context, dbPath, databaseURL string) (storage.Store, error) {
	if databaseURL != "" {
		return postgres.New(ctx, databaseURL)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}
	return storage.NewDB(dbPath)
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		pw, err := term.ReadPassword(int(f.Fd()))
		return string(pw), err
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
