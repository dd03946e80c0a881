// Command insights prints a spending report for one user, or for a CSV export,
// to the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"expense-insights/internal/export"
	"expense-insights/internal/insight"
	"expense-insights/internal/storage"
	"expense-insights/internal/storage/postgres"
)

const defaultDBPath = "./data/expenses.db"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("insights", flag.ContinueOnError)
	fs.SetOutput(stderr)

	username := fs.String("user", "", "Username whose expenses are analyzed")
	dbPath := fs.String("db", defaultDBPath, "Path to SQLite database file")
	databaseURL := fs.String("database-url", "", "PostgreSQL URL; overrides -db when set")
	csvPath := fs.String("csv", "", "Analyze a CSV export instead of the database")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *csvPath != "" {
		snap, err := analyzeCSV(*csvPath)
		if err != nil {
			return err
		}
		return printReport(stdout, *csvPath, snap)
	}

	if *username == "" {
		fmt.Fprintln(stdout, "Usage: insights -user <username> [-db <db_path> | -database-url <url>]")
		fmt.Fprintln(stdout, "       insights -csv <file>")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: user or csv")
	}

	if path := os.Getenv("DB_PATH"); path != "" && *dbPath == defaultDBPath {
		*dbPath = path
	}

	snap, err := analyzeUser(ctx, *username, *dbPath, *databaseURL)
	if err != nil {
		return err
	}
	return printReport(stdout, *username, snap)
}

func analyzeCSV(path string) (insight.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return insight.Snapshot{}, fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()

	rows, err := export.ReadCSV(f)
	if err != nil {
		return insight.Snapshot{}, fmt.Errorf("failed to read csv: %w", err)
	}
	entries := make([]insight.Entry, len(rows))
	for i, row := range rows {
		entries[i] = row.Entry()
	}
	return insight.AnalyzeEntries(entries), nil
}

func analyzeUser(ctx context.Context, username, dbPath, databaseURL string) (insight.Snapshot, error) {
	var (
		store storage.Store
		err   error
	)
	if databaseURL != "" {
		store, err = postgres.New(ctx, databaseURL)
	} else {
		if _, statErr := os.Stat(dbPath); statErr != nil {
			return insight.Snapshot{}, fmt.Errorf("failed to open database: %w", statErr)
		}
		store, err = storage.NewDB(dbPath)
	}
	if err != nil {
		return insight.Snapshot{}, fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	user, err := store.GetUserByUsername(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		return insight.Snapshot{}, fmt.Errorf("user %s not found", username)
	}
	if err != nil {
		return insight.Snapshot{}, fmt.Errorf("failed to look up user: %w", err)
	}

	expenses, err := store.ListExpenses(ctx, user.ID)
	if err != nil {
		return insight.Snapshot{}, fmt.Errorf("failed to list expenses: %w", err)
	}
	return insight.Analyze(insight.FromExpenses(expenses)), nil
}

func printReport(out io.Writer, subject string, s insight.Snapshot) error {
	fmt.Fprintf(out, "Spending insights for %s\n\n", subject)
	if !s.HasData() {
		fmt.Fprintln(out, "No expenses recorded yet.")
		if s.Skipped > 0 {
			fmt.Fprintf(out, "%d malformed rows skipped.\n", s.Skipped)
		}
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Total spent:\t%s\n", s.Total.StringFixed(2))
	fmt.Fprintf(tw, "Top category:\t%s (%s%%)\n", s.TopCategory, s.TopShareLabel())
	fmt.Fprintf(tw, "Concentration:\t%s\n", s.Level)
	fmt.Fprintf(tw, "Personality:\t%s (average %s, largest %s)\n",
		s.Personality.Label, s.Personality.Average.StringFixed(2), s.Personality.Max.StringFixed(2))
	fmt.Fprintf(tw, "Predicted next:\t%s\n", s.PredictedNextLabel())
	fmt.Fprintf(tw, "Records:\t%d (%d skipped)\n", s.Records, s.Skipped)
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%s\n", s.Message)

	fmt.Fprintln(out, "\nBy category:")
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, c := range s.Categories {
		fmt.Fprintf(tw, "  %s\t%s\t%s%%\t\n", c.Category, c.Amount.StringFixed(2), c.Percent.StringFixed(2))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(s.Monthly) > 0 {
		fmt.Fprintln(out, "\nBy month:")
		tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
		for _, m := range s.Monthly {
			fmt.Fprintf(tw, "  %s\t%s\t\n", m.Month, m.Amount.StringFixed(2))
		}
		return tw.Flush()
	}
	return nil
}
