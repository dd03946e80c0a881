// Package insight computes spending summaries and a naive next-expense
// projection from a snapshot of one user's expenses.
//
// Every function in this package is pure: it takes the full snapshot and
// returns a fresh result. Nothing is cached between calls.
package insight

import (
	"math"
	"strings"
	"time"

	"expense-insights/internal/models"

	"github.com/shopspring/decimal"
)

// NotAvailable is rendered in place of statistics that are undefined for the input.
const NotAvailable = "N/A"

// Uncategorized labels records with an empty category.
const Uncategorized = "Uncategorized"

// Entry is a raw expense row as found in a table or a CSV file.
type Entry struct {
	Date     string
	Category string
	Amount   string
}

// Record is a parsed expense ready for analysis. A zero Date marks a record
// whose date could not be parsed; it counts toward totals but not toward trends.
type Record struct {
	Date     time.Time
	Category string
	Amount   decimal.Decimal
}

func (r Record) dated() bool {
	return !r.Date.IsZero()
}

// Parse converts raw rows into records. Rows with an amount that is not a
// finite non-negative number are dropped and counted in skipped.
func Parse(entries []Entry) (records []Record, skipped int) {
	records = make([]Record, 0, len(entries))
	for _, e := range entries {
		amount, err := models.ParseAmount(e.Amount)
		if err != nil || !finite(amount) {
			skipped++
			continue
		}
		date, err := models.ParseDate(e.Date)
		if err != nil {
			date = time.Time{}
		}
		records = append(records, Record{
			Date:     date,
			Category: categoryLabel(e.Category),
			Amount:   amount,
		})
	}
	return records, skipped
}

// FromExpenses converts stored expenses into records.
func FromExpenses(expenses []models.Expense) []Record {
	records := make([]Record, 0, len(expenses))
	for _, e := range expenses {
		if e.Amount.IsNegative() {
			continue
		}
		records = append(records, Record{
			Date:     e.Date,
			Category: categoryLabel(e.Category),
			Amount:   e.Amount,
		})
	}
	return records
}

func categoryLabel(c string) string {
	c = strings.TrimSpace(c)
	if c == "" {
		return Uncategorized
	}
	return c
}

func finite(d decimal.Decimal) bool {
	f := d.InexactFloat64()
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}
