// Package export reads and writes a user's expenses as CSV.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"expense-insights/internal/insight"
	"expense-insights/internal/models"
)

// Header is the column order written by WriteCSV.
var Header = []string{"date", "category", "amount", "description"}

var ErrMissingColumn = errors.New("missing column")

// Row is one raw CSV line, before validation.
type Row struct {
	Line        int
	Date        string
	Category    string
	Amount      string
	Description string
}

// Expense validates the row into an expense owned by userID.
func (r Row) Expense(userID int64) (models.Expense, error) {
	e, err := models.NewExpense(userID, r.Date, r.Category, r.Amount, r.Description)
	if err != nil {
		return models.Expense{}, fmt.Errorf("line %d: %w", r.Line, err)
	}
	return e, nil
}

// Entry returns the row as raw engine input.
func (r Row) Entry() insight.Entry {
	return insight.Entry{Date: r.Date, Category: r.Category, Amount: r.Amount}
}

// WriteCSV writes expenses with a header line. Text cells that a spreadsheet
// would evaluate as a formula are prefixed with a single quote.
func WriteCSV(w io.Writer, expenses []models.Expense) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, e := range expenses {
		if err := cw.Write([]string{e.DateString(), escapeCell(e.Category), e.AmountString(), escapeCell(e.Description)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses rows written by WriteCSV. Columns are located by header
// name; description is optional.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := map[string]int{}
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, required := range Header[:3] {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, Row{
			Line:        line,
			Date:        field(rec, "date"),
			Category:    unescapeCell(field(rec, "category")),
			Amount:      field(rec, "amount"),
			Description: unescapeCell(field(rec, "description")),
		})
	}
	return rows, nil
}

// Leading characters that make spreadsheet applications treat a cell as a formula.
const formulaPrefixes = "=+-@\t\r"

// formulaLike reports whether s would be evaluated, including cells that
// already carry the quote prefix so escaping stays reversible.
func formulaLike(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '\'' {
		return formulaLike(s[1:])
	}
	return strings.IndexByte(formulaPrefixes, s[0]) >= 0
}

func escapeCell(s string) string {
	if formulaLike(s) {
		return "'" + s
	}
	return s
}

func unescapeCell(s string) string {
	if len(s) > 1 && s[0] == '\'' && formulaLike(s[1:]) {
		return s[1:]
	}
	return s
}
