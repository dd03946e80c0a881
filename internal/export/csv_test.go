package export

import (
	"bytes"
	"strings"
	"testing"

	"expense-insights/internal/insight"
	"expense-insights/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	var original []models.Expense
	for i, in := range [][4]string{
		{"2025-01-05", "Food", "120.5", "lunch, with friends"},
		{"2025-01-20", "Travel", "300", `"quoted" trip`},
		{"2025-02-01", "Bills", "0", ""},
	} {
		e, err := models.NewExpense(7, in[0], in[1], in[2], in[3])
		require.NoError(t, err)
		e.ID = int64(i + 1)
		original = append(original, e)
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, original))
	assert.True(t, strings.HasPrefix(buf.String(), "date,category,amount,description\n"))

	rows, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, rows, len(original))

	for i, row := range rows {
		got, err := row.Expense(9)
		require.NoError(t, err)
		assert.Zero(t, got.ID, "imported rows get fresh ids")
		assert.Equal(t, int64(9), got.UserID)
		assert.Equal(t, original[i].DateString(), got.DateString())
		assert.Equal(t, original[i].Category, got.Category)
		assert.Equal(t, original[i].AmountString(), got.AmountString())
		assert.Equal(t, original[i].Description, got.Description)
	}
}

func TestReadCSVColumnOrderFromHeader(t *testing.T) {
	in := "amount,date,category\n12.50,2025-03-01,Food\n"
	rows, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, Row{Line: 2, Date: "2025-03-01", Category: "Food", Amount: "12.50"}, rows[0])
}

func TestReadCSVMissingColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("date,category\n2025-01-01,Food\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestReadCSVEmpty(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestInvalidRowsAreReportedNotFatal(t *testing.T) {
	in := "date,category,amount\n2025-01-01,Food,abc\n2025-01-02,Food,10\n"
	rows, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	_, err = rows[0].Expense(1)
	assert.ErrorIs(t, err, models.ErrInvalidAmount)
	assert.Contains(t, err.Error(), "line 2")

	_, err = rows[1].Expense(1)
	assert.NoError(t, err)
}

func TestRowsFeedTheEngine(t *testing.T) {
	in := "date,category,amount\n2025-01-01,Food,100\n2025-01-02,Food,oops\n2025-02-01,Bills,50\n"
	rows, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)

	entries := make([]insight.Entry, len(rows))
	for i, r := range rows {
		entries[i] = r.Entry()
	}
	snap := insight.AnalyzeEntries(entries)
	assert.Equal(t, 1, snap.Skipped)
	assert.Equal(t, "150.00", snap.Total.StringFixed(2))
	assert.Equal(t, "Food", snap.TopCategory)
}

func TestWriteCSVNeutralizesFormulas(t *testing.T) {
	var original []models.Expense
	for i, in := range [][2]string{
		{"=HYPERLINK(\"http://x\")", "+1+2"},
		{"@SUM(A1)", "-2+3"},
		{"Food", "'=already quoted"},
		{"Bills", "plain - text"},
	} {
		e, err := models.NewExpense(1, "2025-04-01", in[0], "5", in[1])
		require.NoError(t, err)
		e.ID = int64(i + 1)
		original = append(original, e)
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, original))
	out := buf.String()
	assert.Contains(t, out, `"'=HYPERLINK(""http://x"")",5.00,'+1+2`)
	assert.Contains(t, out, "'@SUM(A1),5.00,'-2+3")
	assert.Contains(t, out, "Food,5.00,''=already quoted")
	assert.Contains(t, out, "Bills,5.00,plain - text")

	rows, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, rows, len(original))
	for i, row := range rows {
		assert.Equal(t, original[i].Category, row.Category)
		assert.Equal(t, original[i].Description, row.Description)
	}
}

func TestReadCSVKeepsLoneQuote(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader("date,category,amount,description\n2025-01-01,'tis,3,'\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "'tis", rows[0].Category)
	assert.Equal(t, "'", rows[0].Description)
}
