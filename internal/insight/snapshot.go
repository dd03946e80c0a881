package insight

import "github.com/shopspring/decimal"

// Snapshot is the full set of derived statistics for one user's expenses.
type Snapshot struct {
	Totals
	Monthly       []MonthAmount
	PredictedNext decimal.NullDecimal
	Personality   Personality
	// Records is the number of records analyzed; Skipped the number dropped as malformed.
	Records int
	Skipped int
}

// Analyze computes every statistic over records.
func Analyze(records []Record) Snapshot {
	s := Snapshot{
		Totals:      ComputeTotals(records),
		Monthly:     MonthlyTrend(records),
		Personality: ClassifyPersonality(records),
		Records:     len(records),
	}
	if next, ok := PredictNext(records); ok {
		s.PredictedNext = decimal.NullDecimal{Decimal: next, Valid: true}
	}
	return s
}

// AnalyzeEntries parses raw rows and analyzes the ones that are usable.
func AnalyzeEntries(entries []Entry) Snapshot {
	records, skipped := Parse(entries)
	s := Analyze(records)
	s.Skipped = skipped
	return s
}

// PredictedNextLabel renders the prediction, or NotAvailable.
func (s Snapshot) PredictedNextLabel() string {
	if !s.PredictedNext.Valid {
		return NotAvailable
	}
	return s.PredictedNext.Decimal.StringFixed(2)
}

// HasData reports whether any record was analyzed.
func (s Snapshot) HasData() bool {
	return s.Records > 0
}
