package insight

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const monthLayout = "2006-01"

// MonthAmount is the summed spending of one calendar month.
type MonthAmount struct {
	Month  string
	Amount decimal.Decimal
}

// MonthlyTrend groups dated records by calendar month and returns the sums in
// chronological order. Records without a date are skipped.
func MonthlyTrend(records []Record) []MonthAmount {
	sums := make(map[time.Time]decimal.Decimal)
	for _, r := range records {
		if !r.dated() {
			continue
		}
		key := time.Date(r.Date.Year(), r.Date.Month(), 1, 0, 0, 0, 0, time.UTC)
		sums[key] = sums[key].Add(r.Amount)
	}

	months := make([]time.Time, 0, len(sums))
	for m := range sums {
		months = append(months, m)
	}
	slices.SortFunc(months, func(a, b time.Time) int { return a.Compare(b) })

	series := make([]MonthAmount, 0, len(months))
	for _, m := range months {
		series = append(series, MonthAmount{Month: m.Format(monthLayout), Amount: sums[m]})
	}
	return series
}

// Fit is an ordinary least-squares line amount = Intercept + Slope*index.
type Fit struct {
	Intercept float64
	Slope     float64
	// N is the number of points fitted; the next index to predict is N.
	N int
}

// At evaluates the line at index x.
func (f Fit) At(x float64) float64 {
	return f.Intercept + f.Slope*x
}

// FitTrend sorts the dated records chronologically, numbers them 0, 1, 2, ...
// and fits a line through (index, amount). It reports false when no record
// has a date.
func FitTrend(records []Record) (Fit, bool) {
	dated := chronological(records)
	n := len(dated)
	if n == 0 {
		return Fit{}, false
	}

	var meanX, meanY float64
	for i, r := range dated {
		meanX += float64(i)
		meanY += r.Amount.InexactFloat64()
	}
	meanX /= float64(n)
	meanY /= float64(n)

	var cov, variance float64
	for i, r := range dated {
		dx := float64(i) - meanX
		cov += dx * (r.Amount.InexactFloat64() - meanY)
		variance += dx * dx
	}

	fit := Fit{Intercept: meanY, N: n}
	if variance > 0 {
		fit.Slope = cov / variance
		fit.Intercept = meanY - fit.Slope*meanX
	}
	return fit, true
}

// PredictNext extrapolates the trend one index past the last record and
// rounds to two decimals. It is a plain linear projection with no
// seasonality and no confidence bound. Amounts too large for float64
// arithmetic leave the prediction unavailable.
func PredictNext(records []Record) (decimal.Decimal, bool) {
	fit, ok := FitTrend(records)
	if !ok {
		return decimal.Zero, false
	}
	next := fit.At(float64(fit.N))
	if math.IsInf(next, 0) || math.IsNaN(next) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(next).Round(2), true
}

// chronological returns the dated records sorted by date. Same-day records
// are ordered by amount then category so the order never depends on input.
func chronological(records []Record) []Record {
	dated := make([]Record, 0, len(records))
	for _, r := range records {
		if r.dated() {
			dated = append(dated, r)
		}
	}
	slices.SortStableFunc(dated, func(a, b Record) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if c := a.Amount.Cmp(b.Amount); c != 0 {
			return c
		}
		return strings.Compare(a.Category, b.Category)
	})
	return dated
}
