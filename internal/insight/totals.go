package insight

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// Level grades how concentrated spending is in the top category.
type Level string

const (
	LevelNone     Level = "none"
	LevelBalanced Level = "balanced"
	LevelNotable  Level = "notable"
	LevelHigh     Level = "high"
)

// Concentration thresholds, as percentages of total spend.
var (
	HighShare    = decimal.NewFromInt(50)
	NotableShare = decimal.NewFromInt(30)
)

var hundred = decimal.NewFromInt(100)

// CategoryShare is one category's total and its percentage of the overall total.
type CategoryShare struct {
	Category string
	Amount   decimal.Decimal
	Percent  decimal.Decimal
}

// Totals summarizes spending by category.
type Totals struct {
	Total        decimal.Decimal
	CategorySums map[string]decimal.Decimal
	// Categories is ordered by amount descending, then name.
	Categories  []CategoryShare
	TopCategory string
	// TopShare is invalid when the total is zero.
	TopShare decimal.NullDecimal
	Level    Level
	Message  string
}

// ComputeTotals sums amounts overall and per category and grades the top
// category's share of the total.
func ComputeTotals(records []Record) Totals {
	t := Totals{
		Total:        decimal.Zero,
		CategorySums: make(map[string]decimal.Decimal),
		TopCategory:  NotAvailable,
		Level:        LevelNone,
	}
	for _, r := range records {
		t.Total = t.Total.Add(r.Amount)
		t.CategorySums[r.Category] = t.CategorySums[r.Category].Add(r.Amount)
	}

	for name, sum := range t.CategorySums {
		share := CategoryShare{Category: name, Amount: sum, Percent: decimal.Zero}
		if t.Total.IsPositive() {
			share.Percent = percent(sum, t.Total)
		}
		t.Categories = append(t.Categories, share)
	}
	slices.SortFunc(t.Categories, func(a, b CategoryShare) int {
		if c := b.Amount.Cmp(a.Amount); c != 0 {
			return c
		}
		return strings.Compare(a.Category, b.Category)
	})

	if len(t.Categories) == 0 {
		t.Message = "No data available yet."
		return t
	}
	top := t.Categories[0]
	t.TopCategory = top.Category
	if !t.Total.IsPositive() {
		t.Message = fmt.Sprintf("Highest spending on %s, but nothing has been spent yet.", top.Category)
		return t
	}
	t.TopShare = decimal.NullDecimal{Decimal: top.Percent, Valid: true}
	t.Level = grade(top.Percent)
	t.Message = message(t.Level, top.Category, top.Percent)
	return t
}

// TopShareLabel renders the top category's share, or NotAvailable.
func (t Totals) TopShareLabel() string {
	if !t.TopShare.Valid {
		return NotAvailable
	}
	return t.TopShare.Decimal.StringFixed(2)
}

func percent(part, whole decimal.Decimal) decimal.Decimal {
	return part.Mul(hundred).Div(whole).Round(2)
}

func grade(share decimal.Decimal) Level {
	switch {
	case share.GreaterThanOrEqual(HighShare):
		return LevelHigh
	case share.GreaterThanOrEqual(NotableShare):
		return LevelNotable
	default:
		return LevelBalanced
	}
}

func message(level Level, category string, share decimal.Decimal) string {
	pct := share.StringFixed(2)
	switch level {
	case LevelHigh:
		return fmt.Sprintf("High concentration: %s takes %s%% of your spending. You are overspending on %s.", category, pct, category)
	case LevelNotable:
		return fmt.Sprintf("Notable: %s takes %s%% of your spending. Keep an eye on it.", category, pct)
	default:
		return fmt.Sprintf("Balanced: your highest spending is on %s (%s%%).", category, pct)
	}
}
