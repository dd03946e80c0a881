package insight

import "github.com/shopspring/decimal"

// Spending personality labels.
const (
	PersonalityUnknown   = "unknown"
	PersonalitySaver     = "saver"
	PersonalityBalanced  = "balanced"
	PersonalitySpender   = "spender"
	PersonalityImpulsive = "impulsive"
)

// Personality thresholds. These are product constants, not derived values.
var (
	SaverAverageBelow   = decimal.NewFromInt(200)
	SpenderAverageAbove = decimal.NewFromInt(1000)
	ImpulsiveMultiple   = decimal.NewFromInt(3)
)

// Personality labels a user by their average expense.
type Personality struct {
	Label   string
	Average decimal.Decimal
	Max     decimal.Decimal
}

// ClassifyPersonality labels spending habits. A single expense above
// ImpulsiveMultiple times the mean overrides the average-based bands.
func ClassifyPersonality(records []Record) Personality {
	if len(records) == 0 {
		return Personality{Label: PersonalityUnknown, Average: decimal.Zero, Max: decimal.Zero}
	}
	total := decimal.Zero
	maxAmount := records[0].Amount
	for _, r := range records {
		total = total.Add(r.Amount)
		maxAmount = decimal.Max(maxAmount, r.Amount)
	}
	avg := total.Div(decimal.NewFromInt(int64(len(records)))).Round(2)

	p := Personality{Average: avg, Max: maxAmount}
	switch {
	case avg.IsPositive() && maxAmount.GreaterThan(avg.Mul(ImpulsiveMultiple)):
		p.Label = PersonalityImpulsive
	case avg.LessThan(SaverAverageBelow):
		p.Label = PersonalitySaver
	case avg.GreaterThan(SpenderAverageAbove):
		p.Label = PersonalitySpender
	default:
		p.Label = PersonalityBalanced
	}
	return p
}
