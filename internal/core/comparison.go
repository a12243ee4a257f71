package core

import "github.com/shopspring/decimal"

// Comparison is the month-over-month view of two grand totals.
type Comparison struct {
	Current       decimal.Decimal
	Previous      decimal.Decimal
	Difference    decimal.Decimal
	PercentChange decimal.Decimal
	Increased     bool
}

// Compare computes the change from previous to current. PercentChange is
// rounded to one decimal and is zero when there is no previous spending.
func Compare(current, previous decimal.Decimal) Comparison {
	diff := current.Sub(previous)
	pct := decimal.Zero
	if previous.IsPositive() {
		pct = diff.Div(previous).Mul(decimal.NewFromInt(100)).Round(1)
	}
	return Comparison{
		Current:       current,
		Previous:      previous,
		Difference:    diff,
		PercentChange: pct,
		Increased:     diff.IsPositive(),
	}
}
