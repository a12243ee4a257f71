package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Category Category
	Amount   decimal.Decimal
}

// ContributorAmount represents an amount aggregated by the person who logged it.
type ContributorAmount struct {
	Contributor string
	Amount      decimal.Decimal
	Records     int
}

// Aggregation is the per-category view of one period. It is recomputed on
// every report and never persisted.
//
// GrandTotal sums every record, including those whose category is not in
// the known set, while Totals only holds known categories. Unassigned is the
// difference between the two.
type Aggregation struct {
	Totals     map[Category]decimal.Decimal
	GrandTotal decimal.Decimal
	Unassigned decimal.Decimal
	Records    int
	categories []Category
}

// Aggregate sums records into the given categories.
func Aggregate(records []Record, categories []Category) Aggregation {
	agg := Aggregation{
		Totals:     make(map[Category]decimal.Decimal, len(categories)),
		GrandTotal: decimal.Zero,
		Unassigned: decimal.Zero,
		Records:    len(records),
		categories: append([]Category(nil), categories...),
	}
	for _, c := range categories {
		agg.Totals[c] = decimal.Zero
	}

	for _, r := range records {
		amount := NonNegative(r.Amount)
		if total, ok := agg.Totals[r.Category]; ok {
			agg.Totals[r.Category] = total.Add(amount)
		} else {
			agg.Unassigned = agg.Unassigned.Add(amount)
		}
		agg.GrandTotal = agg.GrandTotal.Add(amount)
	}
	return agg
}

// IsEmpty reports whether the period has nothing to chart.
func (a Aggregation) IsEmpty() bool {
	return a.Records == 0 || !a.GrandTotal.IsPositive()
}

// KnownTotal sums the per-category totals.
func (a Aggregation) KnownTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range a.Totals {
		sum = sum.Add(v)
	}
	return sum
}

// Breakdown returns the non-zero category totals sorted by descending
// amount. Ties keep the category table order.
func (a Aggregation) Breakdown() []CategoryAmount {
	out := make([]CategoryAmount, 0, len(a.Totals))
	for _, c := range a.categories {
		amount := a.Totals[c]
		if !amount.IsPositive() {
			continue
		}
		out = append(out, CategoryAmount{Category: c, Amount: amount})
	}
	sort.SliceStable(out, func(i, j int) bool {
		cmp := out[i].Amount.Cmp(out[j].Amount)
		if cmp != 0 {
			return cmp > 0
		}
		return out[i].Category.order() < out[j].Category.order()
	})
	return out
}

// Share returns amount as a percentage of the grand total, rounded to one
// decimal place.
func (a Aggregation) Share(amount decimal.Decimal) decimal.Decimal {
	if !a.GrandTotal.IsPositive() {
		return decimal.Zero
	}
	return amount.Div(a.GrandTotal).Mul(decimal.NewFromInt(100)).Round(1)
}

// AggregateByContributor groups records by the person who logged them,
// largest amount first.
func AggregateByContributor(records []Record) []ContributorAmount {
	byName := make(map[string]*ContributorAmount)
	var order []string
	for _, r := range records {
		name := r.Contributor.Label()
		entry, ok := byName[name]
		if !ok {
			entry = &ContributorAmount{Contributor: name, Amount: decimal.Zero}
			byName[name] = entry
			order = append(order, name)
		}
		entry.Amount = entry.Amount.Add(NonNegative(r.Amount))
		entry.Records++
	}

	out := make([]ContributorAmount, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	sort.SliceStable(out, func(i, j int) bool {
		cmp := out[i].Amount.Cmp(out[j].Amount)
		if cmp != 0 {
			return cmp > 0
		}
		return out[i].Contributor < out[j].Contributor
	})
	return out
}
