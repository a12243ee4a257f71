// Package core provides money parsing and handling utilities.
//
// Amounts arrive from document stores as loosely typed values: numbers,
// numeric strings written by older app versions, or nothing at all. This
// file turns them into non-negative decimals.
package core

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// CoerceAmount converts a raw stored amount into a non-negative decimal.
//
// Missing, non-numeric, NaN, infinite and negative values all become zero.
// Strings accept both dot (12.34) and comma (12,34) decimal separators.
//
// Examples:
//
//	CoerceAmount(12.5)    -> 12.5
//	CoerceAmount("12,50") -> 12.5
//	CoerceAmount(nil)     -> 0
//	CoerceAmount(-3)      -> 0
func CoerceAmount(v any) decimal.Decimal {
	var d decimal.Decimal
	switch x := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		d = x
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero
		}
		d = decimal.NewFromFloat(x)
	case float32:
		return CoerceAmount(float64(x))
	case int:
		d = decimal.NewFromInt(int64(x))
	case int64:
		d = decimal.NewFromInt(x)
	case int32:
		d = decimal.NewFromInt(int64(x))
	case json.Number:
		return CoerceAmount(string(x))
	case string:
		parsed, err := ParseDecimal(x)
		if err != nil {
			return decimal.Zero
		}
		d = parsed
	default:
		return decimal.Zero
	}
	return NonNegative(d)
}

// ParseDecimal parses a user-entered amount. It accepts a decimal comma and
// rejects empty input and anything that is not a plain number.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// NonNegative clamps d at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// FormatAmount renders d with two decimals, e.g. "12.50".
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
