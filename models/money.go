package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money columns are stored as decimal(12,2). Never float: repeated
// additions/subtractions must not drift.

// ClampZero returns max(d, 0).
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Percentage returns part/whole*100 rounded to 2 decimal places.
// A zero (or negative) denominator degrades to 0, never divides.
func Percentage(part, whole decimal.Decimal) decimal.Decimal {
	if whole.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100)).Round(2)
}

// ParseAmount parses user- and webhook-formatted amounts.
// Accepts common formatted strings like:
// - "20,000"
// - "KES 20,000"
// - "Ksh 20000"
// - "KES -1,234.50"
//
// After stripping currency tokens and grouping, only digits and at most
// one '.' may remain: "7up" is not 7.
func ParseAmount(i interface{}) (decimal.Decimal, error) {
	switch v := i.(type) {
	case string:
		s := strings.TrimSpace(v)
		for _, token := range []string{"KES", "kes", "Ksh", "ksh"} {
			s = strings.ReplaceAll(s, token, "")
		}
		s = strings.ReplaceAll(s, ",", "")
		s = strings.ReplaceAll(s, " ", "")
		neg := strings.HasPrefix(s, "-")
		if neg {
			s = s[1:]
		}
		if s == "" {
			return decimal.Zero, fmt.Errorf("invalid amount")
		}
		dots := 0
		for _, r := range s {
			if r == '.' {
				dots++
				continue
			}
			if r < '0' || r > '9' {
				return decimal.Zero, fmt.Errorf("invalid amount")
			}
		}
		if dots > 1 {
			return decimal.Zero, fmt.Errorf("invalid amount")
		}
		if neg {
			s = "-" + s
		}
		return decimal.NewFromString(s)
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case decimal.Decimal:
		return v, nil
	default:
		return decimal.Zero, fmt.Errorf("invalid amount")
	}
}
