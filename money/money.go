// Package money provides the integral currency arithmetic used by the
// transaction core. The deployment currency carries no fractional sub-units,
// so every amount that is stored, displayed or transmitted is a whole number
// of currency units produced by Round.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a monetary amount in whole currency units.
type Money = int64

var hundred = decimal.NewFromInt(100)

// Round converts an exact decimal amount to the nearest whole currency unit,
// rounding half away from zero.
func Round(d decimal.Decimal) Money {
	return d.Round(0).IntPart()
}

// Parse reads a wire decimal such as "10000.00" into Money.
func Parse(value string) (Money, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return Round(d), nil
}

// Format renders m as a wire decimal with two places ("10000.00").
func Format(m Money) string {
	return decimal.NewFromInt(m).StringFixed(2)
}

// Percent returns pct percent of base as an exact, unrounded decimal.
// Callers decide where rounding happens so that per-line and recombined
// figures stay consistent.
func Percent(base Money, pct decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(base).Mul(pct).Div(hundred)
}

// PercentOf behaves like Percent but on an exact decimal base.
func PercentOf(base decimal.Decimal, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(hundred)
}

// ValidPercent reports whether pct is inside the inclusive [0, 100] range.
func ValidPercent(pct decimal.Decimal) bool {
	return !pct.IsNegative() && pct.LessThanOrEqual(hundred)
}
