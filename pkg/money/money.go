package money

import "github.com/shopspring/decimal"

// Round2 rounds a monetary amount to 2 decimal places with banker's rounding.
// Intermediate arithmetic stays exact; callers round only at the point a value
// is persisted.
func Round2(amount decimal.Decimal) decimal.Decimal {
	return amount.RoundBank(2)
}

// ApplyRate multiplies an amount by a percentage rate (e.g. 7 means 7%).
func ApplyRate(amount, ratePercent decimal.Decimal) decimal.Decimal {
	return amount.Mul(ratePercent).Div(decimal.NewFromInt(100))
}

// Proportion returns total * (part / whole) without rounding. Whole must be
// non-zero; callers validate before computing.
func Proportion(total, part, whole decimal.Decimal) decimal.Decimal {
	return total.Mul(part).Div(whole)
}

// Clamp bounds amount to [min, max]; a nil bound leaves that side open.
func Clamp(amount decimal.Decimal, min, max *decimal.Decimal) decimal.Decimal {
	if min != nil && amount.LessThan(*min) {
		return *min
	}
	if max != nil && amount.GreaterThan(*max) {
		return *max
	}
	return amount
}

// IsPositive reports whether the amount is strictly greater than zero.
func IsPositive(amount decimal.Decimal) bool {
	return amount.GreaterThan(decimal.Zero)
}
