package scorer

import "github.com/shopspring/decimal"

var (
	zero    = decimal.Zero
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

func clamp01(d decimal.Decimal) decimal.Decimal {
	if d.LessThan(zero) {
		return zero
	}
	if d.GreaterThan(one) {
		return one
	}
	return d
}

// normalise maps x linearly from [lo, hi] onto [0, 1], clamped.
func normalise(x, lo, hi decimal.Decimal) decimal.Decimal {
	span := hi.Sub(lo)
	if span.IsZero() {
		return zero
	}
	return clamp01(x.Sub(lo).Div(span))
}

// piecewise maps x onto [0,1]: 0 at or below lo, 1 at or above hi, linear
// between.
func piecewise(x, lo, hi decimal.Decimal) decimal.Decimal {
	if x.LessThanOrEqual(lo) {
		return zero
	}
	if x.GreaterThanOrEqual(hi) {
		return one
	}
	return x.Sub(lo).Div(hi.Sub(lo))
}
