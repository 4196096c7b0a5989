package metrics

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// PercentChange returns (current-base)/base*100 using decimal arithmetic on the
// shortest decimal form of each input, so 450 against 375 is exactly 20.
// A zero base yields 0.
func PercentChange(current, base float64) float64 {
	return PercentChangeFrom(current, decimal.NewFromFloat(finite(base)))
}

// PercentChangeFrom is PercentChange against a base that is already decimal,
// typically the result of MeanDecimal.
func PercentChangeFrom(current float64, base decimal.Decimal) float64 {
	if base.IsZero() {
		return 0
	}
	c := decimal.NewFromFloat(finite(current))
	pct, _ := c.Sub(base).Div(base).Mul(hundred).Float64()
	return pct
}

// MeanDecimal sums values in decimal and divides by their count, so the mean of
// 0.1 and 0.2 is exactly 0.15. ok is false when values is empty.
func MeanDecimal(values []float64) (mean decimal.Decimal, ok bool) {
	if len(values) == 0 {
		return decimal.Zero, false
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(decimal.NewFromFloat(finite(v)))
	}
	return sum.Div(decimal.NewFromInt(int64(len(values)))), true
}

// Mean returns the arithmetic mean of values, ok is false when values is empty.
func Mean(values []float64) (mean float64, ok bool) {
	m, ok := MeanDecimal(values)
	if !ok {
		return 0, false
	}
	return m.InexactFloat64(), true
}

// Round rounds half away from zero to the given number of decimal places.
func Round(v float64, places int32) float64 {
	r, _ := decimal.NewFromFloat(finite(v)).Round(places).Float64()
	return r
}
