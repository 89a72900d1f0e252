package utils

import (
	"math"

	"github.com/shopspring/decimal"
)

// RoundTo rounds half away from zero at the given number of decimal places.
// Non-finite values are returned unchanged.
func RoundTo(value float64, places int32) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return value
	}
	return decimal.NewFromFloat(value).Round(places).InexactFloat64()
}

// Round2 rounds to two decimals, the precision of every reported metric.
func Round2(value float64) float64 {
	return RoundTo(value, 2)
}

// RoundCents rounds a dollar amount to whole cents.
func RoundCents(amount float64) float64 {
	return RoundTo(amount, 2)
}
