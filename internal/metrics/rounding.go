package metrics

import (
	"math"
	"math/big"
)

var half = big.NewFloat(0.5)

// RoundHours rounds v to two decimals, half away from zero, judged on the
// exact binary value of v. So 0.125 becomes 0.13, and 1.005 (stored as
// 1.00499...) becomes 1.
func RoundHours(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	neg := v < 0
	if neg {
		v = -v
	}

	scaled := new(big.Float).SetPrec(256).SetFloat64(v)
	scaled.Mul(scaled, big.NewFloat(100))

	whole, _ := scaled.Int(nil)
	frac := new(big.Float).SetPrec(256).Sub(scaled, new(big.Float).SetPrec(256).SetInt(whole))
	if frac.Cmp(half) >= 0 {
		whole.Add(whole, big.NewInt(1))
	}

	cents, _ := new(big.Float).SetInt(whole).Float64()
	r := cents / 100
	if neg {
		r = -r
	}
	return r
}

// SecondsToHours converts seconds to rounded hours.
func SecondsToHours(seconds float64) float64 {
	return RoundHours(seconds / 3600)
}
