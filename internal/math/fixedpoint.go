package math

import (
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// Standard configs
	PriceConfig = DecimalConfig{DecimalPrecision: 8, Scale: 100_000_000} // 0.00000001 (oracle prices)
	QuoteConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}   // 0.000001 USDC (collateral, sizes, payouts)
)

const (
	// BpsDenominator converts basis-point fee schedules to fractions.
	BpsDenominator int64 = 10_000

	// PercentDenominator converts whole-percent parameters (maintenance
	// margin, liquidation bonus) to fractions.
	PercentDenominator int64 = 100
)

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

// DivideInt128 performs numerator / denominator with rounding
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	quotient.DivMod(numerator, denom, remainder)

	// Apply rounding
	result := quotient.Int64()

	if roundingMode == RoundHalfEven {
		// Banker's rounding: if remainder == denominator/2, round to even
		half := big.NewInt(denominator / 2)
		cmp := remainder.CmpAbs(half)

		if cmp > 0 {
			// remainder > half: round up
			result++
		} else if cmp == 0 && denominator%2 == 0 {
			// remainder == half and even denominator: round to even
			if result%2 != 0 {
				result++
			}
		}
	}

	putInt128(quotient)
	putInt128(remainder)

	return result
}

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding (default)
	RoundDown
	RoundUp
)

// MulDiv computes a * b / denominator through int128 with the requested
// rounding. Shared by the PnL, liquidation-price and pool-share formulas.
func MulDiv(a, b, denominator int64, roundingMode RoundingMode) int64 {
	num := MultiplyInt128(a, b)
	result := DivideInt128(num, denominator, roundingMode)
	putInt128(num)
	return result
}

// Abs returns |v| without branching on callers.
func Abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
