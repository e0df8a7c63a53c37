package math

// Trade arithmetic. Prices carry PriceConfig.Scale (1e8), collateral and
// notional sizes carry QuoteConfig.Scale (1e6). Every multi-word product
// goes through int128 — entry × marginRatio alone overflows int64 for
// four-digit prices.

// ComputeNotional returns collateral * leverage (quote scale).
func ComputeNotional(collateral, leverage int64) int64 {
	return collateral * leverage
}

// ComputePnL returns the signed profit for closing `size` notional opened at
// entryPrice and settled at currentPrice, before fees.
//
//	long:  (current - entry) * size / entry
//	short: (entry - current) * size / entry
func ComputePnL(directionSign int64, currentPrice, entryPrice, size int64) int64 {
	diff := currentPrice - entryPrice
	return MulDiv(directionSign*diff, size, entryPrice, RoundHalfEven)
}

// MarginRatio returns (100 - maintenanceMarginPct) * PriceConfig.Scale / 100.
func MarginRatio(maintenanceMarginPct int64) int64 {
	return (PercentDenominator - maintenanceMarginPct) * PriceConfig.Scale / PercentDenominator
}

// ComputeLiquidationPrice returns the price at which the position's loss
// reaches (100 - maintenanceMargin)% of collateral.
//
//	long:  entry - entry*marginRatio/(leverage*P)
//	short: entry + entry*marginRatio/(leverage*P)
func ComputeLiquidationPrice(directionSign int64, entryPrice, leverage, maintenanceMarginPct int64) int64 {
	ratio := MarginRatio(maintenanceMarginPct)
	offset := MulDiv(entryPrice, ratio, leverage*PriceConfig.Scale, RoundHalfEven)

	if directionSign >= 0 {
		return entryPrice - offset
	}
	return entryPrice + offset
}

// FeeFromBps returns amount * bps / 10_000 (quote scale).
func FeeFromBps(amount, bps int64) int64 {
	return MulDiv(amount, bps, BpsDenominator, RoundHalfEven)
}

// PercentOf returns amount * pct / 100 (quote scale).
func PercentOf(amount, pct int64) int64 {
	return MulDiv(amount, pct, PercentDenominator, RoundHalfEven)
}

// SharesToMint implements the pool's mint rule: `amount` for an empty pool,
// else amount * totalLiquidity / availableLiquidity. The denominator is
// deliberately `available`, not `total` — providers are rewarded more when
// utilization is high.
func SharesToMint(amount, totalLiquidity, availableLiquidity int64) int64 {
	if totalLiquidity == 0 {
		return amount
	}
	return MulDiv(amount, totalLiquidity, availableLiquidity, RoundHalfEven)
}

// SharePayout returns shares * availableLiquidity / totalLiquidity.
func SharePayout(shares, availableLiquidity, totalLiquidity int64) int64 {
	if totalLiquidity == 0 {
		return 0
	}
	return MulDiv(shares, availableLiquidity, totalLiquidity, RoundHalfEven)
}

// DeviationExceeds reports whether |newPrice-oldPrice|/oldPrice is above
// maxDeviationBps.
func DeviationExceeds(oldPrice, newPrice, maxDeviationBps int64) bool {
	if oldPrice == 0 {
		return false
	}
	deviation := MulDiv(Abs(newPrice-oldPrice), BpsDenominator, oldPrice, RoundDown)
	return deviation > maxDeviationBps
}

// CanonicalFromFeed converts an external feed price (mantissa, exponent)
// into the ledger's canonical 1e8 fixed-point representation:
//
//	m * 10^(8+e)   when 8+e >= 0
//	m / 10^-(8+e)  otherwise
//
// Returns 0 for results that are non-positive or out of int64 range; the
// caller rejects those as InvalidPrice.
func CanonicalFromFeed(mantissa int64, exponent int32) int64 {
	shift := int64(PriceConfig.DecimalPrecision) + int64(exponent)

	if shift > 18 || shift < -18 {
		return 0
	}

	if shift >= 0 {
		scaled := MultiplyInt128(mantissa, pow10(shift))
		defer putInt128(scaled)
		if !scaled.IsInt64() {
			return 0
		}
		return scaled.Int64()
	}

	return mantissa / pow10(-shift)
}

func pow10(n int64) int64 {
	result := int64(1)
	for i := int64(0); i < n; i++ {
		result *= 10
	}
	return result
}
