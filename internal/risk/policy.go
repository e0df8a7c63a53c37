// Package risk holds the static trade-admission policy: collateral floor,
// leverage bounds, maintenance margin, liquidation incentive, limit-price
// tolerance and the price freshness gate. All parameters are plain integers
// so a snapshot of the policy is trivially hashable.
package risk

import (
	"errors"
	"fmt"
	"time"

	fpmath "PerpVenue/internal/math"
)

var (
	// ErrCollateralTooSmall rejects opens below the collateral floor.
	ErrCollateralTooSmall = errors.New("risk: collateral below minimum")

	// ErrLeverageOutOfRange rejects leverage outside the pair's (or the
	// venue's) bounds.
	ErrLeverageOutOfRange = errors.New("risk: leverage out of range")

	// ErrPriceOutOfTolerance rejects a limit execution whose oracle price
	// strayed beyond the tolerance band around the limit price.
	ErrPriceOutOfTolerance = errors.New("risk: execution price outside limit tolerance")
)

// Params is the venue-wide policy. Percentages are whole percents, tolerance
// is basis points, collateral is 1e6 fixed-point USD.
type Params struct {
	MinCollateral        int64
	GlobalMaxLeverage    int64
	MaintenanceMarginPct int64
	LiquidationBonusPct  int64
	LimitToleranceBps    int64
	TradeStalenessBound  time.Duration
}

// Defaults returns the venue's launch policy.
func Defaults() Params {
	return Params{
		MinCollateral:        5_000_000, // 5 USD
		GlobalMaxLeverage:    50,
		MaintenanceMarginPct: 20,
		LiquidationBonusPct:  5,
		LimitToleranceBps:    100, // 1%
		TradeStalenessBound:  5 * time.Minute,
	}
}

// Validate rejects parameter sets that would make the policy degenerate.
func (p Params) Validate() error {
	if p.MinCollateral <= 0 {
		return fmt.Errorf("min collateral must be positive, got %d", p.MinCollateral)
	}
	if p.GlobalMaxLeverage <= 0 {
		return fmt.Errorf("global max leverage must be positive, got %d", p.GlobalMaxLeverage)
	}
	if p.MaintenanceMarginPct <= 0 || p.MaintenanceMarginPct >= 100 {
		return fmt.Errorf("maintenance margin must be in (0, 100), got %d", p.MaintenanceMarginPct)
	}
	if p.LiquidationBonusPct < 0 || p.LiquidationBonusPct > 100 {
		return fmt.Errorf("liquidation bonus must be in [0, 100], got %d", p.LiquidationBonusPct)
	}
	if p.LimitToleranceBps < 0 {
		return fmt.Errorf("limit tolerance must be non-negative, got %d", p.LimitToleranceBps)
	}
	if p.TradeStalenessBound <= 0 {
		return fmt.Errorf("trade staleness bound must be positive, got %s", p.TradeStalenessBound)
	}
	return nil
}

// CheckCollateral enforces the venue collateral floor.
func (p Params) CheckCollateral(collateral int64) error {
	if collateral < p.MinCollateral {
		return fmt.Errorf("%w: got %d, minimum %d", ErrCollateralTooSmall, collateral, p.MinCollateral)
	}
	return nil
}

// CheckLeverage enforces both the pair's listed bounds and the venue cap.
func (p Params) CheckLeverage(leverage, pairMin, pairMax int64) error {
	if leverage < pairMin || leverage > pairMax {
		return fmt.Errorf("%w: got %d, pair bounds [%d, %d]", ErrLeverageOutOfRange, leverage, pairMin, pairMax)
	}
	if leverage > p.GlobalMaxLeverage {
		return fmt.Errorf("%w: got %d, venue cap %d", ErrLeverageOutOfRange, leverage, p.GlobalMaxLeverage)
	}
	return nil
}

// CheckLimitTolerance verifies the oracle price sits within the tolerance
// band around the order's limit price.
func (p Params) CheckLimitTolerance(oraclePrice, limitPrice int64) error {
	if fpmath.DeviationExceeds(limitPrice, oraclePrice, p.LimitToleranceBps) {
		return fmt.Errorf("%w: oracle=%d limit=%d tolerance=%dbps",
			ErrPriceOutOfTolerance, oraclePrice, limitPrice, p.LimitToleranceBps)
	}
	return nil
}

// LiquidationReward returns the liquidator's incentive: the forfeited
// collateral plus a bonus share of it.
func (p Params) LiquidationReward(collateral int64) int64 {
	return collateral + fpmath.PercentOf(collateral, p.LiquidationBonusPct)
}
