package math

import "testing"

const (
	price2000 = 2000 * 100_000_000
	price2100 = 2100 * 100_000_000
	price1900 = 1900 * 100_000_000
)

func TestComputePnLLong(t *testing.T) {
	// 300 USD notional opened at 2000, settled at 2100: +5% on notional.
	size := int64(300_000_000)
	got := ComputePnL(1, price2100, price2000, size)
	if got != 15_000_000 {
		t.Errorf("long pnl: got %d, want 15000000", got)
	}

	got = ComputePnL(1, price1900, price2000, size)
	if got != -15_000_000 {
		t.Errorf("long pnl on drop: got %d, want -15000000", got)
	}
}

func TestComputePnLShort(t *testing.T) {
	size := int64(300_000_000)
	got := ComputePnL(-1, price1900, price2000, size)
	if got != 15_000_000 {
		t.Errorf("short pnl: got %d, want 15000000", got)
	}

	got = ComputePnL(-1, price2100, price2000, size)
	if got != -15_000_000 {
		t.Errorf("short pnl on rise: got %d, want -15000000", got)
	}
}

func TestComputePnLFlatIsZero(t *testing.T) {
	if got := ComputePnL(1, price2000, price2000, 300_000_000); got != 0 {
		t.Errorf("flat pnl: got %d, want 0", got)
	}
}

func TestComputeLiquidationPrice(t *testing.T) {
	// entry 2000, 3x, 20% maintenance margin:
	// offset = 2000 * 0.8 / 3 = 533.33333333, long liq = 1466.66666667
	got := ComputeLiquidationPrice(1, price2000, 3, 20)
	if got != 146_666_666_667 {
		t.Errorf("long liq: got %d, want 146666666667", got)
	}

	got = ComputeLiquidationPrice(-1, price2000, 3, 20)
	if got != 253_333_333_333 {
		t.Errorf("short liq: got %d, want 253333333333", got)
	}
}

func TestComputeLiquidationPriceHighLeverage(t *testing.T) {
	// 50x: offset = 2000 * 0.8 / 50 = 32, long liq = 1968
	got := ComputeLiquidationPrice(1, price2000, 50, 20)
	if got != 1968*100_000_000 {
		t.Errorf("got %d, want %d", got, int64(1968)*100_000_000)
	}
}

func TestFeeFromBps(t *testing.T) {
	// 30 bps on 1000 USD = 3 USD
	if got := FeeFromBps(1_000_000_000, 30); got != 3_000_000 {
		t.Errorf("got %d, want 3000000", got)
	}
	if got := FeeFromBps(1_000_000_000, 0); got != 0 {
		t.Errorf("zero bps: got %d", got)
	}
}

func TestPercentOf(t *testing.T) {
	if got := PercentOf(10_000_000, 5); got != 500_000 {
		t.Errorf("got %d, want 500000", got)
	}
}

func TestSharesToMint(t *testing.T) {
	// Empty pool: 1:1.
	if got := SharesToMint(100_000_000, 0, 0); got != 100_000_000 {
		t.Errorf("empty pool: got %d", got)
	}

	// Idle pool (available == total): still 1:1 on value.
	if got := SharesToMint(100_000_000, 1_000_000_000, 1_000_000_000); got != 100_000_000 {
		t.Errorf("idle pool: got %d", got)
	}

	// Utilized pool: available below total mints more shares per unit.
	got := SharesToMint(100_000_000, 1_000_000_000, 800_000_000)
	if got != 125_000_000 {
		t.Errorf("utilized pool: got %d, want 125000000", got)
	}
}

func TestSharePayout(t *testing.T) {
	if got := SharePayout(100_000_000, 900_000_000, 1_000_000_000); got != 90_000_000 {
		t.Errorf("got %d, want 90000000", got)
	}
	if got := SharePayout(100, 100, 0); got != 0 {
		t.Errorf("empty pool payout: got %d", got)
	}
}

func TestDeviationExceeds(t *testing.T) {
	old := int64(100 * 100_000_000)

	// 25% move against a 20% bound.
	if !DeviationExceeds(old, 125*100_000_000, 2000) {
		t.Error("25% move should exceed 20% bound")
	}

	// Exactly at the bound is allowed.
	if DeviationExceeds(old, 120*100_000_000, 2000) {
		t.Error("20% move should not exceed 20% bound")
	}

	// Downward moves count too.
	if !DeviationExceeds(old, 75*100_000_000, 2000) {
		t.Error("-25% move should exceed 20% bound")
	}

	// No reference price: anything goes.
	if DeviationExceeds(0, 125*100_000_000, 2000) {
		t.Error("zero old price should never exceed")
	}
}

func TestCanonicalFromFeed(t *testing.T) {
	cases := []struct {
		mantissa int64
		exponent int32
		want     int64
	}{
		{6425075, -2, 6_425_075_000_000}, // 64250.75
		{64250, 0, 6_425_000_000_000},
		{123456789, -8, 123456789},   // already canonical scale
		{123456789012, -10, 1234567890},
		{1, 12, 0},                   // shift out of range
		{9_000_000_000_000_000_000, 2, 0}, // int64 overflow
	}
	for _, tc := range cases {
		got := CanonicalFromFeed(tc.mantissa, tc.exponent)
		if got != tc.want {
			t.Errorf("CanonicalFromFeed(%d, %d): got %d, want %d",
				tc.mantissa, tc.exponent, got, tc.want)
		}
	}
}
