package math

import "testing"

func TestMulDivExact(t *testing.T) {
	// 10e9 * 3e8 / 2e11 = 15e6, exact
	got := MulDiv(10_000_000_000, 300_000_000, 200_000_000_000, RoundHalfEven)
	if got != 15_000_000 {
		t.Errorf("got %d, want 15000000", got)
	}
}

func TestMulDivOverflowSafety(t *testing.T) {
	// a*b overflows int64 but the quotient fits.
	got := MulDiv(1_000_000_000_000, 1_000_000_000, 1_000_000_000_000, RoundHalfEven)
	if got != 1_000_000_000 {
		t.Errorf("got %d, want 1000000000", got)
	}
}

func TestMulDivBankersRounding(t *testing.T) {
	cases := []struct {
		a, b, denom int64
		want        int64
	}{
		{5, 1, 2, 2},  // 2.5 rounds to even 2
		{7, 1, 2, 4},  // 3.5 rounds to even 4
		{11, 1, 4, 3}, // 2.75 rounds up
		{9, 1, 4, 2},  // 2.25 rounds down
	}
	for _, tc := range cases {
		got := MulDiv(tc.a, tc.b, tc.denom, RoundHalfEven)
		if got != tc.want {
			t.Errorf("MulDiv(%d,%d,%d): got %d, want %d", tc.a, tc.b, tc.denom, got, tc.want)
		}
	}
}

func TestMulDivRoundDown(t *testing.T) {
	if got := MulDiv(5, 1, 2, RoundDown); got != 2 {
		t.Errorf("got %d, want 2", got)
	}
}

func TestAbs(t *testing.T) {
	if Abs(-7) != 7 || Abs(7) != 7 || Abs(0) != 0 {
		t.Error("Abs broken")
	}
}
