package pool

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

const usd = int64(1_000_000)

func TestFirstDepositMintsOneToOne(t *testing.T) {
	p := New()
	alice := uuid.New()

	minted, err := p.Add(alice, 1000*usd)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if minted != 1000*usd {
		t.Errorf("minted: got %d, want %d", minted, 1000*usd)
	}
	if p.Total() != 1000*usd || p.Available() != 1000*usd {
		t.Errorf("balances: total=%d available=%d", p.Total(), p.Available())
	}
	if p.Shares(alice) != 1000*usd {
		t.Errorf("shares: got %d", p.Shares(alice))
	}
}

func TestIdlePoolMintsAtParValue(t *testing.T) {
	p := New()
	alice, bob := uuid.New(), uuid.New()

	p.Add(alice, 1000*usd)
	minted, err := p.Add(bob, 100*usd)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	// available == total, so 100 buys exactly 100 shares.
	if minted != 100*usd {
		t.Errorf("minted: got %d, want %d", minted, 100*usd)
	}
	if p.Total() != 1100*usd || p.Available() != 1100*usd {
		t.Errorf("balances: total=%d available=%d", p.Total(), p.Available())
	}
}

func TestUtilizedPoolMintsMoreSharesPerUnit(t *testing.T) {
	p := New()
	alice, bob := uuid.New(), uuid.New()

	p.Add(alice, 1100*usd)
	if err := p.Reserve(500 * usd); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// minted = 100 * 1100 / 600
	minted, err := p.Add(bob, 100*usd)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if minted != 183_333_333 {
		t.Errorf("minted: got %d, want 183333333", minted)
	}
}

func TestAddRejectsFullyUtilizedPool(t *testing.T) {
	p := New()
	p.Add(uuid.New(), 100*usd)
	p.Reserve(100 * usd)

	if _, err := p.Add(uuid.New(), 50*usd); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Errorf("expected ErrInsufficientLiquidity, got %v", err)
	}
}

func TestRemovePaysProRataOnAvailable(t *testing.T) {
	p := New()
	alice := uuid.New()

	p.Add(alice, 1000*usd)
	p.Reserve(200 * usd)

	// payout = 100 * 800 / 1000 = 80
	payout, err := p.Remove(alice, 100*usd)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if payout != 80*usd {
		t.Errorf("payout: got %d, want %d", payout, 80*usd)
	}
	if p.Total() != 920*usd || p.Available() != 720*usd {
		t.Errorf("balances: total=%d available=%d", p.Total(), p.Available())
	}
	if p.Shares(alice) != 900*usd {
		t.Errorf("shares: got %d", p.Shares(alice))
	}
}

func TestRemoveRejectsExcessShares(t *testing.T) {
	p := New()
	alice := uuid.New()
	p.Add(alice, 100*usd)

	if _, err := p.Remove(alice, 200*usd); !errors.Is(err, ErrInsufficientShares) {
		t.Errorf("expected ErrInsufficientShares, got %v", err)
	}
	if _, err := p.Remove(uuid.New(), 1); !errors.Is(err, ErrInsufficientShares) {
		t.Errorf("unknown provider: expected ErrInsufficientShares, got %v", err)
	}
}

func TestReserveMovesExactAmount(t *testing.T) {
	p := New()
	p.Add(uuid.New(), 1000*usd)

	if err := p.Reserve(300 * usd); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if p.Available() != 700*usd || p.Reserved() != 300*usd {
		t.Errorf("after reserve: available=%d reserved=%d", p.Available(), p.Reserved())
	}

	if err := p.Reserve(800 * usd); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Errorf("expected ErrInsufficientLiquidity, got %v", err)
	}
}

func TestAddFeeGrowsTotalAndAvailable(t *testing.T) {
	p := New()
	p.Add(uuid.New(), 1000*usd)

	p.AddFee(3 * usd)
	if p.Total() != 1003*usd || p.Available() != 1003*usd || p.AccumFees() != 3*usd {
		t.Errorf("after fee: total=%d available=%d fees=%d", p.Total(), p.Available(), p.AccumFees())
	}

	// Non-positive fees are ignored.
	p.AddFee(0)
	p.AddFee(-5)
	if p.AccumFees() != 3*usd {
		t.Errorf("fees: got %d", p.AccumFees())
	}
}

func TestSettleCloseTraderLoss(t *testing.T) {
	p := New()
	p.Add(uuid.New(), 1000*usd)
	p.Reserve(300 * usd)

	// Trader gets back 80 of a 300 reservation; the pool keeps 220.
	clamped := p.SettleClose(300*usd, 80*usd)
	if clamped {
		t.Error("unexpected clamp")
	}
	if p.Reserved() != 0 {
		t.Errorf("reserved: got %d, want 0", p.Reserved())
	}
	if p.Available() != 920*usd {
		t.Errorf("available: got %d, want %d", p.Available(), 920*usd)
	}
}

func TestSettleCloseProfitableNeverDrainsAvailable(t *testing.T) {
	p := New()
	p.Add(uuid.New(), 1000*usd)
	p.Reserve(300 * usd)

	before := p.Available()
	// Trader's payout exceeds the reservation.
	p.SettleClose(300*usd, 350*usd)
	if p.Available() < before {
		t.Errorf("available decreased on profitable close: %d -> %d", before, p.Available())
	}
	if err := p.CheckInvariant(); err != nil {
		t.Errorf("invariant: %v", err)
	}
}

func TestSettleCloseClampsReservedAtZero(t *testing.T) {
	p := New()
	p.Add(uuid.New(), 1000*usd)
	p.Reserve(100 * usd)

	if clamped := p.SettleClose(200*usd, 200*usd); !clamped {
		t.Error("expected clamp flag")
	}
	if p.Reserved() != 0 {
		t.Errorf("reserved: got %d", p.Reserved())
	}
}

func TestSettleLiquidationRecoversReservation(t *testing.T) {
	p := New()
	p.Add(uuid.New(), 1000*usd)
	p.Reserve(300 * usd)

	p.SettleLiquidation(300 * usd)
	if p.Available() != 1000*usd || p.Reserved() != 0 {
		t.Errorf("after liquidation: available=%d reserved=%d", p.Available(), p.Reserved())
	}
}

func TestPayRewardClampsToAvailable(t *testing.T) {
	p := New()
	p.Add(uuid.New(), 100*usd)

	if paid := p.PayReward(60 * usd); paid != 60*usd {
		t.Errorf("paid: got %d, want %d", paid, 60*usd)
	}
	if paid := p.PayReward(60 * usd); paid != 40*usd {
		t.Errorf("clamped payout: got %d, want %d", paid, 40*usd)
	}
	if p.Available() != 0 {
		t.Errorf("available: got %d", p.Available())
	}
	if paid := p.PayReward(-5); paid != 0 {
		t.Errorf("negative reward paid %d", paid)
	}
}

func TestPayRewardLeavesThePoolEntirely(t *testing.T) {
	p := New()
	p.Add(uuid.New(), 1000*usd)

	p.PayReward(60 * usd)
	// The reward is capital leaving the pool, not a transfer between its
	// balances: total drops with available, so share value tracks the loss.
	if p.Total() != 940*usd || p.Available() != 940*usd {
		t.Errorf("after reward: total=%d available=%d", p.Total(), p.Available())
	}
	if err := p.CheckInvariant(); err != nil {
		t.Errorf("invariant: %v", err)
	}
}

func TestInvariantHolds(t *testing.T) {
	p := New()
	alice := uuid.New()
	p.Add(alice, 1000*usd)
	p.Reserve(400 * usd)
	p.AddFee(2 * usd)
	p.SettleClose(400*usd, 350*usd)
	p.Remove(alice, 500*usd)

	if err := p.CheckInvariant(); err != nil {
		t.Errorf("invariant: %v", err)
	}
}
