package core_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"PerpVenue/internal/confidential"
	"PerpVenue/internal/core"
	"PerpVenue/internal/event"
	"PerpVenue/internal/position"
)

// ============================================================================
// Test: Open Interest Reconciliation
// ============================================================================

func TestReconcileOpenInterest(t *testing.T) {
	h := newHarness(t)
	h.listActivePair(t)
	h.seedPool(t, 10_000*usd)
	trader := uuid.New()
	posID := h.openMarket(t, trader, event.DirectionShort)

	// Fresh positions carry the long-assumed liquidation price.
	pos, _ := h.venue.Position(posID)
	if pos.LiquidationPrice != 1680*px {
		t.Fatalf("provisional liquidation price: got %d", pos.LiquidationPrice)
	}

	if err := h.venue.ReconcileOpenInterest(posID, uuid.New(), event.DirectionShort, h.now); !errors.Is(err, position.ErrNotOwner) {
		t.Errorf("foreign reconcile: got %v", err)
	}
	// A false reveal is rejected against the sealed record.
	if err := h.venue.ReconcileOpenInterest(posID, trader, event.DirectionLong, h.now); !errors.Is(err, confidential.ErrRevealMismatch) {
		t.Errorf("false reveal: got %v", err)
	}

	if err := h.venue.ReconcileOpenInterest(posID, trader, event.DirectionShort, h.now); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	// The liquidation price is recomputed for the true direction:
	// 2000 * (1 + 0.8/5) = 2320.
	pos, _ = h.venue.Position(posID)
	if !pos.Reconciled || pos.DirectionSign != -1 {
		t.Errorf("reconciled state: reconciled=%v sign=%d", pos.Reconciled, pos.DirectionSign)
	}
	if pos.LiquidationPrice != 2320*px {
		t.Errorf("short liquidation price: got %d", pos.LiquidationPrice)
	}

	if err := h.venue.ReconcileOpenInterest(posID, trader, event.DirectionShort, h.now); !errors.Is(err, position.ErrAlreadyReconciled) {
		t.Errorf("second reconcile: got %v", err)
	}
	if !hasEventType(drainOutputs(h.persist), event.EventTypeOpenInterestReconciled) {
		t.Error("missing OpenInterestReconciled event")
	}
}

// ============================================================================
// Test: Close Handshake
// ============================================================================

func TestCloseAtEntryReportsExactlyOpeningFee(t *testing.T) {
	h := newHarness(t)
	h.listActivePair(t)
	h.seedPool(t, 10_000*usd)
	trader := uuid.New()
	posID := h.openMarket(t, trader, event.DirectionLong)

	snapshot, err := h.venue.RequestClose(posID, trader, h.now)
	if err != nil {
		t.Fatalf("request close: %v", err)
	}
	if snapshot != 2000*px {
		t.Errorf("snapshot: got %d", snapshot)
	}
	if _, err := h.venue.RequestClose(posID, trader, h.now); !errors.Is(err, core.ErrSettlementPending) {
		t.Errorf("second request: got %v", err)
	}

	pnl, err := h.venue.CloseWithDirection(posID, trader, event.DirectionLong, h.now)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	// Flat price: reported pnl is the deferred opening fee and nothing
	// else; the closing fee shows up in the payout, not in pnl.
	if pnl != -300_000 {
		t.Errorf("pnl: got %d, want -300000", pnl)
	}

	// returned = 99.7 collateral - 0.2991 closing fee (30 bps of the
	// stored collateral).
	available, _ := h.venue.Balance(trader)
	if available != 900*usd+99_400_900 {
		t.Errorf("balance: got %d", available)
	}
	if _, err := h.venue.Position(posID); !errors.Is(err, position.ErrUnknownPosition) {
		t.Errorf("settled position still live: %v", err)
	}
	if _, _, reserved, _ := h.venue.PoolBalances(); reserved != 0 {
		t.Errorf("reserved after close: got %d", reserved)
	}
}

func TestCloseSettlesAtPinnedSnapshot(t *testing.T) {
	h := newHarness(t)
	h.listActivePair(t)
	h.seedPool(t, 10_000*usd)
	trader := uuid.New()
	posID := h.openMarket(t, trader, event.DirectionLong)

	if err := h.venue.PushPrice("BTC/USD", 2100*px, h.now); err != nil {
		t.Fatalf("push price: %v", err)
	}
	if _, err := h.venue.RequestClose(posID, trader, h.now); err != nil {
		t.Fatalf("request close: %v", err)
	}

	// The price keeps moving after the request; the settlement must use the
	// snapshot pinned at request time.
	if err := h.venue.PushPrice("BTC/USD", 2200*px, h.now); err != nil {
		t.Fatalf("push price: %v", err)
	}

	pnl, err := h.venue.CloseWithDirection(posID, trader, event.DirectionLong, h.now)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	// raw pnl at 2100 = (2100-2000)/2000 * 500 = 25; minus the 0.3
	// opening fee.
	if pnl != 24_700_000 {
		t.Errorf("pnl: got %d, want 24700000", pnl)
	}
	// returned = 99.7 + 25 - 0.2991.
	available, _ := h.venue.Balance(trader)
	if available != 900*usd+124_400_900 {
		t.Errorf("balance: got %d", available)
	}
}

func TestCloseRequestConsumedOnFailedReveal(t *testing.T) {
	h := newHarness(t)
	h.listActivePair(t)
	h.seedPool(t, 10_000*usd)
	trader := uuid.New()
	posID := h.openMarket(t, trader, event.DirectionLong)

	if _, err := h.venue.RequestClose(posID, trader, h.now); err != nil {
		t.Fatalf("request close: %v", err)
	}
	if _, err := h.venue.CloseWithDirection(posID, trader, event.DirectionShort, h.now); !errors.Is(err, confidential.ErrRevealMismatch) {
		t.Fatalf("false reveal: got %v", err)
	}

	// The request was consumed by the failed attempt.
	if _, err := h.venue.CloseWithDirection(posID, trader, event.DirectionLong, h.now); !errors.Is(err, core.ErrNoPendingSettlement) {
		t.Errorf("consumed request: got %v", err)
	}

	// A fresh request settles normally.
	if _, err := h.venue.RequestClose(posID, trader, h.now); err != nil {
		t.Fatalf("second request: %v", err)
	}
	if _, err := h.venue.CloseWithDirection(posID, trader, event.DirectionLong, h.now); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestCloseWithoutRequestRejected(t *testing.T) {
	h := newHarness(t)
	h.listActivePair(t)
	h.seedPool(t, 10_000*usd)
	trader := uuid.New()
	posID := h.openMarket(t, trader, event.DirectionLong)

	if _, err := h.venue.CloseWithDirection(posID, trader, event.DirectionLong, h.now); !errors.Is(err, core.ErrNoPendingSettlement) {
		t.Errorf("close without request: got %v", err)
	}
}

// ============================================================================
// Test: Stop Loss
// ============================================================================

func TestStopLossHandshake(t *testing.T) {
	h := newHarness(t)
	h.listActivePair(t)
	h.seedPool(t, 10_000*usd)
	trader := uuid.New()
	posID := h.openMarket(t, trader, event.DirectionLong)

	// No trigger attached yet.
	if _, err := h.venue.RequestStopLossCheck(posID, trader, h.now); !errors.Is(err, core.ErrStopLossNotSet) {
		t.Fatalf("check without stop: got %v", err)
	}

	stop := 1950 * px
	if err := h.venue.SetStopLoss(posID, uuid.New(), h.seal(t, stop, trader), h.now); !errors.Is(err, position.ErrNotOwner) {
		t.Errorf("foreign set: got %v", err)
	}
	if err := h.venue.SetStopLoss(posID, trader, h.seal(t, stop, trader), h.now); err != nil {
		t.Fatalf("set stop loss: %v", err)
	}

	// Snapshot 2000 is not below the 1950 trigger for a long.
	if _, err := h.venue.RequestStopLossCheck(posID, trader, h.now); err != nil {
		t.Fatalf("request check: %v", err)
	}
	// A stop-loss check cannot be settled through the plain close path.
	if _, err := h.venue.CloseWithDirection(posID, trader, event.DirectionLong, h.now); !errors.Is(err, core.ErrNoPendingSettlement) {
		t.Errorf("close against stop check: got %v", err)
	}
	if _, err := h.venue.ExecuteStopLoss(posID, trader, event.DirectionLong, stop, h.now); !errors.Is(err, core.ErrStopLossNotTriggered) {
		t.Fatalf("untriggered: got %v", err)
	}
	// The check was consumed either way.
	if _, err := h.venue.ExecuteStopLoss(posID, trader, event.DirectionLong, stop, h.now); !errors.Is(err, core.ErrNoPendingSettlement) {
		t.Errorf("consumed check: got %v", err)
	}

	// Price breaches the trigger; a fresh check fires and settles at the
	// pinned snapshot.
	if err := h.venue.PushPrice("BTC/USD", 1900*px, h.now); err != nil {
		t.Fatalf("push price: %v", err)
	}
	if _, err := h.venue.RequestStopLossCheck(posID, trader, h.now); err != nil {
		t.Fatalf("request check: %v", err)
	}
	pnl, err := h.venue.ExecuteStopLoss(posID, trader, event.DirectionLong, stop, h.now)
	if err != nil {
		t.Fatalf("execute stop loss: %v", err)
	}
	// raw pnl at 1900 = -25; minus the 0.3 opening fee.
	if pnl != -25_300_000 {
		t.Errorf("pnl: got %d, want -25300000", pnl)
	}
	// returned = 99.7 - 25 - 0.2991.
	available, _ := h.venue.Balance(trader)
	if available != 900*usd+74_400_900 {
		t.Errorf("balance: got %d", available)
	}
	if !hasEventType(drainOutputs(h.persist), event.EventTypePositionClosed) {
		t.Error("missing PositionClosed event")
	}
}

// ============================================================================
// Test: Liquidation
// ============================================================================

func TestLiquidateReconciledAtExactThreshold(t *testing.T) {
	h := newHarness(t)
	h.listActivePair(t)
	h.seedPool(t, 10_000*usd)
	trader, liquidator := uuid.New(), uuid.New()
	posID := h.openMarket(t, trader, event.DirectionLong)
	if err := h.venue.ReconcileOpenInterest(posID, trader, event.DirectionLong, h.now); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	// Liquidation threshold for the long is 1680. Above it the position is
	// healthy.
	if err := h.venue.PushPrice("BTC/USD", 1700*px, h.now); err != nil {
		t.Fatalf("push price: %v", err)
	}
	if _, err := h.venue.Liquidate(posID, liquidator, h.now); !errors.Is(err, core.ErrNotLiquidatable) {
		t.Fatalf("healthy position: got %v", err)
	}

	// Exactly at the threshold the position is liquidatable.
	if err := h.venue.PushPrice("BTC/USD", 1680*px, h.now); err != nil {
		t.Fatalf("push price: %v", err)
	}
	reward, err := h.venue.Liquidate(posID, liquidator, h.now)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	// Forfeited collateral 99.7 plus the 5% bonus.
	if reward != 104_685_000 {
		t.Errorf("reward: got %d, want 104685000", reward)
	}
	available, _ := h.venue.Balance(liquidator)
	if available != reward {
		t.Errorf("liquidator balance: got %d", available)
	}
	if _, err := h.venue.Position(posID); !errors.Is(err, position.ErrUnknownPosition) {
		t.Errorf("liquidated position still live: %v", err)
	}
	if _, _, reserved, _ := h.venue.PoolBalances(); reserved != 0 {
		t.Errorf("reserved after liquidation: got %d", reserved)
	}
	if !hasEventType(drainOutputs(h.persist), event.EventTypePositionLiquidated) {
		t.Error("missing PositionLiquidated event")
	}
}

func TestLiquidateUnreconciledRequiresBothThresholds(t *testing.T) {
	h := newHarness(t)
	h.listActivePair(t)
	h.seedPool(t, 10_000*usd)
	trader, liquidator := uuid.New(), uuid.New()
	posID := h.openMarket(t, trader, event.DirectionLong)

	// Direction still sealed: thresholds are [1680, 2320] and the price must
	// leave the band entirely before anyone may liquidate.
	if err := h.venue.PushPrice("BTC/USD", 1700*px, h.now); err != nil {
		t.Fatalf("push price: %v", err)
	}
	if _, err := h.venue.Liquidate(posID, liquidator, h.now); !errors.Is(err, core.ErrNotLiquidatable) {
		t.Fatalf("inside band: got %v", err)
	}

	if err := h.venue.PushPrice("BTC/USD", 1675*px, h.now); err != nil {
		t.Fatalf("push price: %v", err)
	}
	if _, err := h.venue.Liquidate(posID, liquidator, h.now); err != nil {
		t.Fatalf("below band: %v", err)
	}
}

func TestLiquidationRewardFundedByReleasedReservation(t *testing.T) {
	h := newHarness(t)
	h.listActivePair(t)
	// Just enough liquidity to back one 500 notional: almost everything the
	// pool holds is reserved once the position opens.
	h.seedPool(t, 501*usd)
	trader, liquidator := uuid.New(), uuid.New()
	posID := h.openMarket(t, trader, event.DirectionLong)
	if err := h.venue.ReconcileOpenInterest(posID, trader, event.DirectionLong, h.now); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if err := h.venue.PushPrice("BTC/USD", 1680*px, h.now); err != nil {
		t.Fatalf("push price: %v", err)
	}

	// Free liquidity is only 1.3 at this point, but the liquidation first
	// recovers the 500 reservation; the reward must come out of that, not
	// be clamped to the pre-release sliver.
	reward, err := h.venue.Liquidate(posID, liquidator, h.now)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if reward != 104_685_000 {
		t.Errorf("reward: got %d, want 104685000", reward)
	}

	total, available, reserved, _ := h.venue.PoolBalances()
	if reserved != 0 {
		t.Errorf("reserved: got %d", reserved)
	}
	// 501.3 recovered minus the paid reward, on both balances.
	if available != 396_615_000 || total != 396_615_000 {
		t.Errorf("pool after liquidation: total=%d available=%d", total, available)
	}
}
