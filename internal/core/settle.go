package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"PerpVenue/internal/confidential"
	"PerpVenue/internal/event"
	fpmath "PerpVenue/internal/math"
	"PerpVenue/internal/position"
)

var (
	// ErrSettlementPending rejects a second close/stop-loss request while
	// one is already awaiting its reveal.
	ErrSettlementPending = errors.New("core: settlement already pending")

	// ErrNoPendingSettlement rejects a settlement reveal with no matching
	// request. Each request is consumed exactly once.
	ErrNoPendingSettlement = errors.New("core: no pending settlement request")

	// ErrStopLossNotSet rejects stop-loss operations on positions without
	// a sealed trigger.
	ErrStopLossNotSet = errors.New("core: no stop loss set")

	// ErrStopLossNotTriggered means the revealed trigger did not fire at
	// the snapshot price. The request is consumed; the owner may request a
	// new check later.
	ErrStopLossNotTriggered = errors.New("core: stop loss not triggered")

	// ErrNotLiquidatable rejects liquidation attempts on healthy positions.
	ErrNotLiquidatable = errors.New("core: position is not liquidatable")
)

// verifyReveal transitions a sealed handle to public and checks the claimed
// plaintext against it. The reveal is one-way: once a settlement names a
// value, the handle stays publicly checkable.
func (v *Venue) verifyReveal(h confidential.Handle, claimed int64) error {
	if err := v.vault.RevealPublic(h); err != nil {
		return err
	}
	return v.vault.Verify(h, claimed)
}

// ReconcileOpenInterest is phase 2 of the two-phase open: the owner reveals
// the direction, the engine verifies it against the sealed handle, commits
// the size to the pair's aggregate counter and fixes the liquidation price
// for the true direction. Accepted once per position.
func (v *Venue) ReconcileOpenInterest(positionID int64, owner uuid.UUID, dir event.Direction, now time.Time) (err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	start := time.Now()
	defer func() { v.observe("reconcile_open_interest", start, err) }()

	pos, err := v.positions.GetOwned(positionID, owner)
	if err != nil {
		return err
	}
	if pos.Reconciled {
		return fmt.Errorf("%w: position %d", position.ErrAlreadyReconciled, positionID)
	}
	if err = v.verifyReveal(pos.Direction, int64(dir)); err != nil {
		return err
	}

	p, err := v.pairs.Get(pos.Pair)
	if err != nil {
		return err
	}

	pos.Reconciled = true
	pos.DirectionSign = dir.Sign()
	pos.LiquidationPrice = fpmath.ComputeLiquidationPrice(
		pos.DirectionSign, pos.EntryPrice, pos.PublicLeverage, v.params.MaintenanceMarginPct)
	p.AddOpenInterest(pos.DirectionSign, pos.Size)

	v.emit(&event.OpenInterestReconciled{
		EventID:    uuid.New(),
		PositionID: positionID,
		Pair:       pos.Pair,
		Direction:  dir.String(),
		Size:       pos.Size,
		Timestamp:  now,
	}, now)
	return nil
}

// RequestClose records the intent half of the close handshake and pins the
// price snapshot the settlement will use. The owner then reveals the
// direction off-engine and calls CloseWithDirection.
func (v *Venue) RequestClose(positionID int64, owner uuid.UUID, now time.Time) (priceSnapshot int64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	start := time.Now()
	defer func() { v.observe("request_close", start, err) }()

	pos, err := v.positions.GetOwned(positionID, owner)
	if err != nil {
		return 0, err
	}
	if pos.PendingClose != nil {
		return 0, fmt.Errorf("%w: position %d", ErrSettlementPending, positionID)
	}
	p, err := v.pairForTrade(pos.Pair, now)
	if err != nil {
		return 0, err
	}

	pos.PendingClose = &position.PendingSettlement{
		PriceSnapshot: p.Price,
		RequestedAt:   now,
	}

	v.emit(&event.CloseRequested{
		EventID:       uuid.New(),
		PositionID:    positionID,
		Pair:          pos.Pair,
		PriceSnapshot: p.Price,
		Timestamp:     now,
	}, now)
	return p.Price, nil
}

// CloseWithDirection settles a pending close at the snapshot price, after
// verifying the revealed direction against the sealed handle. The pending
// request is consumed whether or not the reveal verifies.
func (v *Venue) CloseWithDirection(positionID int64, owner uuid.UUID, dir event.Direction, now time.Time) (pnl int64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	start := time.Now()
	defer func() { v.observe("close_position", start, err) }()

	pos, err := v.positions.GetOwned(positionID, owner)
	if err != nil {
		return 0, err
	}
	if pos.PendingClose == nil || pos.PendingClose.StopLossCheck {
		return 0, fmt.Errorf("%w: position %d", ErrNoPendingSettlement, positionID)
	}

	snapshot := pos.PendingClose.PriceSnapshot
	pos.PendingClose = nil

	if err = v.verifyReveal(pos.Direction, int64(dir)); err != nil {
		return 0, err
	}
	if pos.Reconciled && pos.DirectionSign != dir.Sign() {
		// The reveal verified against the handle, so a sign disagreement
		// with the reconciled record cannot happen unless state is corrupt.
		panic(fmt.Sprintf("FATAL: position %d direction diverged from reconciled sign", positionID))
	}

	return v.settleClose(pos, dir, snapshot, event.CloseReasonOwner, now)
}

// settleClose performs the shared close settlement. Caller has verified the
// reveal and holds the mutex.
func (v *Venue) settleClose(pos *position.Position, dir event.Direction, exitPrice int64, reason event.CloseReason, now time.Time) (int64, error) {
	p, err := v.pairs.Get(pos.Pair)
	if err != nil {
		return 0, err
	}

	sign := dir.Sign()
	rawPnL := fpmath.ComputePnL(sign, exitPrice, pos.EntryPrice, pos.Size)
	closingFee := fpmath.FeeFromBps(pos.Collateral, p.FeeBps)

	amountReturned := pos.Collateral + rawPnL - closingFee
	if amountReturned < 0 {
		amountReturned = 0
	}
	// The opening fee lands in PnL at settlement, so the figure is
	// reproducible from stored position fields alone; the closing fee is a
	// separate line item in the payout. A close at the entry price reports
	// exactly -openingFee.
	settledPnL := rawPnL - pos.OpeningFee

	if clamped := v.pool.SettleClose(pos.Size, amountReturned); clamped {
		v.log.Warn().Int64("position_id", pos.ID).Msg("pool reservation underflow clamped at close")
	}
	v.pool.AddFee(closingFee)

	if pos.Reconciled {
		if clamped := p.ReduceOpenInterest(pos.DirectionSign, pos.Size); clamped {
			v.log.Warn().Int64("position_id", pos.ID).Str("pair", pos.Pair).
				Msg("open interest underflow clamped at close")
		}
	}

	v.balances.Payout(pos.Owner, amountReturned)
	v.positions.Remove(pos.ID)

	v.emit(&event.PositionClosed{
		EventID:        uuid.New(),
		PositionID:     pos.ID,
		Pair:           pos.Pair,
		Direction:      dir.String(),
		ExitPrice:      exitPrice,
		PnL:            settledPnL,
		PnLString:      event.FormatQuote(settledPnL),
		ClosingFee:     closingFee,
		AmountReturned: amountReturned,
		Reason:         reason,
		Timestamp:      now,
	}, now)

	v.logPool()
	return settledPnL, nil
}

// SetStopLoss attaches a sealed trigger price to a position. Replacing an
// existing trigger is allowed while no settlement is pending.
func (v *Venue) SetStopLoss(positionID int64, owner uuid.UUID, stop confidential.Handle, now time.Time) (err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	start := time.Now()
	defer func() { v.observe("set_stop_loss", start, err) }()

	pos, err := v.positions.GetOwned(positionID, owner)
	if err != nil {
		return err
	}
	if pos.PendingClose != nil {
		return fmt.Errorf("%w: position %d", ErrSettlementPending, positionID)
	}
	if stop.IsZero() {
		return fmt.Errorf("sealed stop price is required")
	}

	pos.StopLoss = stop

	v.emit(&event.StopLossSet{
		EventID:    uuid.New(),
		PositionID: positionID,
		Pair:       pos.Pair,
		Timestamp:  now,
	}, now)
	return nil
}

// RequestStopLossCheck records the intent half of the stop-loss handshake
// and pins the snapshot the trigger predicate will be evaluated against.
func (v *Venue) RequestStopLossCheck(positionID int64, owner uuid.UUID, now time.Time) (priceSnapshot int64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	start := time.Now()
	defer func() { v.observe("request_stop_loss_check", start, err) }()

	pos, err := v.positions.GetOwned(positionID, owner)
	if err != nil {
		return 0, err
	}
	if pos.StopLoss.IsZero() {
		return 0, fmt.Errorf("%w: position %d", ErrStopLossNotSet, positionID)
	}
	if pos.PendingClose != nil {
		return 0, fmt.Errorf("%w: position %d", ErrSettlementPending, positionID)
	}
	p, err := v.pairForTrade(pos.Pair, now)
	if err != nil {
		return 0, err
	}

	pos.PendingClose = &position.PendingSettlement{
		PriceSnapshot: p.Price,
		RequestedAt:   now,
		StopLossCheck: true,
	}

	v.emit(&event.StopLossCheckRequested{
		EventID:       uuid.New(),
		PositionID:    positionID,
		Pair:          pos.Pair,
		PriceSnapshot: p.Price,
		Timestamp:     now,
	}, now)
	return p.Price, nil
}

// ExecuteStopLoss settles a pending stop-loss check. The owner reveals both
// the direction and the trigger price; the engine verifies both against
// their handles, evaluates the trigger at the snapshot price (below the
// stop for longs, above for shorts) and, when it fires, runs the normal
// close settlement. The request is consumed either way.
func (v *Venue) ExecuteStopLoss(positionID int64, owner uuid.UUID, dir event.Direction, stopPrice int64, now time.Time) (pnl int64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	start := time.Now()
	defer func() { v.observe("execute_stop_loss", start, err) }()

	pos, err := v.positions.GetOwned(positionID, owner)
	if err != nil {
		return 0, err
	}
	if pos.PendingClose == nil || !pos.PendingClose.StopLossCheck {
		return 0, fmt.Errorf("%w: position %d", ErrNoPendingSettlement, positionID)
	}
	if pos.StopLoss.IsZero() {
		return 0, fmt.Errorf("%w: position %d", ErrStopLossNotSet, positionID)
	}

	snapshot := pos.PendingClose.PriceSnapshot
	pos.PendingClose = nil

	if err = v.verifyReveal(pos.Direction, int64(dir)); err != nil {
		return 0, err
	}
	if err = v.verifyReveal(pos.StopLoss, stopPrice); err != nil {
		return 0, err
	}

	triggered := false
	if dir.Sign() > 0 {
		triggered = snapshot < stopPrice
	} else {
		triggered = snapshot > stopPrice
	}
	if !triggered {
		return 0, fmt.Errorf("%w: snapshot=%d stop=%d", ErrStopLossNotTriggered, snapshot, stopPrice)
	}

	return v.settleClose(pos, dir, snapshot, event.CloseReasonStopLoss, now)
}

// Liquidate lets any caller liquidate an underwater position. When the
// direction has been reconciled the exact liquidation price applies; before
// that the check is conservative and requires the price to breach the
// threshold for BOTH directions, trading precision for availability while
// the direction is sealed. The liquidator's reward is the forfeited
// collateral plus the policy bonus, clamped to what the pool can fund.
func (v *Venue) Liquidate(positionID int64, liquidator uuid.UUID, now time.Time) (reward int64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	start := time.Now()
	defer func() { v.observe("liquidate", start, err) }()

	pos, err := v.positions.Get(positionID)
	if err != nil {
		return 0, err
	}
	p, err := v.pairForTrade(pos.Pair, now)
	if err != nil {
		return 0, err
	}

	if pos.Reconciled {
		liq := pos.LiquidationPrice
		if pos.DirectionSign > 0 && p.Price > liq {
			return 0, fmt.Errorf("%w: price=%d long threshold=%d", ErrNotLiquidatable, p.Price, liq)
		}
		if pos.DirectionSign < 0 && p.Price < liq {
			return 0, fmt.Errorf("%w: price=%d short threshold=%d", ErrNotLiquidatable, p.Price, liq)
		}
	} else {
		longLiq := fpmath.ComputeLiquidationPrice(1, pos.EntryPrice, pos.PublicLeverage, v.params.MaintenanceMarginPct)
		shortLiq := fpmath.ComputeLiquidationPrice(-1, pos.EntryPrice, pos.PublicLeverage, v.params.MaintenanceMarginPct)
		if p.Price > longLiq && p.Price < shortLiq {
			return 0, fmt.Errorf("%w: price=%d thresholds=[%d, %d]", ErrNotLiquidatable, p.Price, longLiq, shortLiq)
		}
	}

	// Release the reservation first: the freed size funds the reward, so
	// the clamp only bites when the whole pool cannot cover it.
	if clamped := v.pool.SettleLiquidation(pos.Size); clamped {
		v.log.Warn().Int64("position_id", positionID).Msg("pool reservation underflow clamped at liquidation")
	}
	reward = v.pool.PayReward(v.params.LiquidationReward(pos.Collateral))
	if pos.Reconciled {
		if clamped := p.ReduceOpenInterest(pos.DirectionSign, pos.Size); clamped {
			v.log.Warn().Int64("position_id", positionID).Str("pair", pos.Pair).
				Msg("open interest underflow clamped at liquidation")
		}
	}

	v.balances.Payout(liquidator, reward)
	v.positions.Remove(positionID)

	v.emit(&event.PositionLiquidated{
		EventID:    uuid.New(),
		PositionID: positionID,
		Pair:       pos.Pair,
		Liquidator: liquidator,
		Price:      p.Price,
		Reward:     reward,
		Timestamp:  now,
	}, now)

	v.log.Info().
		Int64("position_id", positionID).
		Str("pair", pos.Pair).
		Str("price", event.FormatPrice(p.Price)).
		Str("reward", event.FormatQuote(reward)).
		Msg("position liquidated")

	v.logPool()
	return reward, nil
}
