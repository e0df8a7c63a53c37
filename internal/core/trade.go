package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"PerpVenue/internal/confidential"
	"PerpVenue/internal/event"
	fpmath "PerpVenue/internal/math"
	"PerpVenue/internal/oracle"
	"PerpVenue/internal/order"
	"PerpVenue/internal/pool"
	"PerpVenue/internal/position"
)

var (
	// ErrPriceStale rejects trading operations when the pair's price is
	// older than the trade freshness bound. Recoverable once the feed
	// catches up.
	ErrPriceStale = errors.New("core: price is stale")

	// ErrPairInactive rejects trading on a pair that has no accepted price
	// yet.
	ErrPairInactive = errors.New("core: pair is inactive")

	// ErrOpenInterestCap rejects opens that could push either direction's
	// aggregate past the pair's cap. Checked against both counters because
	// the direction is sealed at open time.
	ErrOpenInterestCap = errors.New("core: open interest cap exceeded")
)

// pairForTrade loads a pair and applies the shared trade-admission gates:
// listed, active, fresh price.
func (v *Venue) pairForTrade(symbol string, now time.Time) (*oracle.Pair, error) {
	p, err := v.pairs.Get(symbol)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, fmt.Errorf("%w: %s", ErrPairInactive, symbol)
	}
	if now.Sub(p.LastUpdate) > v.params.TradeStalenessBound {
		return nil, fmt.Errorf("%w: %s last updated %s", ErrPriceStale, symbol, p.LastUpdate.Format(time.RFC3339))
	}
	return p, nil
}

// OpenRequest is the caller input for both market and limit opens. Direction
// is a sealed handle; the engine never sees the plaintext.
type OpenRequest struct {
	Trader     uuid.UUID
	Pair       string
	Direction  confidential.Handle
	Collateral int64
	Leverage   int64

	// SealedLeverage is the confidential copy of Leverage stored on the
	// position. The plaintext above is what sizing and fees are computed
	// from; the handle is what settlement audits against.
	SealedLeverage confidential.Handle

	// Limit orders only.
	LimitPrice int64
	ExpiresAt  *time.Time
}

func (v *Venue) validateOpen(req OpenRequest, p *oracle.Pair) error {
	if req.Direction.IsZero() {
		return fmt.Errorf("sealed direction is required")
	}
	if req.SealedLeverage.IsZero() {
		return fmt.Errorf("sealed leverage is required")
	}
	if err := v.params.CheckCollateral(req.Collateral); err != nil {
		return err
	}
	if err := v.params.CheckLeverage(req.Leverage, p.MinLeverage, p.MaxLeverage); err != nil {
		return err
	}

	// Direction is sealed, so the cap check is conservative: the open must
	// fit whichever side it lands on.
	if p.MaxOpenInterest > 0 {
		size := fpmath.ComputeNotional(req.Collateral, req.Leverage)
		worst := p.LongOpenInterest
		if p.ShortOpenInterest > worst {
			worst = p.ShortOpenInterest
		}
		if worst+size > p.MaxOpenInterest {
			return fmt.Errorf("%w: worst-side=%d size=%d cap=%d", ErrOpenInterestCap, worst, size, p.MaxOpenInterest)
		}
	}
	return nil
}

// SubmitMarket opens a position at the current oracle price. Internally it
// is an order that executes in the same transaction, so the event log shows
// the same submit/execute pair as the limit path.
func (v *Venue) SubmitMarket(req OpenRequest, now time.Time) (orderID, positionID int64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	start := time.Now()
	defer func() { v.observe("submit_market", start, err) }()

	p, err := v.pairForTrade(req.Pair, now)
	if err != nil {
		return 0, 0, err
	}
	if err = v.validateOpen(req, p); err != nil {
		return 0, 0, err
	}

	// The escrow debit comes before every other effect; any later rejection
	// releases it so the whole submit stays all-or-nothing.
	if err = v.balances.Escrow(req.Trader, req.Collateral); err != nil {
		return 0, 0, err
	}
	size := fpmath.ComputeNotional(req.Collateral, req.Leverage)
	if v.pool.Available() < size {
		v.balances.ReleaseEscrow(req.Trader, req.Collateral)
		return 0, 0, fmt.Errorf("%w: available=%d, need=%d", pool.ErrInsufficientLiquidity, v.pool.Available(), size)
	}

	o := &order.Order{
		ID:             v.orderSeq.Next(),
		Owner:          req.Trader,
		Pair:           req.Pair,
		Type:           order.TypeMarket,
		Direction:      req.Direction,
		SealedLeverage: req.SealedLeverage,
		Collateral:     req.Collateral,
		Leverage:       req.Leverage,
		CreatedAt:      now,
	}
	if err = v.orders.Insert(o, now); err != nil {
		v.balances.ReleaseEscrow(req.Trader, req.Collateral)
		return 0, 0, err
	}

	v.emit(&event.OrderSubmitted{
		EventID:    uuid.New(),
		OrderID:    o.ID,
		Trader:     o.Owner,
		Pair:       o.Pair,
		OrderType:  string(o.Type),
		Collateral: o.Collateral,
		Leverage:   o.Leverage,
		Timestamp:  now,
	}, now)

	pos, err := v.executeOrder(o, p, p.Price, now)
	if err != nil {
		// Validations already passed; execution failure here is a bug.
		panic(fmt.Sprintf("FATAL: market execution failed after admission: %v", err))
	}
	return o.ID, pos.ID, nil
}

// SubmitLimit rests an order to be executed when the oracle price reaches
// the limit band. Collateral is escrowed for the order's whole lifetime.
func (v *Venue) SubmitLimit(req OpenRequest, now time.Time) (orderID int64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	start := time.Now()
	defer func() { v.observe("submit_limit", start, err) }()

	p, err := v.pairForTrade(req.Pair, now)
	if err != nil {
		return 0, err
	}
	if err = v.validateOpen(req, p); err != nil {
		return 0, err
	}
	if req.LimitPrice <= 0 {
		return 0, fmt.Errorf("limit price must be positive, got %d", req.LimitPrice)
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return 0, fmt.Errorf("%w: %s", order.ErrExpiryInPast, req.ExpiresAt.Format(time.RFC3339))
	}

	if err = v.balances.Escrow(req.Trader, req.Collateral); err != nil {
		return 0, err
	}

	o := &order.Order{
		ID:             v.orderSeq.Next(),
		Owner:          req.Trader,
		Pair:           req.Pair,
		Type:           order.TypeLimit,
		Direction:      req.Direction,
		SealedLeverage: req.SealedLeverage,
		LimitPrice:     req.LimitPrice,
		Collateral:     req.Collateral,
		Leverage:       req.Leverage,
		CreatedAt:      now,
		ExpiresAt:      req.ExpiresAt,
	}
	if err = v.orders.Insert(o, now); err != nil {
		v.balances.ReleaseEscrow(req.Trader, req.Collateral)
		return 0, err
	}

	v.emit(&event.OrderSubmitted{
		EventID:    uuid.New(),
		OrderID:    o.ID,
		Trader:     o.Owner,
		Pair:       o.Pair,
		OrderType:  string(o.Type),
		LimitPrice: o.LimitPrice,
		Collateral: o.Collateral,
		Leverage:   o.Leverage,
		ExpiresAt:  o.ExpiresAt,
		Timestamp:  now,
	}, now)
	return o.ID, nil
}

// TryExecute attempts to fill a resting limit order at the current oracle
// price. Any caller may drive it; the tolerance band decides admission.
// A past-deadline order is resolved to Expired with its escrow refunded,
// without waiting for the sweep timer; no position results.
func (v *Venue) TryExecute(orderID int64, now time.Time) (positionID int64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	start := time.Now()
	defer func() { v.observe("try_execute", start, err) }()

	o, err := v.orders.Get(orderID)
	if err != nil {
		return 0, err
	}
	if o.Status != order.StatusPending {
		return 0, fmt.Errorf("%w: order %d is %s", order.ErrNotPending, orderID, o.Status)
	}
	if o.ExpiresAt != nil && !o.ExpiresAt.After(now) {
		v.expireOrder(o, now)
		return 0, nil
	}

	p, err := v.pairForTrade(o.Pair, now)
	if err != nil {
		return 0, err
	}
	if err = v.params.CheckLimitTolerance(p.Price, o.LimitPrice); err != nil {
		return 0, err
	}

	size := fpmath.ComputeNotional(o.Collateral, o.Leverage)
	if v.pool.Available() < size {
		return 0, fmt.Errorf("%w: available=%d, need=%d", pool.ErrInsufficientLiquidity, v.pool.Available(), size)
	}

	pos, err := v.executeOrder(o, p, p.Price, now)
	if err != nil {
		return 0, err
	}
	return pos.ID, nil
}

// executeOrder converts a pending order into a position: escrow becomes
// collateral, the pool reserves the notional, fees accrue to the pool.
// Callers must have verified pool capacity; mutations here must not fail.
func (v *Venue) executeOrder(o *order.Order, p *oracle.Pair, execPrice int64, now time.Time) (*position.Position, error) {
	size := fpmath.ComputeNotional(o.Collateral, o.Leverage)
	// Fees are basis points of collateral, not of size: leverage does not
	// inflate the fee bill.
	openingFee := fpmath.FeeFromBps(o.Collateral, p.FeeBps)
	if openingFee >= o.Collateral {
		return nil, fmt.Errorf("opening fee %d consumes collateral %d", openingFee, o.Collateral)
	}

	if err := v.balances.CaptureEscrow(o.Owner, o.Collateral); err != nil {
		return nil, err
	}
	if err := v.pool.Reserve(size); err != nil {
		v.balances.Payout(o.Owner, o.Collateral)
		return nil, err
	}
	v.pool.AddFee(openingFee)

	pos := &position.Position{
		ID:             v.positionSeq.Next(),
		Owner:          o.Owner,
		Pair:           o.Pair,
		Direction:      o.Direction,
		Leverage:       o.SealedLeverage,
		EntryPrice:     execPrice,
		Size:           size,
		Collateral:     o.Collateral - openingFee,
		PublicLeverage: o.Leverage,
		OpeningFee:     openingFee,
		OpenedAt:       now,
		// Long-assumed until the owner reconciles with the revealed
		// direction.
		LiquidationPrice: fpmath.ComputeLiquidationPrice(1, execPrice, o.Leverage, v.params.MaintenanceMarginPct),
	}
	if err := v.positions.Insert(pos); err != nil {
		panic(fmt.Sprintf("FATAL: duplicate position id %d", pos.ID))
	}
	if err := v.orders.MarkExecuted(o.ID); err != nil {
		panic(fmt.Sprintf("FATAL: executing non-pending order %d", o.ID))
	}

	v.emit(&event.OrderExecuted{
		EventID:        uuid.New(),
		OrderID:        o.ID,
		PositionID:     pos.ID,
		Pair:           o.Pair,
		ExecutionPrice: execPrice,
		PriceString:    event.FormatPrice(execPrice),
		Timestamp:      now,
	}, now)
	v.emit(&event.PositionOpened{
		EventID:          uuid.New(),
		PositionID:       pos.ID,
		Trader:           pos.Owner,
		Pair:             pos.Pair,
		Collateral:       pos.Collateral,
		Size:             pos.Size,
		Leverage:         pos.PublicLeverage,
		EntryPrice:       pos.EntryPrice,
		EntryPriceString: event.FormatPrice(pos.EntryPrice),
		OpeningFee:       pos.OpeningFee,
		LiquidationPrice: pos.LiquidationPrice,
		Timestamp:        now,
	}, now)

	v.logPool()
	return pos, nil
}

// Cancel resolves a pending order and refunds its escrow to the owner.
func (v *Venue) Cancel(orderID int64, caller uuid.UUID, now time.Time) (err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	start := time.Now()
	defer func() { v.observe("cancel_order", start, err) }()

	o, err := v.orders.GetPendingOwned(orderID, caller)
	if err != nil {
		return err
	}

	if err = v.balances.ReleaseEscrow(o.Owner, o.Collateral); err != nil {
		panic(fmt.Sprintf("FATAL: escrow missing for order %d: %v", orderID, err))
	}
	if err = v.orders.MarkCancelled(orderID); err != nil {
		panic(fmt.Sprintf("FATAL: cancelling non-pending order %d", orderID))
	}

	v.emit(&event.OrderCancelled{
		EventID:   uuid.New(),
		OrderID:   orderID,
		Pair:      o.Pair,
		Refunded:  o.Collateral,
		Timestamp: now,
	}, now)
	return nil
}

// expireOrder resolves a pending order past its deadline and refunds its
// escrow. Caller holds the mutex and has checked the deadline.
func (v *Venue) expireOrder(o *order.Order, now time.Time) {
	if err := v.balances.ReleaseEscrow(o.Owner, o.Collateral); err != nil {
		panic(fmt.Sprintf("FATAL: escrow missing for order %d: %v", o.ID, err))
	}
	if err := v.orders.MarkExpired(o.ID); err != nil {
		panic(fmt.Sprintf("FATAL: expiring non-pending order %d", o.ID))
	}

	v.emit(&event.OrderExpired{
		EventID:   uuid.New(),
		OrderID:   o.ID,
		Pair:      o.Pair,
		Refunded:  o.Collateral,
		Timestamp: now,
	}, now)

	v.log.Info().Int64("order_id", o.ID).Str("pair", o.Pair).Msg("order expired")
}

// SweepExpired resolves every pending order past its deadline and refunds
// its escrow. Idempotent for a fixed `now`: resolved orders leave the
// pending set, so a second sweep finds nothing.
func (v *Venue) SweepExpired(now time.Time) (expired []int64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, o := range v.orders.SweepExpired(now) {
		v.expireOrder(o, now)
		expired = append(expired, o.ID)
	}
	return expired
}

// Order returns a copy of an order's public state.
func (v *Venue) Order(orderID int64) (order.Order, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, err := v.orders.Get(orderID)
	if err != nil {
		return order.Order{}, err
	}
	return *o, nil
}

// Position returns a copy of a position's public state.
func (v *Venue) Position(positionID int64) (position.Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, err := v.positions.Get(positionID)
	if err != nil {
		return position.Position{}, err
	}
	return *p, nil
}
