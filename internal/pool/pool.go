// Package pool implements the shared liquidity pool that acts as the
// counterparty to every position. The pool owns three balances in the
// settlement asset: total (capital contributed plus fees), available (free
// to back new positions or be withdrawn) and reserved (earmarked against
// live positions). Provider ownership is tracked as shares; share value
// floats with accumulated fees.
package pool

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	fpmath "PerpVenue/internal/math"
)

var (
	// ErrInsufficientLiquidity rejects an operation the available balance
	// cannot cover. Recoverable once providers add funds or positions close.
	ErrInsufficientLiquidity = errors.New("pool: insufficient available liquidity")

	// ErrInsufficientShares rejects a redemption exceeding the provider's
	// share balance.
	ErrInsufficientShares = errors.New("pool: insufficient shares")
)

// Provider tracks one liquidity provider's stake.
type Provider struct {
	Shares   int64
	Deposits int64 // lifetime contributed capital, informational
}

// Pool is the in-memory pool ledger. Amounts are 1e6 fixed-point USD.
// Not thread-safe: mutated only under the venue core's transaction lock.
type Pool struct {
	total       int64
	available   int64
	reserved    int64
	accumFees   int64
	totalShares int64
	providers   map[uuid.UUID]*Provider
}

func New() *Pool {
	return &Pool{
		providers: make(map[uuid.UUID]*Provider),
	}
}

func (p *Pool) Total() int64       { return p.total }
func (p *Pool) Available() int64   { return p.available }
func (p *Pool) Reserved() int64    { return p.reserved }
func (p *Pool) AccumFees() int64   { return p.accumFees }
func (p *Pool) TotalShares() int64 { return p.totalShares }

// Shares returns a provider's share balance.
func (p *Pool) Shares(provider uuid.UUID) int64 {
	rec, ok := p.providers[provider]
	if !ok {
		return 0
	}
	return rec.Shares
}

// Add contributes capital and mints shares. The first deposit mints 1:1;
// later deposits mint amount*total/available. The denominator is available,
// not total: high utilization makes new shares more expensive, which rewards
// the providers whose capital is currently at risk. Deliberate economic
// behavior, not a bug.
func (p *Pool) Add(provider uuid.UUID, amount int64) (minted int64, err error) {
	if amount <= 0 {
		return 0, fmt.Errorf("liquidity amount must be positive, got %d", amount)
	}
	if p.total > 0 && p.available == 0 {
		// Fully utilized pool: share price is undefined until a position
		// settles and frees liquidity.
		return 0, fmt.Errorf("%w: pool fully utilized", ErrInsufficientLiquidity)
	}

	minted = fpmath.SharesToMint(amount, p.total, p.available)
	if minted <= 0 {
		return 0, fmt.Errorf("amount %d mints zero shares", amount)
	}

	rec, ok := p.providers[provider]
	if !ok {
		rec = &Provider{}
		p.providers[provider] = rec
	}
	rec.Shares += minted
	rec.Deposits += amount
	p.totalShares += minted
	p.total += amount
	p.available += amount
	return minted, nil
}

// Remove redeems shares for a pro-rata slice of the available balance.
// Reserved funds back live positions and cannot be withdrawn.
func (p *Pool) Remove(provider uuid.UUID, shares int64) (payout int64, err error) {
	if shares <= 0 {
		return 0, fmt.Errorf("share count must be positive, got %d", shares)
	}
	rec, ok := p.providers[provider]
	if !ok || rec.Shares < shares {
		held := int64(0)
		if ok {
			held = rec.Shares
		}
		return 0, fmt.Errorf("%w: have=%d, need=%d", ErrInsufficientShares, held, shares)
	}

	payout = fpmath.SharePayout(shares, p.available, p.total)
	if payout > p.available {
		return 0, fmt.Errorf("%w: available=%d, payout=%d", ErrInsufficientLiquidity, p.available, payout)
	}

	rec.Shares -= shares
	p.totalShares -= shares
	p.available -= payout
	p.total -= payout
	return payout, nil
}

// Reserve earmarks available funds against a newly opened position's
// notional size.
func (p *Pool) Reserve(size int64) error {
	if size <= 0 {
		return fmt.Errorf("reserve size must be positive, got %d", size)
	}
	if p.available < size {
		return fmt.Errorf("%w: available=%d, need=%d", ErrInsufficientLiquidity, p.available, size)
	}
	p.available -= size
	p.reserved += size
	return nil
}

// AddFee credits a trading fee to the pool. Fees grow total, so share value
// appreciates for existing providers.
func (p *Pool) AddFee(fee int64) {
	if fee <= 0 {
		return
	}
	p.accumFees += fee
	p.available += fee
	p.total += fee
}

// SettleClose releases the reservation for a closing position and books the
// pool's side of the settlement. amountReturned is what the trader receives
// out of the released reservation; whatever remains returns to available.
// A payout exceeding the reservation is absorbed silently, so available
// never decreases when a trader closes at a profit. Reserved is clamped at
// zero; the clamp flag lets the caller log the anomaly.
func (p *Pool) SettleClose(size, amountReturned int64) (clamped bool) {
	clamped = p.releaseReserved(size)
	if gain := size - amountReturned; gain > 0 {
		p.available += gain
	}
	return clamped
}

// SettleLiquidation releases the full reservation back to available: the
// position's collateral was forfeit, so the pool recovers everything it had
// earmarked.
func (p *Pool) SettleLiquidation(size int64) (clamped bool) {
	clamped = p.releaseReserved(size)
	p.available += size
	return clamped
}

// PayReward pays a liquidation reward out of pool capital, clamping the
// payout to what the pool can fund. The reward leaves the pool entirely, so
// total drops with available and share value reflects the loss.
func (p *Pool) PayReward(reward int64) (paid int64) {
	if reward <= 0 {
		return 0
	}
	paid = reward
	if paid > p.available {
		paid = p.available
	}
	p.available -= paid
	p.total -= paid
	return paid
}

func (p *Pool) releaseReserved(size int64) (clamped bool) {
	if p.reserved < size {
		p.reserved = 0
		return true
	}
	p.reserved -= size
	return false
}

// CheckInvariant verifies available + reserved never exceeds total.
func (p *Pool) CheckInvariant() error {
	if p.available < 0 || p.reserved < 0 || p.total < 0 {
		return fmt.Errorf("pool balance negative: total=%d available=%d reserved=%d", p.total, p.available, p.reserved)
	}
	if p.available+p.reserved > p.total {
		return fmt.Errorf("pool overcommitted: total=%d available=%d reserved=%d", p.total, p.available, p.reserved)
	}
	return nil
}
