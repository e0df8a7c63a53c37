// Package oracle maintains the per-pair price ledger: current price,
// freshness, active flag and the aggregate open-interest counters. Prices
// arrive through two paths — a push path guarded by a deviation bound, and
// an attested pull path that skips the deviation check because the value is
// cryptographically vouched for by the external feed.
package oracle

import (
	"errors"
	"fmt"
	"time"

	fpmath "PerpVenue/internal/math"
)

var (
	// ErrUnknownPair rejects operations on unlisted symbols.
	ErrUnknownPair = errors.New("oracle: unknown pair")

	// ErrPairExists rejects duplicate listings.
	ErrPairExists = errors.New("oracle: pair already listed")

	// ErrInvalidPrice rejects non-positive prices on either update path.
	ErrInvalidPrice = errors.New("oracle: invalid price")

	// ErrDeviationTooHigh rejects a push update that moves too far from the
	// previous price. Recoverable once the feed posts a compliant price.
	ErrDeviationTooHigh = errors.New("oracle: price deviation too high")

	// ErrAttestationStale rejects a pull update whose attested timestamp is
	// older than the short pull-path bound.
	ErrAttestationStale = errors.New("oracle: attested price too old")
)

// PullStalenessBound is the maximum age of an attested feed bundle. The
// push path has no such bound here; trade execution applies its own
// 5-minute freshness gate.
const PullStalenessBound = 30 * time.Second

// Pair is one trading symbol's ledger entry. Price is 1e8 fixed-point;
// open-interest counters are 1e6 fixed-point notional.
type Pair struct {
	Symbol            string
	Base              string
	Quote             string
	Price             int64
	LastUpdate        time.Time
	Active            bool
	MinLeverage       int64
	MaxLeverage       int64
	FeeBps            int64
	MaxDeviationBps   int64
	MaxOpenInterest   int64
	LongOpenInterest  int64
	ShortOpenInterest int64

	// Opaque identifier of the external price feed for this pair.
	FeedID string
}

// AttestedPrice is a verified bundle from the external feed's pull path.
// Verification of the validity proof happens at the ingestion boundary;
// by the time it reaches the ledger the bundle is trusted.
type AttestedPrice struct {
	Mantissa  int64
	Exponent  int32
	Timestamp time.Time
}

// PairBook is the in-memory pair table. Not thread-safe: mutated only under
// the venue core's transaction lock.
type PairBook struct {
	pairs map[string]*Pair
}

func NewPairBook() *PairBook {
	return &PairBook{
		pairs: make(map[string]*Pair),
	}
}

// Create lists a new pair. Pairs are never deleted.
func (pb *PairBook) Create(p *Pair) error {
	if _, exists := pb.pairs[p.Symbol]; exists {
		return fmt.Errorf("%w: %s", ErrPairExists, p.Symbol)
	}
	if p.MinLeverage <= 0 || p.MaxLeverage < p.MinLeverage {
		return fmt.Errorf("invalid leverage bounds [%d, %d] for %s", p.MinLeverage, p.MaxLeverage, p.Symbol)
	}
	pb.pairs[p.Symbol] = p
	return nil
}

// Get returns the pair entry or ErrUnknownPair.
func (pb *PairBook) Get(symbol string) (*Pair, error) {
	p, ok := pb.pairs[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPair, symbol)
	}
	return p, nil
}

// Push applies a feed push. Returns whether the pair was activated by this
// update. The deviation bound applies only on this path.
func (pb *PairBook) Push(symbol string, price int64, now time.Time) (activated bool, err error) {
	p, err := pb.Get(symbol)
	if err != nil {
		return false, err
	}
	if price <= 0 {
		return false, fmt.Errorf("%w: %d", ErrInvalidPrice, price)
	}
	if p.Price > 0 && fpmath.DeviationExceeds(p.Price, price, p.MaxDeviationBps) {
		return false, fmt.Errorf("%w: old=%d new=%d bound=%dbps", ErrDeviationTooHigh, p.Price, price, p.MaxDeviationBps)
	}

	activated = !p.Active
	p.Price = price
	if now.After(p.LastUpdate) {
		p.LastUpdate = now
	}
	p.Active = true
	return activated, nil
}

// ApplyAttested applies a pull-path bundle. No deviation check: the value is
// attested by the trusted external source. The attested timestamp must be
// recent.
func (pb *PairBook) ApplyAttested(symbol string, attested AttestedPrice, now time.Time) (activated bool, price int64, err error) {
	p, err := pb.Get(symbol)
	if err != nil {
		return false, 0, err
	}
	if now.Sub(attested.Timestamp) > PullStalenessBound {
		return false, 0, fmt.Errorf("%w: attested at %s", ErrAttestationStale, attested.Timestamp.Format(time.RFC3339))
	}

	price = fpmath.CanonicalFromFeed(attested.Mantissa, attested.Exponent)
	if price <= 0 {
		return false, 0, fmt.Errorf("%w: mantissa=%d exponent=%d", ErrInvalidPrice, attested.Mantissa, attested.Exponent)
	}

	activated = !p.Active
	p.Price = price
	if now.After(p.LastUpdate) {
		p.LastUpdate = now
	}
	p.Active = true
	return activated, price, nil
}

// Price returns (price, lastUpdate, active) for a pair.
func (pb *PairBook) Price(symbol string) (int64, time.Time, bool, error) {
	p, err := pb.Get(symbol)
	if err != nil {
		return 0, time.Time{}, false, err
	}
	return p.Price, p.LastUpdate, p.Active, nil
}

// IsStale is the pure freshness predicate used by the trade engines.
func (pb *PairBook) IsStale(symbol string, now time.Time, bound time.Duration) bool {
	p, ok := pb.pairs[symbol]
	if !ok || !p.Active {
		return true
	}
	return now.Sub(p.LastUpdate) > bound
}

// AddOpenInterest adds notional to the direction's aggregate counter.
func (p *Pair) AddOpenInterest(directionSign int64, size int64) {
	if directionSign >= 0 {
		p.LongOpenInterest += size
	} else {
		p.ShortOpenInterest += size
	}
}

// ReduceOpenInterest subtracts notional with floor-at-zero protection.
// Returns true when the subtraction had to be clamped (the caller logs it).
func (p *Pair) ReduceOpenInterest(directionSign int64, size int64) (clamped bool) {
	counter := &p.LongOpenInterest
	if directionSign < 0 {
		counter = &p.ShortOpenInterest
	}
	if *counter < size {
		*counter = 0
		return true
	}
	*counter -= size
	return false
}

// All returns every listed pair (stable iteration is the caller's concern).
func (pb *PairBook) All() []*Pair {
	result := make([]*Pair, 0, len(pb.pairs))
	for _, p := range pb.pairs {
		result = append(result, p)
	}
	return result
}
