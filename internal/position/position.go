// Package position implements the position ledger. A position's direction
// and leverage are confidential handles; the ledger stores only public
// fields plus the handles, and the engine verifies owner-revealed values
// against the handles at settlement time.
package position

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"PerpVenue/internal/confidential"
)

var (
	// ErrUnknownPosition rejects operations on missing or already settled
	// positions.
	ErrUnknownPosition = errors.New("position: unknown position")

	// ErrNotOwner rejects owner-only operations from other callers.
	ErrNotOwner = errors.New("position: caller is not the owner")

	// ErrAlreadyReconciled rejects a second open-interest reconciliation.
	ErrAlreadyReconciled = errors.New("position: open interest already reconciled")

	// ErrNotReconciled rejects settlement paths that require the direction
	// to have been committed to the aggregate counters first.
	ErrNotReconciled = errors.New("position: open interest not reconciled")
)

// Position is one live position. Collateral and Size carry 1e6 scale,
// prices carry 1e8 scale. Direction and Leverage stay sealed; the public
// leverage copy exists because sizing and fees are computed from it at open
// and hiding it afterwards would protect nothing.
type Position struct {
	ID         int64
	Owner      uuid.UUID
	Pair       string
	Direction  confidential.Handle
	Leverage   confidential.Handle
	EntryPrice int64
	Size       int64
	Collateral int64

	PublicLeverage int64
	OpeningFee     int64
	OpenedAt       time.Time

	// Provisional long-assumed value until the owner reconciles with the
	// revealed direction.
	LiquidationPrice int64

	// Reconciled is set once the revealed direction has been committed to
	// the pair's open-interest counters.
	Reconciled    bool
	DirectionSign int64 // valid only when Reconciled

	// StopLoss is an optional sealed trigger price.
	StopLoss confidential.Handle

	// PendingClose holds the price snapshot taken when the owner requested
	// a close or a stop-loss check; consumed exactly once by settlement.
	PendingClose *PendingSettlement
}

// PendingSettlement is the intent half of the close / stop-loss handshake.
type PendingSettlement struct {
	PriceSnapshot int64
	RequestedAt   time.Time
	StopLossCheck bool
}

// Sequence issues monotonically increasing identifiers. The engine owns one
// for positions and one for orders so restarts can resume from the highest
// persisted id.
type Sequence struct {
	next int64
}

func NewSequence(start int64) *Sequence {
	return &Sequence{next: start}
}

func (s *Sequence) Next() int64 {
	id := s.next
	s.next++
	return id
}

// Book is the in-memory position table. Not thread-safe: mutated only under
// the venue core's transaction lock. Settled positions are removed.
type Book struct {
	positions map[int64]*Position
}

func NewBook() *Book {
	return &Book{
		positions: make(map[int64]*Position),
	}
}

// Insert registers a freshly opened position.
func (b *Book) Insert(p *Position) error {
	if _, exists := b.positions[p.ID]; exists {
		return fmt.Errorf("position %d already exists", p.ID)
	}
	b.positions[p.ID] = p
	return nil
}

// Get returns a live position or ErrUnknownPosition.
func (b *Book) Get(id int64) (*Position, error) {
	p, ok := b.positions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPosition, id)
	}
	return p, nil
}

// GetOwned returns a live position after checking ownership.
func (b *Book) GetOwned(id int64, caller uuid.UUID) (*Position, error) {
	p, err := b.Get(id)
	if err != nil {
		return nil, err
	}
	if p.Owner != caller {
		return nil, fmt.Errorf("%w: position %d", ErrNotOwner, id)
	}
	return p, nil
}

// Remove deletes a settled position.
func (b *Book) Remove(id int64) {
	delete(b.positions, id)
}

// Len returns the number of live positions.
func (b *Book) Len() int {
	return len(b.positions)
}

// ByPair returns the live positions on a pair. Map order: callers needing
// determinism sort the result.
func (b *Book) ByPair(pair string) []*Position {
	var result []*Position
	for _, p := range b.positions {
		if p.Pair == pair {
			result = append(result, p)
		}
	}
	return result
}
