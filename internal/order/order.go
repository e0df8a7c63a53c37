// Package order implements the resting-order ledger. An order escrows its
// collateral at submission and resolves exactly once: executed into a
// position, cancelled by its owner, or expired past its deadline. The
// direction stays sealed for the order's whole lifetime.
package order

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"PerpVenue/internal/confidential"
)

var (
	// ErrUnknownOrder rejects operations on missing orders.
	ErrUnknownOrder = errors.New("order: unknown order")

	// ErrNotOwner rejects owner-only operations from other callers.
	ErrNotOwner = errors.New("order: caller is not the owner")

	// ErrNotPending rejects a second resolution of an already resolved
	// order.
	ErrNotPending = errors.New("order: order is not pending")

	// ErrExpiryInPast rejects limit orders whose deadline already passed at
	// submission.
	ErrExpiryInPast = errors.New("order: expiry is in the past")
)

// Type distinguishes immediate from resting orders.
type Type string

const (
	TypeMarket Type = "market"
	TypeLimit  Type = "limit"
)

// Status is the order lifecycle state. Pending is the only non-terminal
// state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuted  Status = "executed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Order is one submitted order. Collateral carries 1e6 scale, LimitPrice
// 1e8 scale (zero for market orders).
type Order struct {
	ID     int64
	Owner  uuid.UUID
	Pair   string
	Type   Type
	Status Status

	// Direction stays sealed for the order's whole lifetime. SealedLeverage
	// is the confidential copy of Leverage; both handles migrate unchanged
	// onto the position at execution.
	Direction      confidential.Handle
	SealedLeverage confidential.Handle

	LimitPrice int64
	Collateral int64
	Leverage   int64
	CreatedAt  time.Time
	ExpiresAt  *time.Time
}

// resolve transitions Pending -> terminal. Any other transition is a bug in
// the caller.
func (o *Order) resolve(to Status) error {
	if o.Status != StatusPending {
		return fmt.Errorf("%w: order %d is %s", ErrNotPending, o.ID, o.Status)
	}
	o.Status = to
	return nil
}

// Book is the in-memory order table. Not thread-safe: mutated only under
// the venue core's transaction lock. Resolved orders stay in the table for
// status queries; only pending ones are swept.
type Book struct {
	orders  map[int64]*Order
	pending map[int64]*Order
}

func NewBook() *Book {
	return &Book{
		orders:  make(map[int64]*Order),
		pending: make(map[int64]*Order),
	}
}

// Insert registers a newly submitted order. Limit orders with a deadline
// already in the past are rejected here rather than left for the sweeper.
func (b *Book) Insert(o *Order, now time.Time) error {
	if _, exists := b.orders[o.ID]; exists {
		return fmt.Errorf("order %d already exists", o.ID)
	}
	if o.ExpiresAt != nil && !o.ExpiresAt.After(now) {
		return fmt.Errorf("%w: %s", ErrExpiryInPast, o.ExpiresAt.Format(time.RFC3339))
	}
	o.Status = StatusPending
	b.orders[o.ID] = o
	b.pending[o.ID] = o
	return nil
}

// Get returns an order (any status) or ErrUnknownOrder.
func (b *Book) Get(id int64) (*Order, error) {
	o, ok := b.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOrder, id)
	}
	return o, nil
}

// GetPendingOwned returns a pending order after checking ownership.
func (b *Book) GetPendingOwned(id int64, caller uuid.UUID) (*Order, error) {
	o, err := b.Get(id)
	if err != nil {
		return nil, err
	}
	if o.Owner != caller {
		return nil, fmt.Errorf("%w: order %d", ErrNotOwner, id)
	}
	if o.Status != StatusPending {
		return nil, fmt.Errorf("%w: order %d is %s", ErrNotPending, id, o.Status)
	}
	return o, nil
}

// MarkExecuted resolves an order into a position.
func (b *Book) MarkExecuted(id int64) error {
	return b.resolve(id, StatusExecuted)
}

// MarkCancelled resolves an owner cancellation.
func (b *Book) MarkCancelled(id int64) error {
	return b.resolve(id, StatusCancelled)
}

// MarkExpired resolves a deadline expiry.
func (b *Book) MarkExpired(id int64) error {
	return b.resolve(id, StatusExpired)
}

func (b *Book) resolve(id int64, to Status) error {
	o, err := b.Get(id)
	if err != nil {
		return err
	}
	if err := o.resolve(to); err != nil {
		return err
	}
	delete(b.pending, id)
	return nil
}

// SweepExpired returns the pending orders whose deadline has passed, in
// ascending id order. The caller resolves each one and refunds its escrow;
// calling the sweep again for the same instant returns nothing new.
func (b *Book) SweepExpired(now time.Time) []*Order {
	var due []*Order
	for _, o := range b.pending {
		if o.ExpiresAt != nil && !o.ExpiresAt.After(now) {
			due = append(due, o)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due
}

// Pending returns the pending orders on a pair in ascending id order.
func (b *Book) Pending(pair string) []*Order {
	var result []*Order
	for _, o := range b.pending {
		if o.Pair == pair {
			result = append(result, o)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
