package event

import (
	"time"

	"github.com/google/uuid"
)

// PairCreated records an administrative pair listing.
type PairCreated struct {
	EventID         uuid.UUID `json:"event_id"`
	Pair            string    `json:"pair"`
	Base            string    `json:"base"`
	Quote           string    `json:"quote"`
	MinLeverage     int64     `json:"min_leverage"`
	MaxLeverage     int64     `json:"max_leverage"`
	FeeBps          int64     `json:"fee_bps"`
	MaxOpenInterest int64     `json:"max_open_interest"`
	Timestamp       time.Time `json:"timestamp"`
}

func (e *PairCreated) IdempotencyKey() string { return e.EventID.String() }
func (e *PairCreated) EventType() EventType   { return EventTypePairCreated }
func (e *PairCreated) PairID() *string        { return &e.Pair }

// PriceSource distinguishes the oracle's two update paths.
type PriceSource string

const (
	PriceSourcePush     PriceSource = "push"
	PriceSourceAttested PriceSource = "attested"
)

// PriceUpdated records an accepted oracle price.
type PriceUpdated struct {
	EventID     uuid.UUID   `json:"event_id"`
	Pair        string      `json:"pair"`
	Price       int64       `json:"price"`
	PriceString string      `json:"price_string"`
	Source      PriceSource `json:"source"`
	Activated   bool        `json:"activated"`
	Timestamp   time.Time   `json:"timestamp"`
}

func (e *PriceUpdated) IdempotencyKey() string { return e.EventID.String() }
func (e *PriceUpdated) EventType() EventType   { return EventTypePriceUpdated }
func (e *PriceUpdated) PairID() *string        { return &e.Pair }

// LiquidityAdded records a provider deposit into the pool.
type LiquidityAdded struct {
	EventID      uuid.UUID `json:"event_id"`
	Provider     uuid.UUID `json:"provider"`
	Amount       int64     `json:"amount"`
	AmountString string    `json:"amount_string"`
	SharesMinted int64     `json:"shares_minted"`
	Timestamp    time.Time `json:"timestamp"`
}

func (e *LiquidityAdded) IdempotencyKey() string { return e.EventID.String() }
func (e *LiquidityAdded) EventType() EventType   { return EventTypeLiquidityAdded }
func (e *LiquidityAdded) PairID() *string        { return nil }

// LiquidityRemoved records a provider share redemption.
type LiquidityRemoved struct {
	EventID      uuid.UUID `json:"event_id"`
	Provider     uuid.UUID `json:"provider"`
	Shares       int64     `json:"shares"`
	Payout       int64     `json:"payout"`
	PayoutString string    `json:"payout_string"`
	Timestamp    time.Time `json:"timestamp"`
}

func (e *LiquidityRemoved) IdempotencyKey() string { return e.EventID.String() }
func (e *LiquidityRemoved) EventType() EventType   { return EventTypeLiquidityRemoved }
func (e *LiquidityRemoved) PairID() *string        { return nil }

// Deposited records a settlement-asset credit from the wallet layer.
type Deposited struct {
	EventID   uuid.UUID `json:"event_id"`
	Trader    uuid.UUID `json:"trader"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *Deposited) IdempotencyKey() string { return e.EventID.String() }
func (e *Deposited) EventType() EventType   { return EventTypeDeposited }
func (e *Deposited) PairID() *string        { return nil }

// Withdrawn records a settlement-asset debit back to the wallet layer.
type Withdrawn struct {
	EventID   uuid.UUID `json:"event_id"`
	Trader    uuid.UUID `json:"trader"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *Withdrawn) IdempotencyKey() string { return e.EventID.String() }
func (e *Withdrawn) EventType() EventType   { return EventTypeWithdrawn }
func (e *Withdrawn) PairID() *string        { return nil }
