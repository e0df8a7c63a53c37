package event

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypePairCreated
	EventTypePriceUpdated
	EventTypeLiquidityAdded
	EventTypeLiquidityRemoved
	EventTypeDeposited
	EventTypeWithdrawn
	EventTypeOrderSubmitted
	EventTypeOrderExecuted
	EventTypeOrderCancelled
	EventTypeOrderExpired
	EventTypePositionOpened
	EventTypeOpenInterestReconciled
	EventTypeCloseRequested
	EventTypePositionClosed
	EventTypePositionLiquidated
	EventTypeStopLossSet
	EventTypeStopLossCheckRequested
)

// Envelope wraps every emitted event in the durable log
type Envelope struct {
	// Global monotonic sequence assigned by the venue core
	Sequence int64

	// Stable idempotency key (event id)
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Pair context (nullable for global events such as deposits)
	Pair *string

	// Transaction timestamp (snapshot taken at intent entry)
	Timestamp time.Time

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all emitted payloads implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// PairID returns the pair context (nil for global events)
	PairID() *string
}

func (et EventType) String() string {
	switch et {
	case EventTypePairCreated:
		return "PairCreated"
	case EventTypePriceUpdated:
		return "PriceUpdated"
	case EventTypeLiquidityAdded:
		return "LiquidityAdded"
	case EventTypeLiquidityRemoved:
		return "LiquidityRemoved"
	case EventTypeDeposited:
		return "Deposited"
	case EventTypeWithdrawn:
		return "Withdrawn"
	case EventTypeOrderSubmitted:
		return "OrderSubmitted"
	case EventTypeOrderExecuted:
		return "OrderExecuted"
	case EventTypeOrderCancelled:
		return "OrderCancelled"
	case EventTypeOrderExpired:
		return "OrderExpired"
	case EventTypePositionOpened:
		return "PositionOpened"
	case EventTypeOpenInterestReconciled:
		return "OpenInterestReconciled"
	case EventTypeCloseRequested:
		return "CloseRequested"
	case EventTypePositionClosed:
		return "PositionClosed"
	case EventTypePositionLiquidated:
		return "PositionLiquidated"
	case EventTypeStopLossSet:
		return "StopLossSet"
	case EventTypeStopLossCheckRequested:
		return "StopLossCheckRequested"
	default:
		return "Unknown"
	}
}

// FormatPrice renders a 1e8 fixed-point price as a decimal string for
// outbound payloads and logs.
func FormatPrice(v int64) string {
	return decimal.New(v, -8).String()
}

// FormatQuote renders a 1e6 fixed-point USD amount as a decimal string.
func FormatQuote(v int64) string {
	return decimal.New(v, -6).String()
}
