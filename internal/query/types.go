package query

import (
	"encoding/json"

	"github.com/google/uuid"
)

// PricePoint is one accepted oracle price.
type PricePoint struct {
	Pair         string `json:"pair"`
	Price        int64  `json:"price"`
	Source       string `json:"source"`
	Sequence     int64  `json:"sequence"`
	TimestampUs  int64  `json:"timestamp_us"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// PositionRecord is a position's lifecycle row. Settlement fields are null
// while the position is open; direction is null until the owner reveals it.
type PositionRecord struct {
	PositionID       int64     `json:"position_id"`
	Trader           uuid.UUID `json:"trader"`
	Pair             string    `json:"pair"`
	Collateral       int64     `json:"collateral"`
	Size             int64     `json:"size"`
	Leverage         int64     `json:"leverage"`
	EntryPrice       int64     `json:"entry_price"`
	OpeningFee       int64     `json:"opening_fee"`
	LiquidationPrice int64     `json:"liquidation_price"`
	Direction        *string   `json:"direction,omitempty"`
	Reconciled       bool      `json:"reconciled"`
	Status           string    `json:"status"`
	ExitPrice        *int64    `json:"exit_price,omitempty"`
	PnL              *int64    `json:"pnl,omitempty"`
	ClosingFee       *int64    `json:"closing_fee,omitempty"`
	AmountReturned   *int64    `json:"amount_returned,omitempty"`
	OpenedAtUs       int64     `json:"opened_at_us"`
	ClosedAtUs       *int64    `json:"closed_at_us,omitempty"`
	AsOfSequence     int64     `json:"as_of_sequence"`
}

// EventRecord is a raw event log row with hashes rendered as hex.
type EventRecord struct {
	Sequence       int64           `json:"sequence"`
	EventType      string          `json:"event_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	Pair           *string         `json:"pair,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	StateHash      string          `json:"state_hash"`
	PrevHash       string          `json:"prev_hash"`
	TimestampUs    int64           `json:"timestamp_us"`
}

// IntegrityReport is the result of an event log integrity check.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	SequenceGaps    []int64 `json:"sequence_gaps,omitempty"`
}
