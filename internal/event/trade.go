package event

import (
	"time"

	"github.com/google/uuid"
)

// OrderSubmitted records an accepted order with its collateral escrowed.
// The direction is confidential at submission time and never appears here.
type OrderSubmitted struct {
	EventID    uuid.UUID  `json:"event_id"`
	OrderID    int64      `json:"order_id"`
	Trader     uuid.UUID  `json:"trader"`
	Pair       string     `json:"pair"`
	OrderType  string     `json:"order_type"`  // "market" or "limit"
	LimitPrice int64      `json:"limit_price"` // 0 for market orders
	Collateral int64      `json:"collateral"`
	Leverage   int64      `json:"leverage"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

func (e *OrderSubmitted) IdempotencyKey() string { return e.EventID.String() }
func (e *OrderSubmitted) EventType() EventType   { return EventTypeOrderSubmitted }
func (e *OrderSubmitted) PairID() *string        { return &e.Pair }

// OrderExecuted records the transition Pending -> Executed and the position
// the escrowed collateral migrated to.
type OrderExecuted struct {
	EventID        uuid.UUID `json:"event_id"`
	OrderID        int64     `json:"order_id"`
	PositionID     int64     `json:"position_id"`
	Pair           string    `json:"pair"`
	ExecutionPrice int64     `json:"execution_price"`
	PriceString    string    `json:"price_string"`
	Timestamp      time.Time `json:"timestamp"`
}

func (e *OrderExecuted) IdempotencyKey() string { return e.EventID.String() }
func (e *OrderExecuted) EventType() EventType   { return EventTypeOrderExecuted }
func (e *OrderExecuted) PairID() *string        { return &e.Pair }

// OrderCancelled records Pending -> Cancelled with the escrow refunded.
type OrderCancelled struct {
	EventID   uuid.UUID `json:"event_id"`
	OrderID   int64     `json:"order_id"`
	Pair      string    `json:"pair"`
	Refunded  int64     `json:"refunded"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *OrderCancelled) IdempotencyKey() string { return e.EventID.String() }
func (e *OrderCancelled) EventType() EventType   { return EventTypeOrderCancelled }
func (e *OrderCancelled) PairID() *string        { return &e.Pair }

// OrderExpired records Pending -> Expired with the escrow refunded.
type OrderExpired struct {
	EventID   uuid.UUID `json:"event_id"`
	OrderID   int64     `json:"order_id"`
	Pair      string    `json:"pair"`
	Refunded  int64     `json:"refunded"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *OrderExpired) IdempotencyKey() string { return e.EventID.String() }
func (e *OrderExpired) EventType() EventType   { return EventTypeOrderExpired }
func (e *OrderExpired) PairID() *string        { return &e.Pair }

// PositionOpened records phase 1 of the two-phase open: capital reserved,
// direction still sealed. LiquidationPrice is the provisional long-assumed
// value until the owner reconciles.
type PositionOpened struct {
	EventID          uuid.UUID `json:"event_id"`
	PositionID       int64     `json:"position_id"`
	Trader           uuid.UUID `json:"trader"`
	Pair             string    `json:"pair"`
	Collateral       int64     `json:"collateral"`
	Size             int64     `json:"size"`
	Leverage         int64     `json:"leverage"`
	EntryPrice       int64     `json:"entry_price"`
	EntryPriceString string    `json:"entry_price_string"`
	OpeningFee       int64     `json:"opening_fee"`
	LiquidationPrice int64     `json:"liquidation_price"`
	Timestamp        time.Time `json:"timestamp"`
}

func (e *PositionOpened) IdempotencyKey() string { return e.EventID.String() }
func (e *PositionOpened) EventType() EventType   { return EventTypePositionOpened }
func (e *PositionOpened) PairID() *string        { return &e.Pair }

// OpenInterestReconciled records phase 2: the owner revealed the direction
// and the pair's aggregate counters were updated.
type OpenInterestReconciled struct {
	EventID    uuid.UUID `json:"event_id"`
	PositionID int64     `json:"position_id"`
	Pair       string    `json:"pair"`
	Direction  string    `json:"direction"`
	Size       int64     `json:"size"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e *OpenInterestReconciled) IdempotencyKey() string { return e.EventID.String() }
func (e *OpenInterestReconciled) EventType() EventType   { return EventTypeOpenInterestReconciled }
func (e *OpenInterestReconciled) PairID() *string        { return &e.Pair }

// CloseRequested records the intent half of the close handshake, with the
// price snapshot the settlement will use.
type CloseRequested struct {
	EventID       uuid.UUID `json:"event_id"`
	PositionID    int64     `json:"position_id"`
	Pair          string    `json:"pair"`
	PriceSnapshot int64     `json:"price_snapshot"`
	Timestamp     time.Time `json:"timestamp"`
}

func (e *CloseRequested) IdempotencyKey() string { return e.EventID.String() }
func (e *CloseRequested) EventType() EventType   { return EventTypeCloseRequested }
func (e *CloseRequested) PairID() *string        { return &e.Pair }

// CloseReason distinguishes ordinary closes from stop-loss settlements.
type CloseReason string

const (
	CloseReasonOwner    CloseReason = "close"
	CloseReasonStopLoss CloseReason = "stop_loss"
)

// PositionClosed records a settled close, after the direction reveal was
// verified against the confidential handle.
type PositionClosed struct {
	EventID        uuid.UUID   `json:"event_id"`
	PositionID     int64       `json:"position_id"`
	Pair           string      `json:"pair"`
	Direction      string      `json:"direction"`
	ExitPrice      int64       `json:"exit_price"`
	PnL            int64       `json:"pnl"`
	PnLString      string      `json:"pnl_string"`
	ClosingFee     int64       `json:"closing_fee"`
	AmountReturned int64       `json:"amount_returned"`
	Reason         CloseReason `json:"reason"`
	Timestamp      time.Time   `json:"timestamp"`
}

func (e *PositionClosed) IdempotencyKey() string { return e.EventID.String() }
func (e *PositionClosed) EventType() EventType   { return EventTypePositionClosed }
func (e *PositionClosed) PairID() *string        { return &e.Pair }

// PositionLiquidated records a third-party liquidation.
type PositionLiquidated struct {
	EventID    uuid.UUID `json:"event_id"`
	PositionID int64     `json:"position_id"`
	Pair       string    `json:"pair"`
	Liquidator uuid.UUID `json:"liquidator"`
	Price      int64     `json:"price"`
	Reward     int64     `json:"reward"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e *PositionLiquidated) IdempotencyKey() string { return e.EventID.String() }
func (e *PositionLiquidated) EventType() EventType   { return EventTypePositionLiquidated }
func (e *PositionLiquidated) PairID() *string        { return &e.Pair }

// StopLossSet records a confidential stop-loss attachment. The trigger price
// stays sealed.
type StopLossSet struct {
	EventID    uuid.UUID `json:"event_id"`
	PositionID int64     `json:"position_id"`
	Pair       string    `json:"pair"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e *StopLossSet) IdempotencyKey() string { return e.EventID.String() }
func (e *StopLossSet) EventType() EventType   { return EventTypeStopLossSet }
func (e *StopLossSet) PairID() *string        { return &e.Pair }

// StopLossCheckRequested records the intent half of the stop-loss handshake.
type StopLossCheckRequested struct {
	EventID       uuid.UUID `json:"event_id"`
	PositionID    int64     `json:"position_id"`
	Pair          string    `json:"pair"`
	PriceSnapshot int64     `json:"price_snapshot"`
	Timestamp     time.Time `json:"timestamp"`
}

func (e *StopLossCheckRequested) IdempotencyKey() string { return e.EventID.String() }
func (e *StopLossCheckRequested) EventType() EventType   { return EventTypeStopLossCheckRequested }
func (e *StopLossCheckRequested) PairID() *string        { return &e.Pair }
