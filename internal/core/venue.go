// Package core implements the venue transaction engine. Every operation is
// a serialized all-or-nothing transaction: a single mutex orders them, all
// validation runs before the first mutation, and one oracle snapshot taken
// at entry is used for every computation inside the transaction. Accepted
// transactions emit durable events carrying a SHA-256 state-hash chain.
package core

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"PerpVenue/internal/confidential"
	"PerpVenue/internal/event"
	"PerpVenue/internal/ledger"
	"PerpVenue/internal/observability"
	"PerpVenue/internal/oracle"
	"PerpVenue/internal/order"
	"PerpVenue/internal/pool"
	"PerpVenue/internal/position"
	"PerpVenue/internal/risk"
)

// Output is what the venue hands to the persistence and publish workers for
// every accepted transaction.
type Output struct {
	Envelope *event.Envelope
	Event    event.Event
}

// Venue is the transaction engine. The mutex is the venue-wide transaction
// boundary; everything behind it is single-threaded.
type Venue struct {
	mu sync.Mutex

	log     zerolog.Logger
	metrics *observability.Metrics

	params    risk.Params
	pairs     *oracle.PairBook
	pool      *pool.Pool
	balances  *ledger.BalanceBook
	positions *position.Book
	orders    *order.Book
	vault     confidential.Backend

	positionSeq *position.Sequence
	orderSeq    *position.Sequence

	sequence int64
	hasher   *StateHasher

	// persistChan uses a blocking send: the engine stalls until the
	// persistence worker drains, so no event is lost. publishChan and
	// projectionChan use non-blocking sends with silent drop; subscribers
	// and read models rebuild from the event log if they fall behind.
	persistChan    chan<- Output
	publishChan    chan<- Output
	projectionChan chan<- Output
}

// Config wires the venue's collaborators.
type Config struct {
	Params        risk.Params
	Vault         confidential.Backend
	StartSequence int64

	// ResumeHash seeds the state-hash chain on warm restart; 32 bytes from
	// the last persisted event, or nil for a cold start from genesis.
	ResumeHash []byte

	// Highest persisted ids, so restarts never reissue an id.
	NextPositionID int64
	NextOrderID    int64

	PersistChan    chan<- Output
	PublishChan    chan<- Output
	ProjectionChan chan<- Output

	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

func NewVenue(cfg Config) (*Venue, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid risk params: %w", err)
	}
	if cfg.Vault == nil {
		return nil, fmt.Errorf("confidential backend is required")
	}
	if cfg.NextPositionID <= 0 {
		cfg.NextPositionID = 1
	}
	if cfg.NextOrderID <= 0 {
		cfg.NextOrderID = 1
	}

	hasher := NewStateHasher()
	if len(cfg.ResumeHash) == 32 {
		var tip [32]byte
		copy(tip[:], cfg.ResumeHash)
		hasher.SetPrevHash(tip)
	}

	return &Venue{
		log:            cfg.Logger,
		metrics:        cfg.Metrics,
		params:         cfg.Params,
		pairs:          oracle.NewPairBook(),
		pool:           pool.New(),
		balances:       ledger.NewBalanceBook(),
		positions:      position.NewBook(),
		orders:         order.NewBook(),
		vault:          cfg.Vault,
		positionSeq:    position.NewSequence(cfg.NextPositionID),
		orderSeq:       position.NewSequence(cfg.NextOrderID),
		sequence:       cfg.StartSequence,
		hasher:         hasher,
		persistChan:    cfg.PersistChan,
		publishChan:    cfg.PublishChan,
		projectionChan: cfg.ProjectionChan,
	}, nil
}

// emit assigns the next sequence, extends the state-hash chain over the
// JSON payload and dispatches to both workers. Must be called with the
// mutex held and only after every validation passed.
func (v *Venue) emit(evt event.Event, ts time.Time) {
	payload, err := json.Marshal(evt)
	if err != nil {
		panic(fmt.Sprintf("FATAL: unmarshalable event %T: %v", evt, err))
	}

	prevHash := v.hasher.GetPrevHash()
	stateHash := v.hasher.ComputeHash(v.sequence, payload)
	envelope := &event.Envelope{
		Sequence:       v.sequence,
		IdempotencyKey: evt.IdempotencyKey(),
		EventType:      evt.EventType(),
		Pair:           evt.PairID(),
		Timestamp:      ts,
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}
	v.sequence++

	out := Output{Envelope: envelope, Event: evt}

	if v.persistChan != nil {
		v.persistChan <- out
	}
	if v.publishChan != nil {
		select {
		case v.publishChan <- out:
		default:
			// Dropped; subscribers catch up from the event log.
			if v.metrics != nil {
				v.metrics.PublishDrops.Inc()
			}
		}
	}
	if v.projectionChan != nil {
		select {
		case v.projectionChan <- out:
		default:
			// Dropped; read models rebuild from the event log.
		}
	}

	if v.metrics != nil {
		v.metrics.EventsEmitted.WithLabelValues(evt.EventType().String()).Inc()
		v.metrics.CoreSequence.Set(float64(v.sequence))
	}
}

func (v *Venue) observe(op string, start time.Time, err error) {
	if v.metrics == nil {
		return
	}
	if err != nil {
		v.metrics.TxRejected.WithLabelValues(op).Inc()
		return
	}
	v.metrics.TxApplied.WithLabelValues(op).Inc()
	v.metrics.TxDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Sequence returns the next event sequence the venue will assign.
func (v *Venue) Sequence() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sequence
}

// StateHash returns the current chain tip.
func (v *Venue) StateHash() [32]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hasher.GetPrevHash()
}

// --- Market administration ---

// PairConfig is the admin input for listing a pair.
type PairConfig struct {
	Symbol          string
	Base            string
	Quote           string
	MinLeverage     int64
	MaxLeverage     int64
	FeeBps          int64
	MaxDeviationBps int64
	MaxOpenInterest int64
	FeedID          string
}

// CreatePair lists a trading pair. The pair stays inactive until its first
// accepted price.
func (v *Venue) CreatePair(cfg PairConfig, now time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	start := time.Now()

	err := v.pairs.Create(&oracle.Pair{
		Symbol:          cfg.Symbol,
		Base:            cfg.Base,
		Quote:           cfg.Quote,
		MinLeverage:     cfg.MinLeverage,
		MaxLeverage:     cfg.MaxLeverage,
		FeeBps:          cfg.FeeBps,
		MaxDeviationBps: cfg.MaxDeviationBps,
		MaxOpenInterest: cfg.MaxOpenInterest,
		FeedID:          cfg.FeedID,
	})
	defer v.observe("create_pair", start, err)
	if err != nil {
		return err
	}

	v.emit(&event.PairCreated{
		EventID:         uuid.New(),
		Pair:            cfg.Symbol,
		Base:            cfg.Base,
		Quote:           cfg.Quote,
		MinLeverage:     cfg.MinLeverage,
		MaxLeverage:     cfg.MaxLeverage,
		FeeBps:          cfg.FeeBps,
		MaxOpenInterest: cfg.MaxOpenInterest,
		Timestamp:       now,
	}, now)

	v.log.Info().Str("pair", cfg.Symbol).Msg("pair listed")
	return nil
}

// --- Price oracle ---

// PushPrice applies a feed push, guarded by the pair's deviation bound.
func (v *Venue) PushPrice(pair string, price int64, now time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	start := time.Now()

	activated, err := v.pairs.Push(pair, price, now)
	defer v.observe("push_price", start, err)
	if err != nil {
		return err
	}

	v.emit(&event.PriceUpdated{
		EventID:     uuid.New(),
		Pair:        pair,
		Price:       price,
		PriceString: event.FormatPrice(price),
		Source:      event.PriceSourcePush,
		Activated:   activated,
		Timestamp:   now,
	}, now)

	if v.metrics != nil {
		v.metrics.OraclePrice.WithLabelValues(pair).Set(float64(price))
	}
	return nil
}

// ApplyAttestedPrice applies a verified pull-path bundle. The deviation
// bound does not apply; the attested timestamp must be recent.
func (v *Venue) ApplyAttestedPrice(pair string, attested oracle.AttestedPrice, now time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	start := time.Now()

	activated, price, err := v.pairs.ApplyAttested(pair, attested, now)
	defer v.observe("apply_attested_price", start, err)
	if err != nil {
		return err
	}

	v.emit(&event.PriceUpdated{
		EventID:     uuid.New(),
		Pair:        pair,
		Price:       price,
		PriceString: event.FormatPrice(price),
		Source:      event.PriceSourceAttested,
		Activated:   activated,
		Timestamp:   now,
	}, now)

	if v.metrics != nil {
		v.metrics.OraclePrice.WithLabelValues(pair).Set(float64(price))
	}
	return nil
}

// GetPrice returns the pair's current price and freshness data.
func (v *Venue) GetPrice(pair string) (price int64, lastUpdate time.Time, active bool, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pairs.Price(pair)
}

// FeedID returns the external price-feed identifier registered for a pair.
// The ingestion layer verifies attested bundles against it.
func (v *Venue) FeedID(pair string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, err := v.pairs.Get(pair)
	if err != nil {
		return "", err
	}
	return p.FeedID, nil
}

// IsStale reports whether the pair's price is unusable for trading at `now`.
func (v *Venue) IsStale(pair string, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pairs.IsStale(pair, now, v.params.TradeStalenessBound)
}

// --- Trader balances ---

// Deposit credits a trader's available balance after the wallet layer
// confirmed the inbound transfer.
func (v *Venue) Deposit(trader uuid.UUID, amount int64, now time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	start := time.Now()

	err := v.balances.Deposit(trader, amount)
	defer v.observe("deposit", start, err)
	if err != nil {
		return err
	}

	v.emit(&event.Deposited{
		EventID:   uuid.New(),
		Trader:    trader,
		Amount:    amount,
		Timestamp: now,
	}, now)
	return nil
}

// Withdraw debits a trader's available balance for the wallet layer to pay
// out. Escrowed funds cannot be withdrawn.
func (v *Venue) Withdraw(trader uuid.UUID, amount int64, now time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	start := time.Now()

	err := v.balances.Withdraw(trader, amount)
	defer v.observe("withdraw", start, err)
	if err != nil {
		return err
	}

	v.emit(&event.Withdrawn{
		EventID:   uuid.New(),
		Trader:    trader,
		Amount:    amount,
		Timestamp: now,
	}, now)
	return nil
}

// Balance returns a trader's (available, escrowed) balances.
func (v *Venue) Balance(trader uuid.UUID) (available, escrowed int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances.Available(trader), v.balances.Escrowed(trader)
}

// --- Liquidity pool ---

// AddLiquidity moves funds from the provider's trader balance into the pool
// and mints shares at the current utilization-adjusted rate.
func (v *Venue) AddLiquidity(provider uuid.UUID, amount int64, now time.Time) (minted int64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	start := time.Now()
	defer func() { v.observe("add_liquidity", start, err) }()

	if err = v.balances.Withdraw(provider, amount); err != nil {
		return 0, err
	}
	minted, err = v.pool.Add(provider, amount)
	if err != nil {
		// Roll back the debit; the transaction is all-or-nothing.
		v.balances.Payout(provider, amount)
		return 0, err
	}

	v.emit(&event.LiquidityAdded{
		EventID:      uuid.New(),
		Provider:     provider,
		Amount:       amount,
		AmountString: event.FormatQuote(amount),
		SharesMinted: minted,
		Timestamp:    now,
	}, now)

	v.logPool()
	return minted, nil
}

// RemoveLiquidity redeems shares for available pool funds and credits the
// provider's trader balance.
func (v *Venue) RemoveLiquidity(provider uuid.UUID, shares int64, now time.Time) (payout int64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	start := time.Now()
	defer func() { v.observe("remove_liquidity", start, err) }()

	payout, err = v.pool.Remove(provider, shares)
	if err != nil {
		return 0, err
	}
	v.balances.Payout(provider, payout)

	v.emit(&event.LiquidityRemoved{
		EventID:      uuid.New(),
		Provider:     provider,
		Shares:       shares,
		Payout:       payout,
		PayoutString: event.FormatQuote(payout),
		Timestamp:    now,
	}, now)

	v.logPool()
	return payout, nil
}

// PoolBalances returns (total, available, reserved, accumulated fees).
func (v *Venue) PoolBalances() (total, available, reserved, fees int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pool.Total(), v.pool.Available(), v.pool.Reserved(), v.pool.AccumFees()
}

// PoolShares returns a provider's share balance.
func (v *Venue) PoolShares(provider uuid.UUID) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pool.Shares(provider)
}

func (v *Venue) logPool() {
	if v.metrics != nil {
		v.metrics.PoolAvailable.Set(float64(v.pool.Available()))
		v.metrics.PoolReserved.Set(float64(v.pool.Reserved()))
	}
	if err := v.pool.CheckInvariant(); err != nil {
		panic(fmt.Sprintf("FATAL: pool invariant violated: %v", err))
	}
}
