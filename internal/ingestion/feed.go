package ingestion

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"PerpVenue/internal/observability"
	"PerpVenue/internal/oracle"
)

// PriceSink is the slice of the venue the feed runner drives. FeedID
// resolves the feed registered for a pair so attestations are verified
// against it, not against whatever feed the message claims.
type PriceSink interface {
	PushPrice(pair string, price int64, now time.Time) error
	ApplyAttestedPrice(pair string, attested oracle.AttestedPrice, now time.Time) error
	FeedID(pair string) (string, error)
}

// FeedRunner drains the subscriber channel, dedups redeliveries and applies
// updates to the venue. One goroutine; the venue's own mutex serializes it
// against the operation surface.
type FeedRunner struct {
	sink    PriceSink
	msgChan <-chan RawMessage
	deduper *Deduper
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewFeedRunner(sink PriceSink, msgChan <-chan RawMessage, deduper *Deduper, log zerolog.Logger, metrics *observability.Metrics) *FeedRunner {
	return &FeedRunner{
		sink:    sink,
		msgChan: msgChan,
		deduper: deduper,
		log:     log,
		metrics: metrics,
	}
}

func (fr *FeedRunner) countMessage(path, outcome string) {
	if fr.metrics != nil {
		fr.metrics.FeedMessages.WithLabelValues(path, outcome).Inc()
	}
}

func (fr *FeedRunner) countDuplicate(path string) {
	if fr.metrics != nil {
		fr.metrics.FeedDuplicates.WithLabelValues(path).Inc()
	}
}

// Run processes messages until the context is cancelled or the channel
// closes.
func (fr *FeedRunner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-fr.msgChan:
			if !ok {
				return nil
			}
			fr.handle(raw)
		}
	}
}

func (fr *FeedRunner) handle(raw RawMessage) {
	path := PathPush
	if strings.HasPrefix(raw.Subject, "venue.prices.attested.") {
		path = PathAttested
	}

	// Every outcome but a successful apply ACKs the message: oracle
	// rejections are terminal for that exact payload, and redelivering a
	// poison message five more times will not change the verdict.
	switch path {
	case PathPush:
		update, err := ParsePushPrice(raw.Data)
		if err != nil {
			fr.log.Warn().Err(err).Str("subject", raw.Subject).Msg("dropping malformed push price")
			fr.countMessage(path, "malformed")
			raw.AckFunc()
			return
		}
		if fr.deduper.IsDuplicate(path, update.MessageID) {
			fr.countDuplicate(path)
			raw.AckFunc()
			return
		}
		if err := fr.sink.PushPrice(update.Pair, update.Price, raw.Timestamp); err != nil {
			fr.log.Warn().Err(err).Str("pair", update.Pair).Msg("push price rejected")
			fr.countMessage(path, "rejected")
			raw.AckFunc()
			return
		}
		fr.deduper.MarkApplied(path, update.MessageID)
		fr.countMessage(path, "applied")
		raw.AckFunc()

	case PathAttested:
		update, err := ParseAttestedPrice(raw.Data)
		if err != nil {
			fr.log.Warn().Err(err).Str("subject", raw.Subject).Msg("dropping malformed attested price")
			fr.countMessage(path, "malformed")
			raw.AckFunc()
			return
		}
		// The proof is checked here, at the ingestion boundary; the oracle
		// ledger receives only verified bundles.
		feedID, err := fr.sink.FeedID(update.Pair)
		if err != nil {
			fr.log.Warn().Err(err).Str("pair", update.Pair).Msg("attested price for unlisted pair")
			fr.countMessage(path, "rejected")
			raw.AckFunc()
			return
		}
		if err := VerifyAttestation(feedID, update); err != nil {
			fr.log.Warn().Err(err).Str("pair", update.Pair).Msg("dropping attested price with bad proof")
			fr.countMessage(path, "bad_proof")
			raw.AckFunc()
			return
		}
		if fr.deduper.IsDuplicate(path, update.MessageID) {
			fr.countDuplicate(path)
			raw.AckFunc()
			return
		}
		if err := fr.sink.ApplyAttestedPrice(update.Pair, update.Attested, raw.Timestamp); err != nil {
			fr.log.Warn().Err(err).Str("pair", update.Pair).Msg("attested price rejected")
			fr.countMessage(path, "rejected")
			raw.AckFunc()
			return
		}
		fr.deduper.MarkApplied(path, update.MessageID)
		fr.countMessage(path, "applied")
		raw.AckFunc()
	}
}
