package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	fpmath "PerpVenue/internal/math"
	"PerpVenue/internal/oracle"
)

// Wire formats for the two feed paths. Field names use snake_case to match
// upstream producers. Push prices arrive as decimal strings ("64250.75");
// attested bundles arrive in the feed's native mantissa/exponent form and
// are converted by the oracle ledger.

// PushPriceMessage is the push-path wire format.
type PushPriceMessage struct {
	MessageID   string `json:"message_id"`
	Pair        string `json:"pair"`
	Price       string `json:"price"`
	TimestampUs int64  `json:"timestamp_us"`
}

// AttestedPriceMessage is the pull-path wire format. The validity proof is
// checked by the feed verifier before the bundle reaches the venue.
type AttestedPriceMessage struct {
	MessageID     string `json:"message_id"`
	Pair          string `json:"pair"`
	FeedID        string `json:"feed_id"`
	Mantissa      int64  `json:"mantissa"`
	Exponent      int32  `json:"exponent"`
	PublishTimeUs int64  `json:"publish_time_us"`
	Proof         string `json:"proof"`
}

// PushUpdate is a parsed push-path update ready for the venue.
type PushUpdate struct {
	MessageID string
	Pair      string
	Price     int64 // 1e8 fixed-point
	Timestamp time.Time
}

// AttestedUpdate is a parsed pull-path update ready for the venue.
type AttestedUpdate struct {
	MessageID string
	Pair      string
	FeedID    string
	Proof     string
	Attested  oracle.AttestedPrice
}

var priceScale = decimal.New(fpmath.PriceConfig.Scale, 0)

// ParsePushPrice parses and scales a push-path message. Prices that do not
// fit the canonical 1e8 representation are rejected here, before they can
// reach the oracle ledger.
func ParsePushPrice(data []byte) (*PushUpdate, error) {
	var j PushPriceMessage
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse push price: %w", err)
	}
	if j.Pair == "" {
		return nil, fmt.Errorf("parse push price: missing pair")
	}

	d, err := decimal.NewFromString(j.Price)
	if err != nil {
		return nil, fmt.Errorf("parse push price %q: %w", j.Price, err)
	}

	scaled := d.Mul(priceScale)
	if !scaled.IsInteger() {
		// More precision than the canonical representation carries.
		scaled = scaled.Truncate(0)
	}
	if !scaled.BigInt().IsInt64() {
		return nil, fmt.Errorf("parse push price %q: out of range", j.Price)
	}
	price := scaled.BigInt().Int64()
	if price <= 0 {
		return nil, fmt.Errorf("parse push price %q: non-positive", j.Price)
	}

	return &PushUpdate{
		MessageID: j.MessageID,
		Pair:      j.Pair,
		Price:     price,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

// ParseAttestedPrice parses a pull-path message. Mantissa/exponent stay in
// feed form; the oracle ledger performs the canonical conversion so its
// overflow rules apply in exactly one place.
func ParseAttestedPrice(data []byte) (*AttestedUpdate, error) {
	var j AttestedPriceMessage
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse attested price: %w", err)
	}
	if j.Pair == "" {
		return nil, fmt.Errorf("parse attested price: missing pair")
	}
	if j.Proof == "" {
		return nil, fmt.Errorf("parse attested price: missing proof")
	}

	return &AttestedUpdate{
		MessageID: j.MessageID,
		Pair:      j.Pair,
		FeedID:    j.FeedID,
		Proof:     j.Proof,
		Attested: oracle.AttestedPrice{
			Mantissa:  j.Mantissa,
			Exponent:  j.Exponent,
			Timestamp: time.UnixMicro(j.PublishTimeUs),
		},
	}, nil
}
