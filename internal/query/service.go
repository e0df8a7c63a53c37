// Package query provides read-only access to the event log and projection
// tables. Responses carry as_of_sequence so callers can reason about
// freshness relative to the venue's event stream.
package query

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// RecentPrices returns the newest accepted oracle prices for a pair, newest
// first.
func (s *Service) RecentPrices(ctx context.Context, pair string, limit int) ([]PricePoint, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT price, source, sequence, timestamp_us
		FROM projections.price_history
		WHERE pair = $1
		ORDER BY sequence DESC
		LIMIT $2
	`, pair, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []PricePoint
	for rows.Next() {
		p := PricePoint{Pair: pair, AsOfSequence: asOfSeq}
		if err := rows.Scan(&p.Price, &p.Source, &p.Sequence, &p.TimestampUs); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Positions returns a trader's positions, open first, newest first.
func (s *Service) Positions(ctx context.Context, trader uuid.UUID, includeClosed bool) ([]PositionRecord, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	q := `
		SELECT position_id, pair, collateral, size, leverage, entry_price,
		       opening_fee, liquidation_price, direction, reconciled, status,
		       exit_price, pnl, closing_fee, amount_returned, opened_at_us, closed_at_us
		FROM projections.positions
		WHERE trader = $1
	`
	if !includeClosed {
		q += ` AND status = 'open'`
	}
	q += ` ORDER BY (status = 'open') DESC, opened_at_us DESC`

	rows, err := s.db.QueryContext(ctx, q, trader)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []PositionRecord
	for rows.Next() {
		r := PositionRecord{Trader: trader, AsOfSequence: asOfSeq}
		if err := rows.Scan(
			&r.PositionID, &r.Pair, &r.Collateral, &r.Size, &r.Leverage, &r.EntryPrice,
			&r.OpeningFee, &r.LiquidationPrice, &r.Direction, &r.Reconciled, &r.Status,
			&r.ExitPrice, &r.PnL, &r.ClosingFee, &r.AmountReturned, &r.OpenedAtUs, &r.ClosedAtUs,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Events returns events after a sequence cursor, oldest first.
func (s *Service) Events(ctx context.Context, afterSequence int64, limit int) ([]EventRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, pair, payload,
		       state_hash, prev_hash, timestamp_us
		FROM event_log.events
		WHERE sequence > $1
		ORDER BY sequence
		LIMIT $2
	`, afterSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []EventRecord
	for rows.Next() {
		var r EventRecord
		var payload []byte
		var stateHash, prevHash []byte
		if err := rows.Scan(
			&r.Sequence, &r.EventType, &r.IdempotencyKey, &r.Pair, &payload,
			&stateHash, &prevHash, &r.TimestampUs,
		); err != nil {
			return nil, err
		}
		r.Payload = json.RawMessage(payload)
		r.StateHash = hex.EncodeToString(stateHash)
		r.PrevHash = hex.EncodeToString(prevHash)
		records = append(records, r)
	}
	return records, rows.Err()
}

// VerifyIntegrity checks the event log's hash chain and sequence continuity.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	// Each event's prev_hash must equal its predecessor's state_hash.
	rows, err := s.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Sequence gaps mean lost events.
	gapRows, err := s.db.QueryContext(ctx, `
		SELECT e1.sequence + 1
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence + 1
		WHERE e2.sequence IS NULL
		  AND e1.sequence < (SELECT MAX(sequence) FROM event_log.events)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer gapRows.Close()

	for gapRows.Next() {
		var seq int64
		if err := gapRows.Scan(&seq); err != nil {
			return nil, err
		}
		report.SequenceGaps = append(report.SequenceGaps, seq)
	}
	if err := gapRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.SequenceGaps) == 0
	return report, nil
}

func (s *Service) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
