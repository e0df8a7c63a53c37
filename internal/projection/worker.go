// Package projection maintains Postgres read models derived from the event
// stream. Projections are eventually consistent: the venue's projection
// channel drops on overflow, and anything missed is recovered by rebuilding
// from the event log.
package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"PerpVenue/internal/core"
	"PerpVenue/internal/event"
)

// Worker updates projection tables from accepted venue events.
type Worker struct {
	db        *sql.DB
	inputChan <-chan core.Output
	log       zerolog.Logger
}

func NewWorker(db *sql.DB, inputChan <-chan core.Output, log zerolog.Logger) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		log:       log,
	}
}

// Run starts the projection loop. Blocks until ctx is cancelled or the
// channel closes.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-w.inputChan:
			if !ok {
				return nil
			}

			if err := w.apply(ctx, output); err != nil {
				// Continue: read models are rebuilt from the event log.
				w.log.Warn().Err(err).
					Int64("sequence", output.Envelope.Sequence).
					Str("event_type", output.Envelope.EventType.String()).
					Msg("projection update failed")
			}
		}
	}
}

func (w *Worker) apply(ctx context.Context, output core.Output) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	seq := output.Envelope.Sequence

	switch evt := output.Event.(type) {
	case *event.PriceUpdated:
		if err := applyPriceUpdated(ctx, tx, seq, evt); err != nil {
			return fmt.Errorf("price history: %w", err)
		}
	case *event.PositionOpened:
		if err := applyPositionOpened(ctx, tx, seq, evt); err != nil {
			return fmt.Errorf("position opened: %w", err)
		}
	case *event.OpenInterestReconciled:
		if err := applyReconciled(ctx, tx, evt); err != nil {
			return fmt.Errorf("position reconciled: %w", err)
		}
	case *event.PositionClosed:
		if err := applyPositionClosed(ctx, tx, evt); err != nil {
			return fmt.Errorf("position closed: %w", err)
		}
	case *event.PositionLiquidated:
		if err := applyPositionLiquidated(ctx, tx, evt); err != nil {
			return fmt.Errorf("position liquidated: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, seq); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// Rebuild truncates all projection tables and reconstructs them from the
// event log's JSONB payloads.
func Rebuild(ctx context.Context, db *sql.DB) error {
	for _, stmt := range []string{
		`TRUNCATE projections.price_history`,
		`TRUNCATE projections.positions`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	rows, err := db.QueryContext(ctx, `
		SELECT sequence, event_type, payload
		FROM event_log.events
		ORDER BY sequence
	`)
	if err != nil {
		return fmt.Errorf("read event log: %w", err)
	}
	defer rows.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var lastSeq int64 = -1
	for rows.Next() {
		var seq int64
		var eventType string
		var payload []byte
		if err := rows.Scan(&seq, &eventType, &payload); err != nil {
			return err
		}

		if err := replayRow(ctx, tx, seq, eventType, payload); err != nil {
			return fmt.Errorf("replay seq %d: %w", seq, err)
		}
		lastSeq = seq
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if lastSeq >= 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
			VALUES ('main', $1, NOW())
			ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
		`, lastSeq); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func replayRow(ctx context.Context, tx *sql.Tx, seq int64, eventType string, payload []byte) error {
	switch eventType {
	case event.EventTypePriceUpdated.String():
		var evt event.PriceUpdated
		if err := json.Unmarshal(payload, &evt); err != nil {
			return err
		}
		return applyPriceUpdated(ctx, tx, seq, &evt)

	case event.EventTypePositionOpened.String():
		var evt event.PositionOpened
		if err := json.Unmarshal(payload, &evt); err != nil {
			return err
		}
		return applyPositionOpened(ctx, tx, seq, &evt)

	case event.EventTypeOpenInterestReconciled.String():
		var evt event.OpenInterestReconciled
		if err := json.Unmarshal(payload, &evt); err != nil {
			return err
		}
		return applyReconciled(ctx, tx, &evt)

	case event.EventTypePositionClosed.String():
		var evt event.PositionClosed
		if err := json.Unmarshal(payload, &evt); err != nil {
			return err
		}
		return applyPositionClosed(ctx, tx, &evt)

	case event.EventTypePositionLiquidated.String():
		var evt event.PositionLiquidated
		if err := json.Unmarshal(payload, &evt); err != nil {
			return err
		}
		return applyPositionLiquidated(ctx, tx, &evt)
	}
	return nil
}
