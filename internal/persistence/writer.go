package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"PerpVenue/internal/core"
)

// EventLogWriter writes accepted venue events to Postgres using multi-row
// INSERT. ON CONFLICT DO NOTHING keeps replays idempotent: the sequence is
// the primary key, so a rewritten batch is a no-op.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow is a row in event_log.events.
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	Pair           *string
	Payload        []byte
	StateHash      []byte
	PrevHash       []byte
	Timestamp      int64 // microseconds
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// RowFromOutput converts a venue output into its storage row.
func RowFromOutput(out core.Output) EventRow {
	env := out.Envelope
	stateHash := make([]byte, 32)
	prevHash := make([]byte, 32)
	copy(stateHash, env.StateHash[:])
	copy(prevHash, env.PrevHash[:])

	return EventRow{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Pair:           env.Pair,
		Payload:        env.Payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
		Timestamp:      env.Timestamp.UnixMicro(),
	}
}

// WriteEventBatch writes a batch of events inside the caller's transaction.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, tx *sql.Tx, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.events
		(sequence, event_type, idempotency_key, pair, payload, state_hash, prev_hash, timestamp_us)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*8)

	for i, e := range events {
		base := i * 8
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args,
			e.Sequence, e.EventType, e.IdempotencyKey, e.Pair,
			e.Payload, e.StateHash, e.PrevHash, e.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// LastStateHash returns the state hash of the highest persisted event, or
// (nil, nil) for an empty log. Startup seeds the hash chain with it so the
// chain stays unbroken across restarts.
func (w *EventLogWriter) LastStateHash(ctx context.Context) ([]byte, error) {
	var hash []byte
	err := w.db.QueryRowContext(ctx, `
		SELECT state_hash FROM event_log.events
		ORDER BY sequence DESC LIMIT 1
	`).Scan(&hash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return hash, nil
}

// MaxSequence returns the highest persisted sequence, or -1 for an empty
// log. Startup uses it to resume the venue's sequence counter.
func (w *EventLogWriter) MaxSequence(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	err := w.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM event_log.events`).Scan(&max)
	if err != nil {
		return -1, err
	}
	if !max.Valid {
		return -1, nil
	}
	return max.Int64, nil
}
