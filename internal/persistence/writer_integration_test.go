package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PerpVenue/internal/confidential"
	"PerpVenue/internal/core"
	"PerpVenue/internal/persistence"
	"PerpVenue/internal/risk"
	"PerpVenue/internal/testutil"
)

// venueOutputs runs a venue long enough to emit n real events.
func venueOutputs(t *testing.T, n int) []core.Output {
	t.Helper()
	persistChan := make(chan core.Output, 64)
	v, err := core.NewVenue(core.Config{
		Params:      risk.Defaults(),
		Vault:       confidential.NewMemoryBackend(),
		PersistChan: persistChan,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)

	trader := uuid.New()
	now := time.Unix(1_700_000_000, 0).UTC()
	for i := 0; i < n; i++ {
		require.NoError(t, v.Deposit(trader, 1_000_000, now))
	}

	outputs := make([]core.Output, 0, n)
	for i := 0; i < n; i++ {
		outputs = append(outputs, <-persistChan)
	}
	return outputs
}

func TestEventLogWriterRoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	writer := persistence.NewEventLogWriter(db)

	// Empty log: sentinel sequence and no chain tip.
	maxSeq, err := writer.MaxSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), maxSeq)

	tip, err := writer.LastStateHash(ctx)
	require.NoError(t, err)
	assert.Nil(t, tip)

	outputs := venueOutputs(t, 3)
	rows := make([]persistence.EventRow, 0, len(outputs))
	for _, o := range outputs {
		rows = append(rows, persistence.RowFromOutput(o))
	}

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, writer.WriteEventBatch(ctx, tx, rows))
	require.NoError(t, tx.Commit())

	maxSeq, err = writer.MaxSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, rows[len(rows)-1].Sequence, maxSeq)

	tip, err = writer.LastStateHash(ctx)
	require.NoError(t, err)
	assert.Equal(t, rows[len(rows)-1].StateHash, tip)

	// Rewriting the same batch is a no-op, not a duplicate.
	tx, err = db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, writer.WriteEventBatch(ctx, tx, rows))
	require.NoError(t, tx.Commit())

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM event_log.events`).Scan(&count))
	assert.Equal(t, len(rows), count)
}

func TestFeedMessageStore(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := persistence.NewFeedMessageStore(db)

	seen, err := store.SeenMessage("push", "m1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.RecordMessage("push", "m1"))
	require.NoError(t, store.RecordMessage("push", "m1")) // idempotent

	seen, err = store.SeenMessage("push", "m1")
	require.NoError(t, err)
	assert.True(t, seen)

	// The path partitions the key space.
	seen, err = store.SeenMessage("attested", "m1")
	require.NoError(t, err)
	assert.False(t, seen)
}
