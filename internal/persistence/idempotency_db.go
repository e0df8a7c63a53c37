package persistence

import (
	"context"
	"database/sql"
	"time"
)

// FeedMessageStore is the cold tier of feed-message deduplication: a small
// table keyed by (path, message_id). The hot tier is the feed runner's LRU;
// this table covers restarts, when the LRU starts empty but JetStream may
// redeliver unacked messages.
type FeedMessageStore struct {
	db *sql.DB
}

func NewFeedMessageStore(db *sql.DB) *FeedMessageStore {
	return &FeedMessageStore{db: db}
}

// SeenMessage checks whether a feed message has already been applied.
func (s *FeedMessageStore) SeenMessage(path string, messageID string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1
		FROM event_log.feed_messages
		WHERE path = $1 AND message_id = $2
		LIMIT 1
	`, path, messageID).Scan(&exists)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RecordMessage marks a feed message as applied. Idempotent.
func (s *FeedMessageStore) RecordMessage(path string, messageID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_log.feed_messages (path, message_id)
		VALUES ($1, $2)
		ON CONFLICT (path, message_id) DO NOTHING
	`, path, messageID)
	return err
}
