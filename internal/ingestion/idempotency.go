package ingestion

import (
	"container/list"
	"fmt"
)

// Deduper implements two-tier deduplication for redelivered feed messages.
// JetStream consumers are at-least-once; a redelivered message must not move
// the oracle ledger twice.
type Deduper struct {
	// Tier 1: in-memory LRU
	lru *dedupLRU

	// Tier 2: event log lookup (injected, nil in tests)
	dbChecker DBDedupChecker
}

// DBDedupChecker is the cold-path message store. Lookups cover restarts,
// when the LRU starts empty but JetStream may redeliver unacked messages.
type DBDedupChecker interface {
	SeenMessage(path string, messageID string) (bool, error)
	RecordMessage(path string, messageID string) error
}

func NewDeduper(capacity int, dbChecker DBDedupChecker) *Deduper {
	return &Deduper{
		lru:       newDedupLRU(capacity),
		dbChecker: dbChecker,
	}
}

// IsDuplicate checks whether a message has already been applied.
func (d *Deduper) IsDuplicate(path, messageID string) bool {
	if messageID == "" {
		// Producers that omit ids get no dedup protection.
		return false
	}
	compositeKey := fmt.Sprintf("%s:%s", path, messageID)

	if d.lru.Contains(compositeKey) {
		return true
	}

	if d.dbChecker != nil {
		seen, err := d.dbChecker.SeenMessage(path, messageID)
		if err != nil {
			// Conservative: a DB issue must not block the feed, so assume
			// not duplicate. Price updates are idempotent at the ledger.
			return false
		}
		if seen {
			d.lru.Add(compositeKey)
			return true
		}
	}

	return false
}

// MarkApplied records a message after the venue accepted it. The cold-tier
// write is best-effort; the LRU covers the common case and price updates
// are idempotent at the ledger anyway.
func (d *Deduper) MarkApplied(path, messageID string) {
	if messageID == "" {
		return
	}
	d.lru.Add(fmt.Sprintf("%s:%s", path, messageID))
	if d.dbChecker != nil {
		_ = d.dbChecker.RecordMessage(path, messageID)
	}
}

// dedupLRU is an LRU cache of composite message keys. Not thread-safe; only
// the single feed runner goroutine touches it.
type dedupLRU struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List
}

type lruEntry struct {
	key string
}

func newDedupLRU(capacity int) *dedupLRU {
	return &dedupLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

func (lru *dedupLRU) Contains(key string) bool {
	elem, exists := lru.cache[key]
	if exists {
		lru.lruList.MoveToFront(elem)
		return true
	}
	return false
}

func (lru *dedupLRU) Add(key string) {
	if elem, exists := lru.cache[key]; exists {
		lru.lruList.MoveToFront(elem)
		return
	}

	entry := &lruEntry{key: key}
	elem := lru.lruList.PushFront(entry)
	lru.cache[key] = elem

	if lru.lruList.Len() > lru.capacity {
		lru.evictOldest()
	}
}

func (lru *dedupLRU) evictOldest() {
	elem := lru.lruList.Back()
	if elem != nil {
		lru.lruList.Remove(elem)
		entry := elem.Value.(*lruEntry)
		delete(lru.cache, entry.key)
	}
}

func (lru *dedupLRU) Size() int {
	return lru.lruList.Len()
}
