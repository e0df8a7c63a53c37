package ingestion

import (
	"errors"
	"testing"
)

type fakeDBChecker struct {
	seen    map[string]bool
	failing bool
}

func (f *fakeDBChecker) SeenMessage(path, messageID string) (bool, error) {
	if f.failing {
		return false, errors.New("db down")
	}
	return f.seen[path+":"+messageID], nil
}

func (f *fakeDBChecker) RecordMessage(path, messageID string) error {
	if f.failing {
		return errors.New("db down")
	}
	f.seen[path+":"+messageID] = true
	return nil
}

func TestDeduperHotTier(t *testing.T) {
	d := NewDeduper(10, nil)

	if d.IsDuplicate(PathPush, "m1") {
		t.Error("fresh message flagged as duplicate")
	}
	d.MarkApplied(PathPush, "m1")
	if !d.IsDuplicate(PathPush, "m1") {
		t.Error("applied message not flagged as duplicate")
	}

	// Same id on the other path is a different message.
	if d.IsDuplicate(PathAttested, "m1") {
		t.Error("path should be part of the dedup key")
	}
}

func TestDeduperEmptyIDNeverDedups(t *testing.T) {
	d := NewDeduper(10, nil)
	d.MarkApplied(PathPush, "")
	if d.IsDuplicate(PathPush, "") {
		t.Error("empty ids must not dedup")
	}
}

func TestDeduperColdTier(t *testing.T) {
	db := &fakeDBChecker{seen: map[string]bool{}}
	d := NewDeduper(2, db)

	d.MarkApplied(PathPush, "m1")
	// Evict m1 from the tiny LRU.
	d.MarkApplied(PathPush, "m2")
	d.MarkApplied(PathPush, "m3")

	// m1 is gone from the LRU but the DB remembers it.
	if !d.IsDuplicate(PathPush, "m1") {
		t.Error("cold tier lookup should catch evicted message")
	}

	// And the hit backfills the LRU.
	db.failing = true
	if !d.IsDuplicate(PathPush, "m1") {
		t.Error("backfilled LRU should catch without DB")
	}
}

func TestDeduperDBErrorIsNotDuplicate(t *testing.T) {
	db := &fakeDBChecker{seen: map[string]bool{}, failing: true}
	d := NewDeduper(2, db)

	// A DB failure must not block the feed.
	if d.IsDuplicate(PathPush, "unknown") {
		t.Error("DB error should resolve to not-duplicate")
	}
}

func TestDedupLRUEviction(t *testing.T) {
	lru := newDedupLRU(2)
	lru.Add("a")
	lru.Add("b")
	lru.Add("c")

	if lru.Contains("a") {
		t.Error("oldest entry should have been evicted")
	}
	if !lru.Contains("b") || !lru.Contains("c") {
		t.Error("recent entries should survive")
	}
	if lru.Size() != 2 {
		t.Errorf("size: got %d, want 2", lru.Size())
	}
}
