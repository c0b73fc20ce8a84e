package core

import (
	"container/list"
	"fmt"
)

// IdempotencyChecker implements two-tier deduplication keyed by the
// deterministic event identity: a hot in-memory LRU backed by a Postgres
// lookup for keys that aged out of the cache. At-least-once redelivery from
// the ingestion layer is therefore safe.
type IdempotencyChecker struct {
	lru       *processedLRU
	dbChecker DBIdempotencyChecker

	duplicatesLRU int64
	duplicatesDB  int64
	tier2Errors   int64
}

// DBIdempotencyChecker is the cold-path lookup against the event log.
type DBIdempotencyChecker interface {
	IsDuplicate(eventType string, eventID string) (bool, error)
}

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru:       newProcessedLRU(capacity),
		dbChecker: dbChecker,
	}
}

// IsDuplicate checks whether the event was already processed (two-tier).
func (ic *IdempotencyChecker) IsDuplicate(eventType string, eventID string) bool {
	key := compositeKey(eventType, eventID)

	if ic.lru.Contains(key) {
		ic.duplicatesLRU++
		return true
	}

	if ic.dbChecker != nil {
		isDup, err := ic.dbChecker.IsDuplicate(eventType, eventID)
		if err != nil {
			// A DB hiccup must not block processing; the persisted event log
			// is keyed on event identity so a false negative only produces a
			// no-op conflict on write.
			ic.tier2Errors++
			return false
		}
		if isDup {
			ic.duplicatesDB++
			ic.lru.Add(key)
			return true
		}
	}

	return false
}

// MarkProcessed records the key after the event fully persisted.
func (ic *IdempotencyChecker) MarkProcessed(eventType string, eventID string) {
	ic.lru.Add(compositeKey(eventType, eventID))
}

// WarmFromKeys preloads composite keys, used on restart so recently
// processed events skip the cold path.
func (ic *IdempotencyChecker) WarmFromKeys(keys []string) {
	ic.lru.WarmFromKeys(keys)
}

// Keys returns every cached composite key, for snapshots.
func (ic *IdempotencyChecker) Keys() []string {
	return ic.lru.Keys()
}

func compositeKey(eventType, eventID string) string {
	return fmt.Sprintf("%s:%s", eventType, eventID)
}

// --- LRU ---

// processedLRU caches recently processed composite keys.
// Not thread-safe — only accessed from the single-threaded engine.
type processedLRU struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List
}

type lruEntry struct {
	key string
}

func newProcessedLRU(capacity int) *processedLRU {
	return &processedLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

func (lru *processedLRU) Contains(key string) bool {
	elem, exists := lru.cache[key]
	if exists {
		lru.lruList.MoveToFront(elem)
		return true
	}
	return false
}

func (lru *processedLRU) Add(key string) {
	if elem, exists := lru.cache[key]; exists {
		lru.lruList.MoveToFront(elem)
		return
	}

	elem := lru.lruList.PushFront(&lruEntry{key: key})
	lru.cache[key] = elem

	if lru.lruList.Len() > lru.capacity {
		lru.evictOldest()
	}
}

func (lru *processedLRU) evictOldest() {
	elem := lru.lruList.Back()
	if elem != nil {
		lru.lruList.Remove(elem)
		delete(lru.cache, elem.Value.(*lruEntry).key)
	}
}

func (lru *processedLRU) WarmFromKeys(keys []string) {
	for _, key := range keys {
		lru.Add(key)
	}
}

func (lru *processedLRU) Keys() []string {
	out := make([]string, 0, lru.lruList.Len())
	for elem := lru.lruList.Front(); elem != nil; elem = elem.Next() {
		out = append(out, elem.Value.(*lruEntry).key)
	}
	return out
}

func (lru *processedLRU) Size() int {
	return lru.lruList.Len()
}
