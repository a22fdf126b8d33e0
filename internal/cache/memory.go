package cache

import (
	"fmt"
	"time"

	"github.com/couchcryptid/crash-risk-service/internal/domain"
	"github.com/dgraph-io/ristretto"
	"github.com/jonboulle/clockwork"
)

// DefaultTTL is the fast tier lifetime used when none is configured.
const DefaultTTL = time.Hour

type memoryItem struct {
	entry     domain.CacheEntry
	expiresAt time.Time
}

// Memory is the fast in-process tier. Capacity is measured in prediction
// rows so one large date cannot silently crowd out the budget. Expiry is
// checked on read against the injected clock; ristretto's own TTL only
// reclaims memory.
type Memory struct {
	store *ristretto.Cache
	ttl   time.Duration
	clock clockwork.Clock
}

// NewMemory creates a fast tier holding up to maxRows prediction rows.
func NewMemory(maxRows int64, ttl time.Duration, clock clockwork.Clock) (*Memory, error) {
	if maxRows <= 0 {
		return nil, fmt.Errorf("fast tier capacity must be positive, got %d", maxRows)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        10_000,
		MaxCost:            maxRows,
		BufferItems:        64,
		// Cost is counted in rows only.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create fast tier: %w", err)
	}
	return &Memory{store: store, ttl: ttl, clock: clock}, nil
}

// Get returns the entry for key unless it is absent or expired. Get never
// deletes; expired items are reclaimed by ristretto's TTL. The returned
// predictions are shared and must not be modified.
func (m *Memory) Get(key string) (domain.CacheEntry, bool) {
	v, ok := m.store.Get(key)
	if !ok {
		return domain.CacheEntry{}, false
	}
	item, ok := v.(memoryItem)
	if !ok || !m.clock.Now().Before(item.expiresAt) {
		return domain.CacheEntry{}, false
	}
	return item.entry, true
}

// Set stores entry under key for the tier's TTL and waits until the write is
// visible to readers. It reports false if the store dropped or refused the
// entry, which happens when it is larger than the whole capacity.
func (m *Memory) Set(key string, entry domain.CacheEntry) bool {
	item := memoryItem{entry: entry, expiresAt: m.clock.Now().Add(m.ttl)}
	cost := int64(len(entry.Predictions)) + 1
	if !m.store.SetWithTTL(key, item, cost, m.ttl) {
		return false
	}
	m.store.Wait()
	_, ok := m.store.Get(key)
	return ok
}

// Delete removes key.
func (m *Memory) Delete(key string) {
	m.store.Del(key)
}

// Close stops the store's background goroutines.
func (m *Memory) Close() {
	m.store.Close()
}
