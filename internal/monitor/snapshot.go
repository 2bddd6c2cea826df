package monitor

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the last observed rate for one currency.
type Snapshot struct {
	Currency   string
	Rate       decimal.Decimal
	ObservedAt time.Time
}

// SnapshotCache holds the last observed rate per currency. It is process
// local and rebuilt from zero on restart: the first cycle after a restart
// only seeds baselines and can never trigger alerts.
type SnapshotCache struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

// NewSnapshotCache constructs an empty cache.
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{snapshots: make(map[string]Snapshot)}
}

// Get returns the snapshot for a currency, if present.
func (c *SnapshotCache) Get(currency string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.snapshots[currency]
	return snap, ok
}

// Set overwrites the snapshot for a currency. Last observed wins.
func (c *SnapshotCache) Set(currency string, rate decimal.Decimal, observedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[currency] = Snapshot{Currency: currency, Rate: rate, ObservedAt: observedAt}
}

// Len reports the number of tracked currencies.
func (c *SnapshotCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snapshots)
}
