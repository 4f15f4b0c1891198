package gate

import (
	"context"
	"sync"
	"time"
)

// MemoryDedup is an in-process DedupStore. Used by simulate and as a
// fallback when no database is configured; records evaporate with the
// process.
type MemoryDedup struct {
	mu        sync.RWMutex
	retention time.Duration
	seen      map[string]time.Time
	now       func() time.Time
}

// NewMemoryDedup constructs an empty in-memory dedup store. Entries
// older than window are pruned on insert; the retention must cover the
// gate's dedup window or duplicates expire early.
func NewMemoryDedup(window time.Duration) *MemoryDedup {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &MemoryDedup{
		retention: window,
		seen:      make(map[string]time.Time),
		now:       time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (m *MemoryDedup) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// ExistsWithin reports whether fingerprint was approved within window.
func (m *MemoryDedup) ExistsWithin(_ context.Context, fingerprint string, window time.Duration) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	approvedAt, ok := m.seen[fingerprint]
	if !ok {
		return false, nil
	}
	return m.now().Sub(approvedAt) < window, nil
}

// Insert records an approval. Also prunes entries older than the
// retention horizon to keep the map bounded on long runs.
func (m *MemoryDedup) Insert(_ context.Context, fingerprint string, approvedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.retention)
	for fp, at := range m.seen {
		if at.Before(cutoff) {
			delete(m.seen, fp)
		}
	}
	m.seen[fingerprint] = approvedAt
	return nil
}

var _ DedupStore = (*MemoryDedup)(nil)
