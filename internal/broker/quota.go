package broker

import (
	"context"
	"time"

	"realtime-voice-agent/backend/pkg/cache"
)

// QuotaStore counts session creations per client within a fixed window.
type QuotaStore interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)
}

// MemoryQuota keeps counters in process memory. Used when no Redis is
// configured.
type MemoryQuota struct {
	c *cache.Cache
}

// NewMemoryQuota creates an in-memory quota store.
func NewMemoryQuota() *MemoryQuota {
	return &MemoryQuota{c: cache.New(cache.Options{CleanupInterval: time.Minute, MaxItems: 100000})}
}

// IncrWindow implements QuotaStore.
func (m *MemoryQuota) IncrWindow(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	n, reset := m.c.Increment(key, window)
	return n, reset, nil
}

// Close stops the cache janitor.
func (m *MemoryQuota) Close() {
	m.c.Close()
}
