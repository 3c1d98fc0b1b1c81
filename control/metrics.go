// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics collector for pool monitoring.
// Exposes counters in a thread-safe map with dynamic registration.

package control

import (
	"fmt"
	"sync"
	"time"

	"github.com/momentics/hioload-mq/api"
)

// MetricsRegistry holds the latest published metric values.
type MetricsRegistry struct {
	mu      sync.RWMutex
	metrics map[string]any
	updated time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		metrics: make(map[string]any),
	}
}

// Set sets or updates a metric key.
func (mr *MetricsRegistry) Set(key string, value any) {
	mr.mu.Lock()
	mr.metrics[key] = value
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// SetMany updates several keys under one lock.
func (mr *MetricsRegistry) SetMany(values map[string]any) {
	mr.mu.Lock()
	for k, v := range values {
		mr.metrics[k] = v
	}
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Updated returns when the registry last changed.
func (mr *MetricsRegistry) Updated() time.Time {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.updated
}

// GetSnapshot returns the latest metrics.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]any, len(mr.metrics))
	for k, v := range mr.metrics {
		out[k] = v
	}
	return out
}

// PublishPoolStatistics stores st under the "pool." prefix, with one
// "pool.class.<capacity>." group per size class.
func PublishPoolStatistics(mr *MetricsRegistry, st api.PoolStatistics) {
	m := map[string]any{
		"pool.rents":          st.Rents,
		"pool.returns":        st.Returns,
		"pool.hits":           st.Hits,
		"pool.misses":         st.Misses,
		"pool.discards":       st.Discards,
		"pool.oversize_rents": st.OversizeRents,
		"pool.overflow":       st.Overflow(),
		"pool.outstanding":    st.Outstanding(),
		"pool.hit_rate":       st.HitRate(),
	}
	for _, c := range st.Classes {
		prefix := fmt.Sprintf("pool.class.%d.", c.Capacity)
		m[prefix+"free"] = c.Free
		m[prefix+"rents"] = c.Rents
		m[prefix+"outstanding"] = c.Outstanding()
		m[prefix+"discards"] = c.Discards
	}
	mr.SetMany(m)
}

// PublishHintStatistics stores st under the "hint." prefix.
func PublishHintStatistics(mr *MetricsRegistry, st api.HintStatistics) {
	mr.SetMany(map[string]any{
		"hint.acquired":   st.Acquired,
		"hint.claimed":    st.Claimed,
		"hint.duplicates": st.Duplicates,
		"hint.unknown":    st.Unknown,
		"hint.allocated":  st.Allocated,
		"hint.free":       st.Free,
		"hint.live":       st.Live,
	})
}
