package metrics

import (
	"sync"
	"sync/atomic"
)

// MetricKey names a counter in the registry.
type MetricKey string

const (
	// Result cache
	CacheGetsTotal        MetricKey = "cache_gets_total"
	CacheHitsTotal        MetricKey = "cache_hits_total"
	CacheMissesTotal      MetricKey = "cache_misses_total"
	CacheExpiredTotal     MetricKey = "cache_expired_total"
	CacheCorruptTotal     MetricKey = "cache_corrupt_total"
	CacheSetsTotal        MetricKey = "cache_sets_total"
	CacheSetRetriesTotal  MetricKey = "cache_set_retries_total"
	CacheSetFailuresTotal MetricKey = "cache_set_failures_total"
	CacheClearedTotal     MetricKey = "cache_cleared_total"

	// Sweeps (explicit, pre-retry and scheduled)
	CacheSweepRunsTotal     MetricKey = "cache_sweep_runs_total"
	CacheSweptKeysTotal     MetricKey = "cache_swept_keys_total"
	SweeperRunsTotal        MetricKey = "sweeper_runs_total"
	SweeperErrorsTotal      MetricKey = "sweeper_errors_total"
	StoreUnavailableTotal   MetricKey = "store_unavailable_total"
	StoreQuotaExceededTotal MetricKey = "store_quota_exceeded_total"

	// Search history
	HistoryAddsTotal    MetricKey = "history_adds_total"
	HistoryRemovesTotal MetricKey = "history_removes_total"
	HistoryCorruptTotal MetricKey = "history_corrupt_total"

	// Backend API
	BackendRequestsTotal MetricKey = "backend_requests_total"
	BackendFailuresTotal MetricKey = "backend_failures_total"
	BackendRetriesTotal  MetricKey = "backend_retries_total"

	// Lookups
	LookupsTotal          MetricKey = "lookups_total"
	LookupsFromCacheTotal MetricKey = "lookups_from_cache_total"
	LookupsProcessedTotal MetricKey = "lookups_processed_total"
)

// Registry stores all counters.
type Registry struct {
	mu       sync.RWMutex
	counters map[MetricKey]*int64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[MetricKey]*int64),
	}
}

// Inc increments a counter by 1.
func (r *Registry) Inc(key MetricKey) {
	r.Add(key, 1)
}

// Add increments a counter by delta. A nil registry is a no-op so
// components can be built without metrics in tests.
func (r *Registry) Add(key MetricKey, delta int64) {
	if r == nil {
		return
	}

	r.mu.RLock()
	ptr, ok := r.counters[key]
	r.mu.RUnlock()

	if ok {
		atomic.AddInt64(ptr, delta)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// another writer may have created it meanwhile
	if ptr, ok = r.counters[key]; ok {
		atomic.AddInt64(ptr, delta)
		return
	}

	var val int64
	r.counters[key] = &val
	atomic.AddInt64(&val, delta)
}

// Value returns the current value of a single counter.
func (r *Registry) Value(key MetricKey) int64 {
	if r == nil {
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if ptr, ok := r.counters[key]; ok {
		return atomic.LoadInt64(ptr)
	}
	return 0
}
