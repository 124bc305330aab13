package health

import "company-lookup/internal/metrics"

// RuleResult represents the outcome of a single rule.
type RuleResult struct {
	Triggered      bool
	Signal         string
	Recommendation string
	Severity       Status
}

// Rule evaluates a metrics snapshot.
type Rule func(snapshot map[string]int64) RuleResult

func value(snapshot map[string]int64, key metrics.MetricKey) int64 {
	return snapshot[string(key)]
}

// ---------- RULES ----------

// Cache writes that failed even after a sweep mean results are not kept.
func CacheWriteFailureRule(snapshot map[string]int64) RuleResult {
	if value(snapshot, metrics.CacheSetFailuresTotal) > 0 {
		return RuleResult{
			Triggered:      true,
			Signal:         "Cache writes failing after sweep",
			Recommendation: "Raise storage.quota_bytes or lower cache.ttl",
			Severity:       StatusDegraded,
		}
	}
	return RuleResult{}
}

// Quota pressure shows up before writes start failing.
func QuotaPressureRule(snapshot map[string]int64) RuleResult {
	if value(snapshot, metrics.StoreQuotaExceededTotal) > 0 {
		return RuleResult{
			Triggered:      true,
			Signal:         "Storage quota exceeded",
			Recommendation: "Enable the periodic sweeper or raise the quota",
			Severity:       StatusDegraded,
		}
	}
	return RuleResult{}
}

// Undecodable entries were dropped from the cache or history.
func CorruptDataRule(snapshot map[string]int64) RuleResult {
	corrupt := value(snapshot, metrics.CacheCorruptTotal) + value(snapshot, metrics.HistoryCorruptTotal)
	if corrupt > 0 {
		return RuleResult{
			Triggered:      true,
			Signal:         "Corrupt stored entries detected",
			Recommendation: "Check for other writers sharing the storage origin",
			Severity:       StatusDegraded,
		}
	}
	return RuleResult{}
}

// Without storage every lookup goes to the backend.
func StoreUnavailableRule(snapshot map[string]int64) RuleResult {
	if value(snapshot, metrics.StoreUnavailableTotal) > 0 {
		return RuleResult{
			Triggered:      true,
			Signal:         "Storage unavailable, caching disabled",
			Recommendation: "Check storage.driver and storage.path",
			Severity:       StatusDegraded,
		}
	}
	return RuleResult{}
}

// Backend failures. Critical once at least half of a meaningful number
// of requests failed.
func BackendFailureRule(snapshot map[string]int64) RuleResult {
	requests := value(snapshot, metrics.BackendRequestsTotal)
	failures := value(snapshot, metrics.BackendFailuresTotal)

	switch {
	case requests >= 4 && failures*2 >= requests:
		return RuleResult{
			Triggered:      true,
			Signal:         "Most backend requests are failing",
			Recommendation: "Check backend.base_url and backend availability",
			Severity:       StatusCritical,
		}
	case failures > 0:
		return RuleResult{
			Triggered:      true,
			Signal:         "Backend request failures detected",
			Recommendation: "Check backend latency and backend.timeout",
			Severity:       StatusDegraded,
		}
	}
	return RuleResult{}
}

// Sweeper errors mean expired entries pile up until the next failed write.
func SweeperErrorRule(snapshot map[string]int64) RuleResult {
	if value(snapshot, metrics.SweeperErrorsTotal) > 0 {
		return RuleResult{
			Triggered:      true,
			Signal:         "Periodic sweep failures detected",
			Recommendation: "Inspect storage errors in the logs",
			Severity:       StatusDegraded,
		}
	}
	return RuleResult{}
}
