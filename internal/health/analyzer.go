// Package health turns metrics and recent logs into a health report.
package health

import (
	"strings"

	"company-lookup/internal/logs"
	"company-lookup/internal/metrics"
)

// Analyzer converts metrics + logs into a health report.
type Analyzer struct {
	metrics *metrics.Registry
	logger  *logs.Logger
	rules   []Rule
}

// NewAnalyzer creates a new analyzer.
func NewAnalyzer(
	reg *metrics.Registry,
	logger *logs.Logger,
) *Analyzer {
	if logger == nil {
		logger = logs.Nop()
	}
	return &Analyzer{
		metrics: reg,
		logger:  logger,
		rules: []Rule{
			CacheWriteFailureRule,
			QuotaPressureRule,
			CorruptDataRule,
			StoreUnavailableRule,
			BackendFailureRule,
			SweeperErrorRule,
		},
	}
}

// Analyze evaluates metrics and logs and returns a health report.
func (a *Analyzer) Analyze() Report {
	snapshot := a.metrics.Snapshot()

	var (
		signals         = []string{}
		recommendations = []string{}
		status          = StatusOK
	)

	/* ---------- METRICS-BASED RULES ---------- */

	for _, rule := range a.rules {
		result := rule(snapshot)
		if !result.Triggered {
			continue
		}

		signals = append(signals, result.Signal)
		recommendations = append(recommendations, result.Recommendation)
		status = worse(status, result.Severity)
	}

	/* ---------- LOG-BASED SIGNALS ---------- */

	backendFailures := 0
	panicCount := 0

	for _, entry := range a.logger.GetLast(100) {
		if entry.Level == logs.WARN &&
			strings.Contains(entry.Message, "backend request failed") {
			backendFailures++
		}

		if entry.Level == logs.ERROR &&
			strings.Contains(entry.Message, "panic") {
			panicCount++
		}
	}

	if backendFailures >= 3 {
		signals = append(signals,
			"Repeated backend failures detected in logs",
		)
		recommendations = append(recommendations,
			"Investigate network connectivity to the backend",
		)
		status = worse(status, StatusDegraded)
	}

	if panicCount > 0 {
		signals = append(signals,
			"Application panics detected in logs",
		)
		recommendations = append(recommendations,
			"Inspect stack traces and stabilize error handling",
		)
		status = StatusCritical
	}

	/* ---------- SUMMARY ---------- */

	summary := "System is healthy"
	if status != StatusOK {
		summary = "System health issues detected"
	}

	return Report{
		OverallStatus:   status,
		Summary:         summary,
		Signals:         signals,
		Recommendations: recommendations,
	}
}
