package ttl

import (
	"context"
	"time"

	"company-lookup/internal/logs"
	"company-lookup/internal/metrics"
)

// Sweepable is the part of the result cache the sweeper needs.
type Sweepable interface {
	SweepExpired() (int, error)
}

// Sweeper periodically sweeps expired cache entries.
//
// The cache never needs it: expired entries are already dropped when read.
// It only keeps the durable store small for long-running servers, and is
// off unless an interval is configured.
type Sweeper struct {
	target   Sweepable
	interval time.Duration
	logger   *logs.Logger
	metrics  *metrics.Registry
}

// NewSweeper creates a Sweeper. A non-positive interval disables it.
func NewSweeper(
	target Sweepable,
	interval time.Duration,
	logger *logs.Logger,
	reg *metrics.Registry,
) *Sweeper {
	if logger == nil {
		logger = logs.Nop()
	}
	return &Sweeper{
		target:   target,
		interval: interval,
		logger:   logger,
		metrics:  reg,
	}
}

// Enabled reports whether Start will do anything.
func (s *Sweeper) Enabled() bool {
	return s.interval > 0
}

// Start runs the sweep loop until ctx is cancelled. It blocks; run it in
// its own goroutine. A disabled sweeper returns immediately.
func (s *Sweeper) Start(ctx context.Context) {
	if !s.Enabled() {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce()
		case <-ctx.Done():
			s.logger.Debug().Msg("cache sweeper stopped")
			return
		}
	}
}

func (s *Sweeper) runOnce() {
	s.metrics.Inc(metrics.SweeperRunsTotal)

	removed, err := s.target.SweepExpired()
	if err != nil {
		s.metrics.Inc(metrics.SweeperErrorsTotal)
		s.logger.Warn().Err(err).Msg("scheduled cache sweep failed")
		return
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("scheduled cache sweep removed expired entries")
	}
}
