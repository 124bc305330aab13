// Package lookup runs the cache-then-fetch workflow for company lookups.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"company-lookup/internal/backend"
	"company-lookup/internal/cache"
	"company-lookup/internal/history"
	"company-lookup/internal/logs"
	"company-lookup/internal/metrics"
	"company-lookup/internal/model"
)

const (
	MinYears     = 1
	MaxYears     = 10
	DefaultYears = 3
)

var (
	ErrInvalidIdentifier = errors.New("lookup: identifier must be 2 to 10 digits")
	ErrInvalidYears      = fmt.Errorf("lookup: years must be between %d and %d", MinYears, MaxYears)
)

var cuiPattern = regexp.MustCompile(`^[0-9]{2,10}$`)

// Backend is the part of the remote API the service needs.
type Backend interface {
	Company(ctx context.Context, cui string) (model.Company, error)
	FinancialRecords(ctx context.Context, cui string, years int) ([]model.FinancialRecord, error)
	ProcessCompany(ctx context.Context, cui string, years int) (model.Company, error)
}

// Result is the outcome of a lookup.
type Result struct {
	Data      model.CompanyCacheData `json:"data"`
	FromCache bool                   `json:"fromCache"`
	Processed bool                   `json:"processed"`
}

// Service combines the backend, the result cache and the search history.
type Service struct {
	backend Backend
	cache   *cache.ResultCache
	history *history.History
	metrics *metrics.Registry
	logger  *logs.Logger
}

// NewService creates a Service. history may be nil.
func NewService(
	b Backend,
	c *cache.ResultCache,
	h *history.History,
	reg *metrics.Registry,
	logger *logs.Logger,
) *Service {
	if logger == nil {
		logger = logs.Nop()
	}
	return &Service{
		backend: b,
		cache:   c,
		history: h,
		metrics: reg,
		logger:  logger,
	}
}

// NormalizeIdentifier trims cui and checks it is a plausible fiscal code.
func NormalizeIdentifier(cui string) (string, error) {
	cui = strings.TrimSpace(cui)
	if !cuiPattern.MatchString(cui) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, cui)
	}
	return cui, nil
}

// ValidateYears checks the requested period length.
func ValidateYears(years int) error {
	if years < MinYears || years > MaxYears {
		return fmt.Errorf("%w: got %d", ErrInvalidYears, years)
	}
	return nil
}

func validate(cui string, years int) (string, error) {
	cui, err := NormalizeIdentifier(cui)
	if err != nil {
		return "", err
	}
	if err := ValidateYears(years); err != nil {
		return "", err
	}
	return cui, nil
}

// FullCompanyInfo returns the company and its records for the last years
// years. With useCache a valid cache entry is returned without touching
// the backend. Fresh results are written back to the cache.
func (s *Service) FullCompanyInfo(ctx context.Context, cui string, years int, useCache bool) (Result, error) {
	cui, err := validate(cui, years)
	if err != nil {
		return Result{}, err
	}
	s.metrics.Inc(metrics.LookupsTotal)

	if useCache {
		if res, ok := s.fromCache(cui, years); ok {
			return res, nil
		}
	}

	data, err := s.fetch(ctx, cui, years)
	if err != nil {
		return Result{}, err
	}
	s.store(cui, years, data)
	return Result{Data: data}, nil
}

// Search is the interactive lookup: cache first when useCache is set,
// then the backend. A company the backend does not know yet is processed
// and fetched again. Successful searches are recorded in the history.
func (s *Service) Search(ctx context.Context, cui string, years int, useCache bool) (Result, error) {
	cui, err := validate(cui, years)
	if err != nil {
		return Result{}, err
	}

	res, err := s.FullCompanyInfo(ctx, cui, years, useCache)
	if backend.IsNotFound(err) {
		s.logger.Info().Str("cui", cui).Int("years", years).Msg("company not found, processing")
		res, err = s.process(ctx, cui, years)
	}
	if err != nil {
		return Result{}, err
	}

	s.remember(cui)
	return res, nil
}

// Refresh drops the cached entry and fetches fresh data.
func (s *Service) Refresh(ctx context.Context, cui string, years int) (Result, error) {
	cui, err := validate(cui, years)
	if err != nil {
		return Result{}, err
	}
	s.clear(cui, years)
	return s.FullCompanyInfo(ctx, cui, years, false)
}

// UpdateFinancialRecords drops the cached entry, asks the backend to
// re-import the company for the new period and fetches the result.
func (s *Service) UpdateFinancialRecords(ctx context.Context, cui string, years int) (Result, error) {
	cui, err := validate(cui, years)
	if err != nil {
		return Result{}, err
	}
	s.clear(cui, years)
	return s.process(ctx, cui, years)
}

func (s *Service) process(ctx context.Context, cui string, years int) (Result, error) {
	if _, err := s.backend.ProcessCompany(ctx, cui, years); err != nil {
		return Result{}, fmt.Errorf("process company %s: %w", cui, err)
	}
	s.metrics.Inc(metrics.LookupsProcessedTotal)

	data, err := s.fetch(ctx, cui, years)
	if err != nil {
		return Result{}, err
	}
	s.store(cui, years, data)
	return Result{Data: data, Processed: true}, nil
}

// fetch loads the company and its records concurrently.
func (s *Service) fetch(ctx context.Context, cui string, years int) (model.CompanyCacheData, error) {
	var (
		company model.Company
		records []model.FinancialRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		company, err = s.backend.Company(gctx, cui)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = s.backend.FinancialRecords(gctx, cui, years)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.CompanyCacheData{}, err
	}

	if records == nil {
		records = []model.FinancialRecord{}
	}
	return model.CompanyCacheData{Company: company, Records: records, Years: years}, nil
}

func (s *Service) fromCache(cui string, years int) (Result, bool) {
	if s.cache == nil {
		return Result{}, false
	}
	data, res := s.cache.Get(cui, years)
	if res != cache.Hit {
		s.logger.Debug().Str("cui", cui).Int("years", years).Stringer("result", res).Msg("cache not used")
		return Result{}, false
	}
	s.metrics.Inc(metrics.LookupsFromCacheTotal)
	return Result{Data: data, FromCache: true}, true
}

func (s *Service) store(cui string, years int, data model.CompanyCacheData) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(cui, years, data, 0); err != nil {
		s.logger.Warn().Err(err).Str("cui", cui).Int("years", years).Msg("could not cache lookup result")
	}
}

func (s *Service) clear(cui string, years int) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Clear(cui, years); err != nil {
		s.logger.Warn().Err(err).Str("cui", cui).Int("years", years).Msg("could not clear cached result")
	}
}

func (s *Service) remember(cui string) {
	if s.history == nil {
		return
	}
	if err := s.history.Add(cui); err != nil {
		s.logger.Warn().Err(err).Str("cui", cui).Msg("could not update search history")
	}
}
