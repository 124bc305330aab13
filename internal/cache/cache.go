// Package cache implements the result cache: lookups keyed by
// (identifier, years), persisted as JSON in a durable string store, with
// lazy expiry on read and explicit sweeps.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"company-lookup/internal/logs"
	"company-lookup/internal/metrics"
	"company-lookup/internal/model"
	"company-lookup/internal/store"
)

const (
	// KeyPrefix marks every store key owned by the cache.
	KeyPrefix = "cache_"

	// DefaultTTL applies when Set is called without a positive ttl.
	DefaultTTL = 5 * time.Minute
)

// ErrWriteFailed is returned by Set when the write failed, a sweep of
// expired entries ran, and the retried write failed too.
var ErrWriteFailed = errors.New("cache: write failed after sweep")

// Result classifies the outcome of Get.
type Result int

const (
	Miss Result = iota
	Hit
	Expired
	Corrupt
	Unavailable
)

func (r Result) String() string {
	switch r {
	case Hit:
		return "hit"
	case Expired:
		return "expired"
	case Corrupt:
		return "corrupt"
	case Unavailable:
		return "unavailable"
	default:
		return "miss"
	}
}

// Stats is a read-only accounting of the cache namespace.
type Stats struct {
	Total           int   `json:"total"`
	Expired         int   `json:"expired"`
	ApproxSizeBytes int64 `json:"approxSizeBytes"`
}

// SizeLabel renders the size in kilobytes with two decimals.
func (s Stats) SizeLabel() string {
	return fmt.Sprintf("%.2f KB", float64(s.ApproxSizeBytes)/1024)
}

// Key returns the store key for (identifier, years).
func Key(identifier string, years int) string {
	return KeyPrefix + identifier + "_" + strconv.Itoa(years)
}

// belongsTo reports whether key is one of identifier's entries: the
// identifier prefix followed by a decimal years value and nothing else.
func belongsTo(key, identifier string) bool {
	rest, ok := strings.CutPrefix(key, KeyPrefix+identifier+"_")
	if !ok || rest == "" {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now     func() time.Time
	ttl     time.Duration
	metrics *metrics.Registry
	logger  *logs.Logger
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithDefaultTTL overrides DefaultTTL.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithMetrics records counters in reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(o *options) { o.metrics = reg }
}

// WithLogger sets the logger.
func WithLogger(l *logs.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Cache stores values of type T in a store.Store.
//
// Every operation first checks that the store is usable. When it is not,
// reads come back empty and writes report store.ErrUnavailable; nothing
// panics. There is no background eviction: expired entries are removed
// when read, by SweepExpired, or before Set retries a failed write.
type Cache[T any] struct {
	store   store.Store
	now     func() time.Time
	ttl     time.Duration
	metrics *metrics.Registry
	logger  *logs.Logger
}

// ResultCache caches company lookups.
type ResultCache = Cache[model.CompanyCacheData]

// New creates a Cache over s.
func New[T any](s store.Store, opts ...Option) *Cache[T] {
	o := options{
		now:    time.Now,
		ttl:    DefaultTTL,
		logger: logs.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Cache[T]{
		store:   s,
		now:     o.now,
		ttl:     o.ttl,
		metrics: o.metrics,
		logger:  o.logger,
	}
}

// NewResultCache creates the company lookup cache.
func NewResultCache(s store.Store, opts ...Option) *ResultCache {
	return New[model.CompanyCacheData](s, opts...)
}

func (c *Cache[T]) usable() bool {
	if store.Usable(c.store) {
		return true
	}
	c.metrics.Inc(metrics.StoreUnavailableTotal)
	return false
}

// Get looks up (identifier, years).
//
// Behavior:
// - Returns (value, Hit) if the entry exists and is not expired
// - An expired entry is deleted and reported as Expired
// - An entry that cannot be decoded is deleted and reported as Corrupt
// - A missing entry is a Miss; an unusable store is Unavailable
func (c *Cache[T]) Get(identifier string, years int) (T, Result) {
	var zero T
	c.metrics.Inc(metrics.CacheGetsTotal)

	if !c.usable() {
		return zero, Unavailable
	}

	key := Key(identifier, years)
	raw, ok, err := c.store.Get(key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return zero, Unavailable
	}
	if !ok {
		c.metrics.Inc(metrics.CacheMissesTotal)
		c.logger.Debug().Str("key", key).Msg("cache miss")
		return zero, Miss
	}

	entry, err := decodeEntry[T](raw)
	if err != nil {
		c.metrics.Inc(metrics.CacheCorruptTotal)
		c.logger.Warn().Err(err).Str("key", key).Msg("dropping corrupt cache entry")
		c.delete(key)
		return zero, Corrupt
	}

	if entry.IsExpired(c.now()) {
		c.metrics.Inc(metrics.CacheExpiredTotal)
		c.logger.Debug().Str("key", key).Msg("cache entry expired")
		c.delete(key)
		return zero, Expired
	}

	c.metrics.Inc(metrics.CacheHitsTotal)
	c.logger.Debug().Str("key", key).Msg("cache hit")
	return entry.Data, Hit
}

// Has reports whether a valid entry exists. Like Get, it removes an
// expired or corrupt entry it runs into.
func (c *Cache[T]) Has(identifier string, years int) bool {
	_, res := c.Get(identifier, years)
	return res == Hit
}

// Set stores payload under (identifier, years) for ttl, or the default TTL
// when ttl <= 0.
//
// If the write fails, expired entries are swept from the whole namespace
// and the write is retried exactly once. A second failure returns an
// error wrapping ErrWriteFailed; callers treat it as best effort.
func (c *Cache[T]) Set(identifier string, years int, payload T, ttl time.Duration) error {
	if !c.usable() {
		return store.ErrUnavailable
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	key := Key(identifier, years)
	raw, err := json.Marshal(newEntry(payload, c.now(), ttl))
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}

	c.metrics.Inc(metrics.CacheSetsTotal)

	err = c.store.Set(key, string(raw))
	if err == nil {
		c.logger.Debug().Str("key", key).Dur("ttl", ttl).Msg("cache set")
		return nil
	}

	if errors.Is(err, store.ErrQuotaExceeded) {
		c.metrics.Inc(metrics.StoreQuotaExceededTotal)
	}
	c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed, sweeping expired entries")

	c.metrics.Inc(metrics.CacheSetRetriesTotal)
	if _, sweepErr := c.SweepExpired(); sweepErr != nil {
		c.logger.Debug().Err(sweepErr).Msg("sweep before retry failed")
	}

	if err := c.store.Set(key, string(raw)); err != nil {
		c.metrics.Inc(metrics.CacheSetFailuresTotal)
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed after sweep")
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, key, err)
	}
	return nil
}

// Clear deletes the entry for exactly (identifier, years).
func (c *Cache[T]) Clear(identifier string, years int) error {
	if !c.usable() {
		return store.ErrUnavailable
	}

	key := Key(identifier, years)
	if err := c.store.Delete(key); err != nil {
		return fmt.Errorf("cache: delete %s: %w", key, err)
	}
	c.metrics.Inc(metrics.CacheClearedTotal)
	return nil
}

// ClearIdentifier deletes every entry of identifier, whatever its years.
// Entries of other identifiers are untouched. It returns how many were
// removed.
func (c *Cache[T]) ClearIdentifier(identifier string) (int, error) {
	return c.deleteWhere(func(key string) bool {
		return belongsTo(key, identifier)
	})
}

// ClearAll deletes every key in the cache namespace and nothing else.
func (c *Cache[T]) ClearAll() (int, error) {
	return c.deleteWhere(func(string) bool { return true })
}

func (c *Cache[T]) deleteWhere(match func(key string) bool) (int, error) {
	if !c.usable() {
		return 0, store.ErrUnavailable
	}

	keys, err := store.KeysWithPrefix(c.store, KeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("cache: list keys: %w", err)
	}

	removed := 0
	for _, key := range keys {
		if !match(key) {
			continue
		}
		if err := c.store.Delete(key); err != nil {
			return removed, fmt.Errorf("cache: delete %s: %w", key, err)
		}
		removed++
	}

	c.metrics.Add(metrics.CacheClearedTotal, int64(removed))
	return removed, nil
}

// SweepExpired deletes every namespace entry that has expired or cannot
// be decoded, and returns how many were removed.
func (c *Cache[T]) SweepExpired() (int, error) {
	if !c.usable() {
		return 0, store.ErrUnavailable
	}
	c.metrics.Inc(metrics.CacheSweepRunsTotal)

	keys, err := store.KeysWithPrefix(c.store, KeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("cache: list keys: %w", err)
	}

	now := c.now()
	removed := 0
	for _, key := range keys {
		raw, ok, err := c.store.Get(key)
		if err != nil || !ok {
			continue
		}
		if h, err := decodeHeader(raw); err == nil && !h.isExpired(now) {
			continue
		}
		if err := c.store.Delete(key); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("sweep delete failed")
			continue
		}
		removed++
	}

	if removed > 0 {
		c.metrics.Add(metrics.CacheSweptKeysTotal, int64(removed))
		c.logger.Info().Int("removed", removed).Msg("swept expired cache entries")
	}
	return removed, nil
}

// Stats counts namespace entries without modifying anything. Entries that
// cannot be decoded count as expired. The size is the sum of the stored
// value lengths in bytes.
func (c *Cache[T]) Stats() (Stats, error) {
	var s Stats
	if !c.usable() {
		return s, store.ErrUnavailable
	}

	keys, err := store.KeysWithPrefix(c.store, KeyPrefix)
	if err != nil {
		return s, fmt.Errorf("cache: list keys: %w", err)
	}

	now := c.now()
	for _, key := range keys {
		raw, ok, err := c.store.Get(key)
		if err != nil || !ok {
			continue
		}
		s.Total++
		s.ApproxSizeBytes += int64(len(raw))
		if h, err := decodeHeader(raw); err != nil || h.isExpired(now) {
			s.Expired++
		}
	}
	return s, nil
}

// delete removes key, logging instead of failing.
func (c *Cache[T]) delete(key string) {
	if err := c.store.Delete(key); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache delete failed")
	}
}
