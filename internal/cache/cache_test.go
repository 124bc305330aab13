package cache

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"company-lookup/internal/metrics"
	"company-lookup/internal/model"
	"company-lookup/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/* ---------------- helpers ---------------- */

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 8, 6, 10, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// flakyStore fails the next failSets writes.
type flakyStore struct {
	*store.MemoryStore
	failSets int
	sets     int
}

func (f *flakyStore) Set(key, value string) error {
	f.sets++
	if f.failSets > 0 {
		f.failSets--
		return errors.New("disk full")
	}
	return f.MemoryStore.Set(key, value)
}

func samplePayload(years int) model.CompanyCacheData {
	return model.CompanyCacheData{
		Company: model.Company{CUI: "12345678", CompanyName: "ACME SRL", IsVATPayer: true},
		Records: []model.FinancialRecord{
			{CUI: "12345678", Year: 2023, NetTurnover: 1500000, NetProfit: 120000},
			{CUI: "12345678", Year: 2022, NetTurnover: 1300000, NetProfit: 90000},
			{CUI: "12345678", Year: 2021, NetTurnover: 1100000, NetProfit: -5000},
		},
		Years: years,
	}
}

func newTestCache(s store.Store) (*ResultCache, *fakeClock, *metrics.Registry) {
	clock := newFakeClock()
	reg := metrics.NewRegistry()
	return NewResultCache(s, WithClock(clock.Now), WithMetrics(reg)), clock, reg
}

/* ---------------- Get / Set ---------------- */

func TestCache_SetThenGet(t *testing.T) {
	c, _, _ := newTestCache(store.NewMemoryStore(0))
	payload := samplePayload(3)

	require.NoError(t, c.Set("12345678", 3, payload, 300*time.Second))

	t.Run("same key is a hit", func(t *testing.T) {
		got, res := c.Get("12345678", 3)
		require.Equal(t, Hit, res)
		assert.Equal(t, payload.Records, got.Records)
		assert.Equal(t, payload.Company, got.Company)
		assert.Equal(t, 3, got.Years)
	})

	t.Run("different years is absent", func(t *testing.T) {
		_, res := c.Get("12345678", 5)
		assert.Equal(t, Miss, res)
	})

	t.Run("unknown identifier is absent", func(t *testing.T) {
		_, res := c.Get("87654321", 3)
		assert.Equal(t, Miss, res)
		assert.False(t, c.Has("87654321", 3))
	})

	assert.True(t, c.Has("12345678", 3))
}

func TestCache_YearsAreDistinctEntries(t *testing.T) {
	c, _, _ := newTestCache(store.NewMemoryStore(0))

	require.NoError(t, c.Set("12345678", 3, samplePayload(3), 0))
	require.NoError(t, c.Set("12345678", 5, samplePayload(5), 0))

	three, res := c.Get("12345678", 3)
	require.Equal(t, Hit, res)
	five, res := c.Get("12345678", 5)
	require.Equal(t, Hit, res)

	assert.Equal(t, 3, three.Years)
	assert.Equal(t, 5, five.Years)
}

func TestCache_PersistedLayout(t *testing.T) {
	s := store.NewMemoryStore(0)
	c, clock, _ := newTestCache(s)

	require.NoError(t, c.Set("12345678", 3, samplePayload(3), 300000*time.Millisecond))

	raw, ok, err := s.Get("cache_12345678_3")
	require.NoError(t, err)
	require.True(t, ok)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	assert.Contains(t, decoded, "data")

	var ts, exp int64
	require.NoError(t, json.Unmarshal(decoded["timestamp"], &ts))
	require.NoError(t, json.Unmarshal(decoded["expiresAt"], &exp))
	assert.Equal(t, clock.Now().UnixMilli(), ts)
	assert.Equal(t, ts+300000, exp)
}

func TestCache_LazyExpiry(t *testing.T) {
	c, clock, reg := newTestCache(store.NewMemoryStore(0))

	require.NoError(t, c.Set("12345678", 3, samplePayload(3), time.Minute))

	clock.Advance(time.Minute)
	_, res := c.Get("12345678", 3)
	assert.Equal(t, Hit, res, "entry is valid up to and including expiresAt")

	clock.Advance(time.Millisecond)

	// not deleted until something reads it
	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Expired)

	_, res = c.Get("12345678", 3)
	assert.Equal(t, Expired, res)

	stats, err = c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 0, stats.Expired)

	_, res = c.Get("12345678", 3)
	assert.Equal(t, Miss, res)

	assert.Equal(t, int64(1), reg.Value(metrics.CacheExpiredTotal))
	assert.Equal(t, int64(1), reg.Value(metrics.CacheHitsTotal))
}

func TestCache_DefaultTTL(t *testing.T) {
	t.Run("package default", func(t *testing.T) {
		c, clock, _ := newTestCache(store.NewMemoryStore(0))
		require.NoError(t, c.Set("1", 3, samplePayload(3), 0))

		clock.Advance(DefaultTTL)
		assert.True(t, c.Has("1", 3))

		clock.Advance(time.Millisecond)
		assert.False(t, c.Has("1", 3))
	})

	t.Run("configured default", func(t *testing.T) {
		clock := newFakeClock()
		c := NewResultCache(store.NewMemoryStore(0), WithClock(clock.Now), WithDefaultTTL(time.Second))
		require.NoError(t, c.Set("1", 3, samplePayload(3), -time.Hour))

		clock.Advance(time.Second + time.Millisecond)
		assert.False(t, c.Has("1", 3))
	})

	t.Run("sub-millisecond ttl still expires after creation", func(t *testing.T) {
		c, clock, _ := newTestCache(store.NewMemoryStore(0))
		require.NoError(t, c.Set("1", 3, samplePayload(3), time.Microsecond))

		assert.True(t, c.Has("1", 3))
		clock.Advance(2 * time.Millisecond)
		assert.False(t, c.Has("1", 3))
	})
}

func TestCache_CorruptEntries(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{bad-json`},
		{"wrong shape", `["a","b"]`},
		{"missing expiry", `{"data":{},"timestamp":1000}`},
		{"expires before created", `{"data":{},"timestamp":2000,"expiresAt":1000}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMemoryStore(0)
			c, _, reg := newTestCache(s)
			require.NoError(t, s.Set("cache_12345678_3", tt.raw))

			_, res := c.Get("12345678", 3)
			assert.Equal(t, Corrupt, res)

			_, ok, _ := s.Get("cache_12345678_3")
			assert.False(t, ok, "corrupt entry should be deleted")
			assert.Equal(t, int64(1), reg.Value(metrics.CacheCorruptTotal))
		})
	}
}

/* ---------------- write failure handling ---------------- */

func TestCache_SetRetriesOnceAfterSweep(t *testing.T) {
	fs := &flakyStore{MemoryStore: store.NewMemoryStore(0), failSets: 1}
	c, clock, reg := newTestCache(fs)

	require.NoError(t, fs.MemoryStore.Set("cache_old_3", `{"data":{},"timestamp":1,"expiresAt":2}`))
	clock.Advance(time.Second)

	err := c.Set("12345678", 3, samplePayload(3), 0)
	require.NoError(t, err)

	assert.Equal(t, 2, fs.sets, "exactly one retry")
	_, ok, _ := fs.Get("cache_old_3")
	assert.False(t, ok, "sweep ran before the retry")
	assert.True(t, c.Has("12345678", 3))
	assert.Equal(t, int64(1), reg.Value(metrics.CacheSetRetriesTotal))
}

func TestCache_SetGivesUpAfterSecondFailure(t *testing.T) {
	fs := &flakyStore{MemoryStore: store.NewMemoryStore(0), failSets: 5}
	c, _, reg := newTestCache(fs)

	err := c.Set("12345678", 3, samplePayload(3), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWriteFailed)
	assert.Equal(t, 2, fs.sets)
	assert.Equal(t, int64(1), reg.Value(metrics.CacheSetFailuresTotal))

	_, res := c.Get("12345678", 3)
	assert.Equal(t, Miss, res)
}

func TestCache_QuotaFreedBySweep(t *testing.T) {
	payload := samplePayload(3)
	raw, err := json.Marshal(Entry[model.CompanyCacheData]{Data: payload, Timestamp: 1, ExpiresAt: 2})
	require.NoError(t, err)

	// room for roughly one entry
	s := store.NewMemoryStore(int64(len(raw)) + 64)
	c, clock, reg := newTestCache(s)

	require.NoError(t, c.Set("11111111", 3, payload, time.Minute))
	clock.Advance(2 * time.Minute)

	require.NoError(t, c.Set("22222222", 3, payload, time.Minute))
	assert.True(t, c.Has("22222222", 3))
	assert.Equal(t, int64(1), reg.Value(metrics.StoreQuotaExceededTotal))

	// nothing expired this time: the write is dropped, not fatal
	err = c.Set("33333333", 3, payload, time.Minute)
	assert.ErrorIs(t, err, ErrWriteFailed)
	assert.ErrorIs(t, err, store.ErrQuotaExceeded)
	assert.True(t, c.Has("22222222", 3))
}

/* ---------------- clearing ---------------- */

func TestCache_Clear(t *testing.T) {
	s := store.NewMemoryStore(0)
	c, _, _ := newTestCache(s)

	require.NoError(t, c.Set("12345678", 3, samplePayload(3), 0))
	require.NoError(t, c.Set("12345678", 5, samplePayload(5), 0))

	require.NoError(t, c.Clear("12345678", 3))

	assert.False(t, c.Has("12345678", 3))
	assert.True(t, c.Has("12345678", 5))
	assert.NoError(t, c.Clear("12345678", 9), "clearing a missing key is fine")
}

func TestCache_ClearIdentifier(t *testing.T) {
	s := store.NewMemoryStore(0)
	c, _, _ := newTestCache(s)

	for _, years := range []int{1, 3, 5, 10} {
		require.NoError(t, c.Set("12", years, samplePayload(years), 0))
	}
	require.NoError(t, c.Set("123", 3, samplePayload(3), 0))
	require.NoError(t, s.Set("cache_12_x_3", "unrelated"))
	require.NoError(t, s.Set("search_history", `["12"]`))

	removed, err := c.ClearIdentifier("12")
	require.NoError(t, err)
	assert.Equal(t, 4, removed)

	for _, years := range []int{1, 3, 5, 10} {
		assert.False(t, c.Has("12", years))
	}
	assert.True(t, c.Has("123", 3), "other identifiers sharing a prefix are kept")

	_, ok, _ := s.Get("cache_12_x_3")
	assert.True(t, ok)
	_, ok, _ = s.Get("search_history")
	assert.True(t, ok)
}

func TestCache_ClearAll(t *testing.T) {
	s := store.NewMemoryStore(0)
	c, _, _ := newTestCache(s)

	require.NoError(t, c.Set("1", 3, samplePayload(3), 0))
	require.NoError(t, c.Set("2", 3, samplePayload(3), 0))
	require.NoError(t, s.Set("search_history", `["1","2"]`))
	require.NoError(t, s.Set("theme", "dark"))

	removed, err := c.ClearAll()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"search_history", "theme"}, keys)
}

/* ---------------- sweep & stats ---------------- */

func TestCache_SweepExpired(t *testing.T) {
	s := store.NewMemoryStore(0)
	c, clock, reg := newTestCache(s)

	require.NoError(t, c.Set("short", 3, samplePayload(3), time.Second))
	require.NoError(t, c.Set("long", 3, samplePayload(3), time.Hour))
	require.NoError(t, s.Set("cache_broken_3", "nope"))
	require.NoError(t, s.Set("search_history", "nope"))

	clock.Advance(time.Minute)

	removed, err := c.SweepExpired()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	assert.True(t, c.Has("long", 3))
	_, ok, _ := s.Get("search_history")
	assert.True(t, ok, "keys outside the namespace are never swept")

	assert.Equal(t, int64(1), reg.Value(metrics.CacheSweepRunsTotal))
	assert.Equal(t, int64(2), reg.Value(metrics.CacheSweptKeysTotal))
}

func TestCache_Stats(t *testing.T) {
	s := store.NewMemoryStore(0)
	c, clock, _ := newTestCache(s)

	require.NoError(t, c.Set("a", 3, samplePayload(3), time.Second))
	require.NoError(t, c.Set("b", 3, samplePayload(3), time.Hour))
	require.NoError(t, s.Set("cache_c_3", "garbage"))
	require.NoError(t, s.Set("search_history", `["a"]`))

	clock.Advance(time.Minute)

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Expired, "expired and unparsable entries")

	var size int64
	for _, k := range []string{"cache_a_3", "cache_b_3", "cache_c_3"} {
		raw, _, _ := s.Get(k)
		size += int64(len(raw))
	}
	assert.Equal(t, size, stats.ApproxSizeBytes)

	// read-only
	assert.Equal(t, 4, s.Len())
}

func TestStats_SizeLabel(t *testing.T) {
	assert.Equal(t, "0.00 KB", Stats{}.SizeLabel())
	assert.Equal(t, "1.50 KB", Stats{ApproxSizeBytes: 1536}.SizeLabel())
}

/* ---------------- availability guard ---------------- */

func TestCache_UnavailableStore(t *testing.T) {
	for name, s := range map[string]store.Store{
		"unavailable": store.Unavailable{},
		"nil":         nil,
	} {
		t.Run(name, func(t *testing.T) {
			c, _, reg := newTestCache(s)

			assert.NotPanics(t, func() {
				_, res := c.Get("1", 3)
				assert.Equal(t, Unavailable, res)

				assert.ErrorIs(t, c.Set("1", 3, samplePayload(3), 0), store.ErrUnavailable)
				assert.ErrorIs(t, c.Clear("1", 3), store.ErrUnavailable)

				n, err := c.ClearIdentifier("1")
				assert.Zero(t, n)
				assert.ErrorIs(t, err, store.ErrUnavailable)

				n, err = c.ClearAll()
				assert.Zero(t, n)
				assert.ErrorIs(t, err, store.ErrUnavailable)

				n, err = c.SweepExpired()
				assert.Zero(t, n)
				assert.ErrorIs(t, err, store.ErrUnavailable)

				stats, err := c.Stats()
				assert.Equal(t, Stats{}, stats)
				assert.ErrorIs(t, err, store.ErrUnavailable)
			})

			assert.Positive(t, reg.Value(metrics.StoreUnavailableTotal))
		})
	}
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "hit", Hit.String())
	assert.Equal(t, "miss", Miss.String())
	assert.Equal(t, "expired", Expired.String())
	assert.Equal(t, "corrupt", Corrupt.String())
	assert.Equal(t, "unavailable", Unavailable.String())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "cache_12345678_3", Key("12345678", 3))
	assert.True(t, belongsTo("cache_12_10", "12"))
	assert.False(t, belongsTo("cache_123_3", "12"))
	assert.False(t, belongsTo("cache_12_", "12"))
	assert.False(t, belongsTo("cache_12_3_5", "12"))
}
