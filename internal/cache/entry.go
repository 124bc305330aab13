package cache

import (
	"encoding/json"
	"errors"
	"time"
)

var errInvalidEntry = errors.New("entry expires before it was created")

// Entry is the persisted form of one cached value.
//
// Timestamps are Unix milliseconds so the stored JSON stays
// {"data":...,"timestamp":...,"expiresAt":...}.
type Entry[T any] struct {
	Data      T     `json:"data"`
	Timestamp int64 `json:"timestamp"`
	ExpiresAt int64 `json:"expiresAt"`
}

func newEntry[T any](data T, now time.Time, ttl time.Duration) Entry[T] {
	created := now.UnixMilli()
	expires := now.Add(ttl).UnixMilli()
	if expires <= created {
		expires = created + 1
	}
	return Entry[T]{Data: data, Timestamp: created, ExpiresAt: expires}
}

// IsExpired reports whether the entry is stale at now.
func (e Entry[T]) IsExpired(now time.Time) bool {
	return now.UnixMilli() > e.ExpiresAt
}

// decodeEntry parses a stored value. Values that do not parse, or whose
// expiry is not after their creation time, are corrupt.
func decodeEntry[T any](raw string) (Entry[T], error) {
	var e Entry[T]
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return e, err
	}
	if e.ExpiresAt <= e.Timestamp {
		return e, errInvalidEntry
	}
	return e, nil
}

// header is decoded when only the expiry matters (sweeps and stats).
type header struct {
	Timestamp int64 `json:"timestamp"`
	ExpiresAt int64 `json:"expiresAt"`
}

func decodeHeader(raw string) (header, error) {
	var h header
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return h, err
	}
	if h.ExpiresAt <= h.Timestamp {
		return h, errInvalidEntry
	}
	return h, nil
}

func (h header) isExpired(now time.Time) bool {
	return now.UnixMilli() > h.ExpiresAt
}
