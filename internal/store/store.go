package store

import (
	"errors"
	"strings"
)

var (
	// ErrUnavailable is returned by every operation of a store that cannot
	// be used in the current environment.
	ErrUnavailable = errors.New("store: durable storage unavailable")

	// ErrQuotaExceeded is returned by Set when the write would grow the
	// store beyond its byte quota.
	ErrQuotaExceeded = errors.New("store: quota exceeded")
)

// Store is a durable string key/value store scoped to one origin.
//
// Implementations must be safe for concurrent use. There are no
// transactions: concurrent writers to the same key follow last writer wins.
type Store interface {
	// Available reports whether the store can be used at all.
	Available() bool

	// Get returns the value stored under key and whether it exists.
	Get(key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// Keys returns a sorted snapshot of every key.
	Keys() ([]string, error)
}

// KeysWithPrefix returns the keys of s that start with prefix.
func KeysWithPrefix(s Store, prefix string) ([]string, error) {
	keys, err := s.Keys()
	if err != nil {
		return nil, err
	}

	out := keys[:0]
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

// Usable reports whether s is non-nil and available.
func Usable(s Store) bool {
	return s != nil && s.Available()
}

// entrySize is what one key/value pair counts against a quota.
func entrySize(key, value string) int64 {
	return int64(len(key) + len(value))
}
