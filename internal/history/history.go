// Package history keeps the list of recently searched identifiers.
package history

import (
	"encoding/json"
	"errors"
	"fmt"

	"company-lookup/internal/logs"
	"company-lookup/internal/metrics"
	"company-lookup/internal/store"
)

const (
	// StorageKey is the single store key holding the list.
	StorageKey = "search_history"

	// DefaultMaxItems bounds the list length.
	DefaultMaxItems = 10
)

// ErrCorrupt is returned by List when the stored list cannot be decoded.
var ErrCorrupt = errors.New("history: stored list is corrupt")

// History is a most-recent-first, duplicate-free, bounded list of
// identifiers persisted as a JSON array under StorageKey.
//
// Read-modify-write is not atomic; concurrent writers follow last writer
// wins.
type History struct {
	store    store.Store
	maxItems int
	metrics  *metrics.Registry
	logger   *logs.Logger
}

// New creates a History over s. maxItems <= 0 uses DefaultMaxItems.
func New(s store.Store, maxItems int, reg *metrics.Registry, logger *logs.Logger) *History {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	if logger == nil {
		logger = logs.Nop()
	}
	return &History{
		store:    s,
		maxItems: maxItems,
		metrics:  reg,
		logger:   logger,
	}
}

// MaxItems returns the list bound.
func (h *History) MaxItems() int { return h.maxItems }

// Add moves identifier to the front, inserting it if needed, and trims
// the list to MaxItems.
func (h *History) Add(identifier string) error {
	if !store.Usable(h.store) {
		return store.ErrUnavailable
	}

	// a corrupt list is replaced rather than blocking new searches
	current, err := h.load()
	corrupt := errors.Is(err, ErrCorrupt)
	if err != nil && !corrupt {
		return err
	}

	next := make([]string, 0, len(current)+1)
	next = append(next, identifier)
	for _, item := range current {
		if item != identifier {
			next = append(next, item)
		}
	}
	if len(next) > h.maxItems {
		next = next[:h.maxItems]
	}

	if err := h.save(next); err != nil {
		return err
	}

	if corrupt {
		h.metrics.Inc(metrics.HistoryCorruptTotal)
		h.logger.Warn().Err(err).Msg("replaced corrupt search history")
	}
	h.metrics.Inc(metrics.HistoryAddsTotal)
	h.logger.Debug().Str("cui", identifier).Msg("added to search history")
	return nil
}

// List returns the identifiers, most recent first. It never returns nil:
// an unusable store or undecodable list yields an empty slice together
// with store.ErrUnavailable or ErrCorrupt.
func (h *History) List() ([]string, error) {
	items, err := h.load()
	if errors.Is(err, ErrCorrupt) {
		h.logger.Warn().Err(err).Msg("search history is corrupt")
	}
	return items, err
}

func (h *History) load() ([]string, error) {
	if !store.Usable(h.store) {
		return []string{}, store.ErrUnavailable
	}

	raw, ok, err := h.store.Get(StorageKey)
	if err != nil {
		return []string{}, fmt.Errorf("history: read: %w", err)
	}
	if !ok {
		return []string{}, nil
	}

	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return []string{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if items == nil {
		items = []string{}
	}
	return items, nil
}

// Remove drops identifier from the list. Removing an identifier that is
// not present leaves the stored list untouched.
func (h *History) Remove(identifier string) error {
	if !store.Usable(h.store) {
		return store.ErrUnavailable
	}

	current, err := h.List()
	if err != nil {
		return err
	}

	next := make([]string, 0, len(current))
	for _, item := range current {
		if item != identifier {
			next = append(next, item)
		}
	}
	if len(next) == len(current) {
		return nil
	}

	if err := h.save(next); err != nil {
		return err
	}

	h.metrics.Inc(metrics.HistoryRemovesTotal)
	h.logger.Debug().Str("cui", identifier).Msg("removed from search history")
	return nil
}

// Clear deletes the persisted list.
func (h *History) Clear() error {
	if !store.Usable(h.store) {
		return store.ErrUnavailable
	}
	if err := h.store.Delete(StorageKey); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	h.logger.Debug().Msg("search history cleared")
	return nil
}

func (h *History) save(items []string) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("history: encode: %w", err)
	}
	if err := h.store.Set(StorageKey, string(raw)); err != nil {
		return fmt.Errorf("history: write: %w", err)
	}
	return nil
}
