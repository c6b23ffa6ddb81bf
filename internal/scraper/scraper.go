// Package scraper defines the source strategy interface and the registry of
// supported listing portals.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rentradar/rentradar/internal/listing"
)

// ErrSourceUnknown is returned when a requested source name has no registered
// constructor.
var ErrSourceUnknown = errors.New("unknown scraper source")

// SearchQuery captures one page of a city search against a portal.
type SearchQuery struct {
	City string
	Page int
}

// Source is implemented once per listing portal.
type Source interface {
	// Name returns the canonical source name used in flags and storage.
	Name() string

	// SearchURL builds the URL for one search page.
	SearchURL(ctx context.Context, q SearchQuery) (string, error)

	// ParseSearch extracts listings from a search page payload.
	ParseSearch(ctx context.Context, payload []byte) ([]listing.Listing, error)

	// ParseDetail extracts a single listing from a detail page. The URL is
	// passed so sources can fall back to mining identifiers from it.
	ParseDetail(ctx context.Context, payload []byte, url string) (listing.Listing, error)
}

// Constructor builds a Source.
type Constructor func() Source

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Constructor)
)

// Register adds a source constructor under its canonical name. Sources call
// this from init.
func Register(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = ctor
}

// New instantiates the named source.
func New(name string) (Source, error) {
	registryMu.RLock()
	ctor, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSourceUnknown, name)
	}
	return ctor(), nil
}

// Names lists registered source names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
