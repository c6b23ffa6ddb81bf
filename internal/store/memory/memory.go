// Package memory implements in-memory stores used in tests and for running
// without a database.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/rentradar/rentradar/internal/listing"
	"github.com/rentradar/rentradar/internal/store"
)

// ListingStore keeps listings in a map keyed by hash. Safe for concurrent
// use.
type ListingStore struct {
	mu       sync.RWMutex
	listings map[string]*listing.Listing

	// UpsertErr, when set, is returned by every Upsert call.
	UpsertErr error
}

// NewListingStore creates an empty in-memory listing store.
func NewListingStore() *ListingStore {
	return &ListingStore{listings: make(map[string]*listing.Listing)}
}

// Upsert stores the listing, reporting whether the hash was new.
func (s *ListingStore) Upsert(_ context.Context, l *listing.Listing) (store.UpsertResult, error) {
	if s.UpsertErr != nil {
		return store.UpsertResult{}, s.UpsertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.listings[l.Hash]
	cp := *l
	s.listings[l.Hash] = &cp
	return store.UpsertResult{Inserted: !exists}, nil
}

// GetByHash fetches one listing.
func (s *ListingStore) GetByHash(_ context.Context, hash string) (*listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

// List returns listings matching the filter, newest first.
func (s *ListingStore) List(_ context.Context, f store.ListingFilter) ([]*listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*listing.Listing
	for _, l := range s.listings {
		if f.Source != "" && l.Source != f.Source {
			continue
		}
		if f.City != "" && !strings.EqualFold(l.City, f.City) {
			continue
		}
		if f.MaxPrice > 0 && (l.PriceNumeric == 0 || l.PriceNumeric > f.MaxPrice) {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ScrapedAt.After(out[j].ScrapedAt)
	})

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SearchCities approximates the database's fuzzy city match with a
// case-insensitive edit distance over the stored city names.
func (s *ListingStore) SearchCities(_ context.Context, name string, limit int) ([]store.CityMatch, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("city name is required")
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, l := range s.listings {
		if l.City != "" {
			counts[l.City]++
		}
	}

	var out []store.CityMatch
	for city, n := range counts {
		d := editDistance(strings.ToLower(city), strings.ToLower(name))
		if d > 3 {
			continue
		}
		out = append(out, store.CityMatch{City: city, Listings: n, Distance: d})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Listings > out[j].Listings
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// Len reports the number of stored listings.
func (s *ListingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listings)
}

// ScanStore keeps scan runs in a slice. Safe for concurrent use.
type ScanStore struct {
	mu     sync.RWMutex
	nextID int64
	runs   map[int64]*store.ScanRun
}

// NewScanStore creates an empty in-memory scan store.
func NewScanStore() *ScanStore {
	return &ScanStore{runs: make(map[int64]*store.ScanRun)}
}

// Create assigns an ID and stores the run.
func (s *ScanStore) Create(_ context.Context, run *store.ScanRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	run.ID = s.nextID
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

// Finish replaces the stored run with its final state.
func (s *ScanStore) Finish(_ context.Context, run *store.ScanRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

// Get fetches one run by ID.
func (s *ScanStore) Get(_ context.Context, id int64) (*store.ScanRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

// List returns the most recent runs, newest first.
func (s *ScanStore) List(_ context.Context, limit int) ([]*store.ScanRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	out := make([]*store.ScanRun, 0, len(s.runs))
	for _, run := range s.runs {
		cp := *run
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
