// Package store defines the persistence interfaces for listings, scan runs
// and the Telegram subscription tables.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rentradar/rentradar/internal/listing"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// UpsertResult reports what the upsert did with a listing row.
type UpsertResult struct {
	// Inserted is true when the row is new, false when an existing row was
	// refreshed.
	Inserted bool
}

// ListingFilter narrows a listing query.
type ListingFilter struct {
	Source string
	City   string
	// MaxPrice filters on the numeric price when > 0.
	MaxPrice int
	Limit    int
	Offset   int
}

// CityMatch is one result of a fuzzy city search.
type CityMatch struct {
	City     string `json:"city"`
	Listings int    `json:"listings"`
	Distance int    `json:"distance"`
}

// ScanRun records one execution of the scan engine.
type ScanRun struct {
	ID         int64      `json:"id"`
	Sources    []string   `json:"sources"`
	Cities     []string   `json:"cities"`
	Status     string     `json:"status"`
	Found      int        `json:"found"`
	New        int        `json:"new"`
	Updated    int        `json:"updated"`
	Failed     int        `json:"failed"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Scan run statuses.
const (
	ScanStatusRunning   = "running"
	ScanStatusCompleted = "completed"
	ScanStatusFailed    = "failed"
)

// ListingStore persists scraped listings.
type ListingStore interface {
	Upsert(ctx context.Context, l *listing.Listing) (UpsertResult, error)
	GetByHash(ctx context.Context, hash string) (*listing.Listing, error)
	List(ctx context.Context, f ListingFilter) ([]*listing.Listing, error)
	SearchCities(ctx context.Context, name string, limit int) ([]CityMatch, error)
}

// ScanStore persists scan run records.
type ScanStore interface {
	Create(ctx context.Context, run *ScanRun) error
	Finish(ctx context.Context, run *ScanRun) error
	Get(ctx context.Context, id int64) (*ScanRun, error)
	List(ctx context.Context, limit int) ([]*ScanRun, error)
}
