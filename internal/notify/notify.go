// Package notify publishes new-listing events for downstream delivery,
// primarily the Telegram bot pipeline.
package notify

import (
	"context"
	"time"

	"github.com/rentradar/rentradar/internal/listing"
)

// Event describes a listing worth telling subscribers about.
type Event struct {
	Source     string    `json:"source"`
	SourceID   string    `json:"source_id"`
	Hash       string    `json:"hash"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	City       string    `json:"city"`
	Price      string    `json:"price"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent builds an Event from a scraped listing.
func NewEvent(l *listing.Listing, at time.Time) Event {
	return Event{
		Source:     l.Source,
		SourceID:   l.SourceID,
		Hash:       l.Hash,
		URL:        l.URL,
		Title:      l.Title,
		City:       l.City,
		Price:      l.Price,
		OccurredAt: at.UTC(),
	}
}

// Publisher delivers listing events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}
