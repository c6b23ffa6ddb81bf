// Package listing defines the property listing model shared across subsystems.
package listing

import (
	"crypto/md5"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PropertyType classifies the dwelling kind of a listing.
type PropertyType string

// Property type values persisted in the listing store.
const (
	PropertyApartment PropertyType = "apartment"
	PropertyHouse     PropertyType = "house"
	PropertyStudio    PropertyType = "studio"
	PropertyRoom      PropertyType = "room"
)

// InteriorType describes how the property is delivered to the tenant.
type InteriorType string

// Interior values, mirroring the Dutch rental market conventions
// (gemeubileerd, gestoffeerd, kaal).
const (
	InteriorFurnished   InteriorType = "furnished"
	InteriorUpholstered InteriorType = "upholstered"
	InteriorShell       InteriorType = "shell"
)

// OfferingType distinguishes rentals from sales.
type OfferingType string

// Offering values.
const (
	OfferingRental OfferingType = "rental"
	OfferingSale   OfferingType = "sale"
)

// Feature is a single named attribute extracted from a source that has no
// dedicated column (WOZ value, rental points, heating type, ...).
type Feature struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Listing is the normalized representation of one rental property as
// extracted from a source portal.
type Listing struct {
	Source       string       `json:"source"`
	SourceID     string       `json:"source_id,omitempty"`
	URL          string       `json:"url,omitempty"`
	Title        string       `json:"title,omitempty"`
	Address      string       `json:"address,omitempty"`
	PostalCode   string       `json:"postal_code,omitempty"`
	City         string       `json:"city,omitempty"`
	Neighborhood string       `json:"neighborhood,omitempty"`
	Price        string       `json:"price,omitempty"`
	PriceNumeric int          `json:"price_numeric,omitempty"`
	PricePeriod  string       `json:"price_period,omitempty"`
	ServiceCosts float64      `json:"service_costs,omitempty"`
	PropertyType PropertyType `json:"property_type,omitempty"`
	Interior     InteriorType `json:"interior,omitempty"`
	Offering     OfferingType `json:"offering_type,omitempty"`

	LivingArea       int    `json:"living_area,omitempty"`
	PlotArea         int    `json:"plot_area,omitempty"`
	Rooms            int    `json:"rooms,omitempty"`
	Bedrooms         int    `json:"bedrooms,omitempty"`
	EnergyLabel      string `json:"energy_label,omitempty"`
	ConstructionYear int    `json:"construction_year,omitempty"`

	DateAvailable string `json:"date_available,omitempty"`
	DateListed    string `json:"date_listed,omitempty"`

	Balcony bool `json:"balcony,omitempty"`
	Garden  bool `json:"garden,omitempty"`
	Parking bool `json:"parking,omitempty"`

	Description string    `json:"description,omitempty"`
	Images      []string  `json:"images,omitempty"`
	Features    []Feature `json:"features,omitempty"`

	// Latitude/Longitude feed the PostGIS location column when both are set.
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`

	// Embedding is a description embedding filled by the enrichment pipeline,
	// never by the scanner itself.
	Embedding []float32 `json:"-"`

	// Hash is the identity hash used for deduplication and upserts.
	Hash string `json:"hash"`

	ScrapedAt time.Time `json:"scraped_at,omitempty"`
}

// AddFeature appends a named feature to the listing's feature bag.
func (l *Listing) AddFeature(name string, value any) {
	l.Features = append(l.Features, Feature{Name: name, Value: value})
}

// HasCoordinates reports whether both latitude and longitude are set.
func (l *Listing) HasCoordinates() bool {
	return l.Latitude != 0 || l.Longitude != 0
}

// IdentityHash computes the stable identity of a listing from every
// available identifier. A listing with no identifiers at all gets a random
// identity so it is never silently merged with another one.
func (l *Listing) IdentityHash() string {
	identifiers := make([]string, 0, 8)
	if l.URL != "" {
		identifiers = append(identifiers, l.URL)
	}
	if l.SourceID != "" {
		identifiers = append(identifiers, l.SourceID)
	}
	if l.Title != "" {
		identifiers = append(identifiers, l.Title)
	}
	if l.Address != "" {
		identifiers = append(identifiers, l.Address)
	}
	if l.PostalCode != "" {
		identifiers = append(identifiers, l.PostalCode)
	}
	if l.City != "" {
		identifiers = append(identifiers, l.City)
	}
	if l.LivingArea > 0 {
		identifiers = append(identifiers, fmt.Sprintf("area:%d", l.LivingArea))
	}
	if l.PriceNumeric > 0 {
		identifiers = append(identifiers, fmt.Sprintf("price:%d", l.PriceNumeric))
	}
	if len(identifiers) == 0 {
		identifiers = append(identifiers, uuid.NewString())
	}
	sum := md5.Sum([]byte(strings.Join(identifiers, "|")))
	return fmt.Sprintf("%x", sum)
}

// Finalize stamps the identity hash and scrape time if they are unset.
func (l *Listing) Finalize(now time.Time) {
	if l.Hash == "" {
		l.Hash = l.IdentityHash()
	}
	if l.ScrapedAt.IsZero() {
		l.ScrapedAt = now
	}
}
