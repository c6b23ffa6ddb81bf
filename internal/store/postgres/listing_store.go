package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/rentradar/rentradar/internal/listing"
	"github.com/rentradar/rentradar/internal/store"
)

// ListingStore persists listings in the listings table.
type ListingStore struct {
	db DB
}

// NewListingStore creates a listing store on top of an existing pool.
func NewListingStore(db DB) (*ListingStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &ListingStore{db: db}, nil
}

const upsertListingSQL = `
INSERT INTO listings (
	hash, source, source_id, url, title, address, postal_code, city,
	neighborhood, price, price_numeric, price_period, service_costs,
	property_type, interior, offering, living_area, plot_area, rooms,
	bedrooms, energy_label, construction_year, date_available, date_listed,
	balcony, garden, parking, description, images, features,
	latitude, longitude, location, scraped_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
	$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,
	ST_SetSRID(ST_MakePoint($33::float8, $34::float8), 4326)::geography,
	$35
)
ON CONFLICT (hash) DO UPDATE SET
	url = EXCLUDED.url,
	title = EXCLUDED.title,
	address = EXCLUDED.address,
	postal_code = EXCLUDED.postal_code,
	city = EXCLUDED.city,
	neighborhood = EXCLUDED.neighborhood,
	price = EXCLUDED.price,
	price_numeric = EXCLUDED.price_numeric,
	price_period = EXCLUDED.price_period,
	service_costs = EXCLUDED.service_costs,
	property_type = EXCLUDED.property_type,
	interior = EXCLUDED.interior,
	offering = EXCLUDED.offering,
	living_area = EXCLUDED.living_area,
	plot_area = EXCLUDED.plot_area,
	rooms = EXCLUDED.rooms,
	bedrooms = EXCLUDED.bedrooms,
	energy_label = EXCLUDED.energy_label,
	construction_year = EXCLUDED.construction_year,
	date_available = EXCLUDED.date_available,
	date_listed = EXCLUDED.date_listed,
	balcony = EXCLUDED.balcony,
	garden = EXCLUDED.garden,
	parking = EXCLUDED.parking,
	description = EXCLUDED.description,
	images = EXCLUDED.images,
	features = EXCLUDED.features,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	location = EXCLUDED.location,
	scraped_at = EXCLUDED.scraped_at,
	updated_at = now()
RETURNING (xmax = 0) AS inserted`

// Upsert inserts a listing or refreshes the existing row with the same hash.
func (s *ListingStore) Upsert(ctx context.Context, l *listing.Listing) (store.UpsertResult, error) {
	if l == nil {
		return store.UpsertResult{}, fmt.Errorf("listing is required")
	}
	if l.Hash == "" {
		return store.UpsertResult{}, fmt.Errorf("listing hash is required")
	}

	imagesJSON, err := json.Marshal(imagesOrEmpty(l.Images))
	if err != nil {
		return store.UpsertResult{}, fmt.Errorf("marshal images: %w", err)
	}
	featuresJSON, err := json.Marshal(featuresOrEmpty(l.Features))
	if err != nil {
		return store.UpsertResult{}, fmt.Errorf("marshal features: %w", err)
	}

	var lng, lat *float64
	if l.HasCoordinates() {
		lng, lat = &l.Longitude, &l.Latitude
	}

	args := []any{
		l.Hash, l.Source, l.SourceID, l.URL, l.Title, l.Address,
		l.PostalCode, l.City, l.Neighborhood, l.Price, l.PriceNumeric,
		l.PricePeriod, l.ServiceCosts, string(l.PropertyType),
		string(l.Interior), string(l.Offering), l.LivingArea, l.PlotArea,
		l.Rooms, l.Bedrooms, l.EnergyLabel, l.ConstructionYear,
		l.DateAvailable, l.DateListed, l.Balcony, l.Garden, l.Parking,
		l.Description, imagesJSON, featuresJSON, l.Latitude, l.Longitude,
		lng, lat, l.ScrapedAt,
	}

	var inserted bool
	if err := s.db.QueryRow(ctx, upsertListingSQL, args...).Scan(&inserted); err != nil {
		return store.UpsertResult{}, fmt.Errorf("upsert listing: %w", err)
	}
	return store.UpsertResult{Inserted: inserted}, nil
}

const selectListingColumns = `
	hash, source, source_id, url, title, address, postal_code, city,
	neighborhood, price, price_numeric, price_period, service_costs,
	property_type, interior, offering, living_area, plot_area, rooms,
	bedrooms, energy_label, construction_year, date_available, date_listed,
	balcony, garden, parking, description, images, features,
	latitude, longitude, scraped_at`

// GetByHash fetches one listing by its identity hash.
func (s *ListingStore) GetByHash(ctx context.Context, hash string) (*listing.Listing, error) {
	query := "SELECT" + selectListingColumns + " FROM listings WHERE hash = $1"
	row := s.db.QueryRow(ctx, query, hash)
	l, err := scanListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return l, nil
}

// List returns listings matching the filter, newest first.
func (s *ListingStore) List(ctx context.Context, f store.ListingFilter) ([]*listing.Listing, error) {
	var (
		conds []string
		args  []any
	)
	if f.Source != "" {
		args = append(args, f.Source)
		conds = append(conds, fmt.Sprintf("source = $%d", len(args)))
	}
	if f.City != "" {
		args = append(args, f.City)
		conds = append(conds, fmt.Sprintf("lower(city) = lower($%d)", len(args)))
	}
	if f.MaxPrice > 0 {
		args = append(args, f.MaxPrice)
		conds = append(conds, fmt.Sprintf("price_numeric > 0 AND price_numeric <= $%d", len(args)))
	}

	query := "SELECT" + selectListingColumns + " FROM listings"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY scraped_at DESC"

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var out []*listing.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return out, nil
}

const searchCitiesSQL = `
SELECT city, count(*) AS listings, levenshtein(lower(city), lower($1)) AS distance
FROM listings
WHERE city <> ''
  AND (levenshtein(lower(city), lower($1)) <= 3 OR soundex(city) = soundex($1))
GROUP BY city
ORDER BY distance ASC, listings DESC
LIMIT $2`

// SearchCities matches scraped city names against a possibly misspelled
// input, using the fuzzystrmatch extension. Results are ordered by edit
// distance, closest first.
func (s *ListingStore) SearchCities(ctx context.Context, name string, limit int) ([]store.CityMatch, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("city name is required")
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	rows, err := s.db.Query(ctx, searchCitiesSQL, name, limit)
	if err != nil {
		return nil, fmt.Errorf("search cities: %w", err)
	}
	defer rows.Close()

	var out []store.CityMatch
	for rows.Next() {
		var m store.CityMatch
		if err := rows.Scan(&m.City, &m.Listings, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan city match: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search cities: %w", err)
	}
	return out, nil
}

// SetEmbedding stores a description embedding for the listing with the given
// hash. The embedding column only exists when the vector extension is
// installed.
func (s *ListingStore) SetEmbedding(ctx context.Context, hash string, embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("embedding is required")
	}
	tag, err := s.db.Exec(ctx,
		"UPDATE listings SET embedding = $1, updated_at = now() WHERE hash = $2",
		pgvector.NewVector(embedding), hash)
	if err != nil {
		return fmt.Errorf("set embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanListing(row pgx.Row) (*listing.Listing, error) {
	var (
		l            listing.Listing
		imagesJSON   []byte
		featuresJSON []byte
	)
	err := row.Scan(
		&l.Hash, &l.Source, &l.SourceID, &l.URL, &l.Title, &l.Address,
		&l.PostalCode, &l.City, &l.Neighborhood, &l.Price, &l.PriceNumeric,
		&l.PricePeriod, &l.ServiceCosts, &l.PropertyType, &l.Interior,
		&l.Offering, &l.LivingArea, &l.PlotArea, &l.Rooms, &l.Bedrooms,
		&l.EnergyLabel, &l.ConstructionYear, &l.DateAvailable, &l.DateListed,
		&l.Balcony, &l.Garden, &l.Parking, &l.Description, &imagesJSON,
		&featuresJSON, &l.Latitude, &l.Longitude, &l.ScrapedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(imagesJSON) > 0 {
		if err := json.Unmarshal(imagesJSON, &l.Images); err != nil {
			return nil, fmt.Errorf("unmarshal images: %w", err)
		}
	}
	if len(featuresJSON) > 0 {
		if err := json.Unmarshal(featuresJSON, &l.Features); err != nil {
			return nil, fmt.Errorf("unmarshal features: %w", err)
		}
	}
	return &l, nil
}

func imagesOrEmpty(images []string) []string {
	if images == nil {
		return []string{}
	}
	return images
}

func featuresOrEmpty(features []listing.Feature) []listing.Feature {
	if features == nil {
		return []listing.Feature{}
	}
	return features
}
