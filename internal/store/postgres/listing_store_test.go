package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/rentradar/rentradar/internal/listing"
	"github.com/rentradar/rentradar/internal/store"
)

func newTestListingStore(t *testing.T) (*ListingStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s, err := NewListingStore(mock)
	require.NoError(t, err)
	return s, mock
}

func sampleListing() *listing.Listing {
	l := &listing.Listing{
		Source:       "vbt",
		SourceID:     "12345",
		URL:          "https://www.vbtverhuurmakelaars.nl/woning/den-haag-12345",
		Title:        "Spuistraat 10",
		Address:      "Spuistraat 10",
		PostalCode:   "2511BD",
		City:         "Den Haag",
		Price:        "€ 1.450 per maand",
		PriceNumeric: 1450,
		PricePeriod:  "month",
		PropertyType: listing.PropertyApartment,
		LivingArea:   62,
		Rooms:        3,
		Latitude:     52.077,
		Longitude:    4.312,
		ScrapedAt:    time.Unix(1756500000, 0).UTC(),
	}
	l.Finalize(l.ScrapedAt)
	return l
}

func TestUpsertReportsInserted(t *testing.T) {
	t.Parallel()

	s, mock := newTestListingStore(t)
	l := sampleListing()

	mock.ExpectQuery("INSERT INTO listings").
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(true))

	res, err := s.Upsert(context.Background(), l)
	require.NoError(t, err)
	require.True(t, res.Inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertReportsUpdated(t *testing.T) {
	t.Parallel()

	s, mock := newTestListingStore(t)

	mock.ExpectQuery("INSERT INTO listings").
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(false))

	res, err := s.Upsert(context.Background(), sampleListing())
	require.NoError(t, err)
	require.False(t, res.Inserted)
}

func TestUpsertRequiresHash(t *testing.T) {
	t.Parallel()

	s, _ := newTestListingStore(t)

	_, err := s.Upsert(context.Background(), &listing.Listing{Source: "vbt"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "hash")
}

func listingRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"hash", "source", "source_id", "url", "title", "address",
		"postal_code", "city", "neighborhood", "price", "price_numeric",
		"price_period", "service_costs", "property_type", "interior",
		"offering", "living_area", "plot_area", "rooms", "bedrooms",
		"energy_label", "construction_year", "date_available", "date_listed",
		"balcony", "garden", "parking", "description", "images", "features",
		"latitude", "longitude", "scraped_at",
	})
}

func addListingRow(rows *pgxmock.Rows, l *listing.Listing) *pgxmock.Rows {
	return rows.AddRow(
		l.Hash, l.Source, l.SourceID, l.URL, l.Title, l.Address,
		l.PostalCode, l.City, l.Neighborhood, l.Price, l.PriceNumeric,
		l.PricePeriod, l.ServiceCosts, string(l.PropertyType),
		string(l.Interior), string(l.Offering), l.LivingArea, l.PlotArea,
		l.Rooms, l.Bedrooms, l.EnergyLabel, l.ConstructionYear,
		l.DateAvailable, l.DateListed, l.Balcony, l.Garden, l.Parking,
		l.Description, []byte(`["https://img.example/1.jpg"]`),
		[]byte(`[{"name":"wozValue","value":285000}]`),
		l.Latitude, l.Longitude, l.ScrapedAt,
	)
}

func TestGetByHashReturnsListing(t *testing.T) {
	t.Parallel()

	s, mock := newTestListingStore(t)
	want := sampleListing()

	mock.ExpectQuery("FROM listings WHERE hash").
		WithArgs(want.Hash).
		WillReturnRows(addListingRow(listingRows(), want))

	got, err := s.GetByHash(context.Background(), want.Hash)
	require.NoError(t, err)
	require.Equal(t, want.Hash, got.Hash)
	require.Equal(t, want.City, got.City)
	require.Equal(t, want.PriceNumeric, got.PriceNumeric)
	require.Equal(t, []string{"https://img.example/1.jpg"}, got.Images)
	require.Len(t, got.Features, 1)
	require.Equal(t, "wozValue", got.Features[0].Name)
}

func TestGetByHashNotFound(t *testing.T) {
	t.Parallel()

	s, mock := newTestListingStore(t)

	mock.ExpectQuery("FROM listings WHERE hash").
		WithArgs("deadbeef").
		WillReturnRows(listingRows())

	_, err := s.GetByHash(context.Background(), "deadbeef")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListAppliesFilters(t *testing.T) {
	t.Parallel()

	s, mock := newTestListingStore(t)
	want := sampleListing()

	mock.ExpectQuery("FROM listings WHERE source").
		WithArgs("vbt", "den haag", 1500, 100).
		WillReturnRows(addListingRow(listingRows(), want))

	got, err := s.List(context.Background(), store.ListingFilter{
		Source:   "vbt",
		City:     "den haag",
		MaxPrice: 1500,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, want.Hash, got[0].Hash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchCitiesOrdersByDistance(t *testing.T) {
	t.Parallel()

	s, mock := newTestListingStore(t)

	mock.ExpectQuery("levenshtein").
		WithArgs("den hag", 10).
		WillReturnRows(pgxmock.NewRows([]string{"city", "listings", "distance"}).
			AddRow("Den Haag", 42, 1).
			AddRow("Den Helder", 3, 3))

	got, err := s.SearchCities(context.Background(), "den hag", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, store.CityMatch{City: "Den Haag", Listings: 42, Distance: 1}, got[0])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchCitiesRequiresName(t *testing.T) {
	t.Parallel()

	s, _ := newTestListingStore(t)

	_, err := s.SearchCities(context.Background(), "  ", 5)
	require.Error(t, err)
}

func TestSetEmbeddingNotFound(t *testing.T) {
	t.Parallel()

	s, mock := newTestListingStore(t)

	mock.ExpectExec("UPDATE listings SET embedding").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.SetEmbedding(context.Background(), "deadbeef", []float32{0.1, 0.2})
	require.ErrorIs(t, err, store.ErrNotFound)
}
