package vbt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rentradar/rentradar/internal/listing"
	"github.com/rentradar/rentradar/internal/scraper"
)

const searchFixture = `{
  "houses": [
    {
      "id": 4711,
      "url": "/woning/leiden-breestraat-12-4711",
      "isBouwinvest": false,
      "plot": 64,
      "rooms": 3,
      "interestedParties": 12,
      "image": "/media/4711/front.jpg",
      "coordinate": [4.4931, 52.1601],
      "address": {"city": "Leiden", "house": "Breestraat 12"},
      "prices": {
        "rental": {"price": 1450.0, "serviceCharges": 75.0, "securityDeposit": 2900.0, "minMonths": 12},
        "woz": {"value": 310000, "refdate": "2024-01-01T00:00:00.000Z"},
        "rentalpoints": 152
      },
      "attributes": {"type": {"category": "apartment", "buildType": "existing"}},
      "status": {"name": "available", "code": "AV"},
      "usps": [{"type": "usp", "text": "Close to the station"}],
      "source": {"lastImported": "2025-06-01T04:00:00.000Z"}
    },
    {
      "id": 4712,
      "status": {"name": "rented"},
      "address": {"city": "Leiden", "house": "Haarlemmerstraat 1"}
    },
    {
      "id": 4713,
      "status": {"name": "available"},
      "attributes": {"type": {"category": "other"}},
      "address": {"city": "Leiden", "house": "Stationsweg 9"}
    },
    {
      "id": 4714,
      "isBouwinvest": true,
      "status": {"name": "available"},
      "address": {"city": "Leiden", "house": "Rijnkade 3"}
    }
  ]
}`

func TestSearchURL(t *testing.T) {
	t.Parallel()

	src := &Source{}
	got, err := src.SearchURL(context.Background(), scraper.SearchQuery{City: "Den Haag", Page: 2})
	require.NoError(t, err)
	require.Equal(t, "https://api.vbtverhuurmakelaars.nl/properties?city=den-haag&limit=20&page=2&sort=newest", got)
}

func TestParseSearchFiltersAndMaps(t *testing.T) {
	t.Parallel()

	src := &Source{}
	listings, err := src.ParseSearch(context.Background(), []byte(searchFixture))
	require.NoError(t, err)
	require.Len(t, listings, 1, "rented, category-other and Bouwinvest entries are skipped")

	l := listings[0]
	require.Equal(t, "vb&t", l.Source)
	require.Equal(t, "4711", l.SourceID)
	require.Equal(t, "https://www.vbtverhuurmakelaars.nl/woning/leiden-breestraat-12-4711", l.URL)
	require.Equal(t, "LEIDEN", l.City)
	require.Equal(t, "Breestraat 12", l.Address)
	require.Equal(t, 1450, l.PriceNumeric)
	require.Equal(t, "€ 1450 per month", l.Price)
	require.Equal(t, "month", l.PricePeriod)
	require.Equal(t, 75.0, l.ServiceCosts)
	require.Equal(t, listing.PropertyApartment, l.PropertyType)
	require.Equal(t, listing.OfferingRental, l.Offering)
	require.Equal(t, 64, l.LivingArea)
	require.Equal(t, 3, l.Rooms)
	require.Equal(t, 52.1601, l.Latitude)
	require.Equal(t, 4.4931, l.Longitude)
	require.Equal(t, []string{"https://www.vbtverhuurmakelaars.nl/media/4711/front.jpg"}, l.Images)
	require.NotEmpty(t, l.Hash)

	features := map[string]any{}
	for _, f := range l.Features {
		features[f.Name] = f.Value
	}
	require.Equal(t, 2900, features["security_deposit"])
	require.Equal(t, 12, features["min_rental_months"])
	require.Equal(t, 310000, features["woz_value"])
	require.Equal(t, "2024-01-01", features["woz_date"])
	require.Equal(t, 152, features["rental_points"])
	require.Equal(t, "Close to the station", features["usp_1"])
	require.Equal(t, "2025-06-01", features["last_imported"])
}

func TestParseSearchRejectsGarbage(t *testing.T) {
	t.Parallel()

	src := &Source{}
	_, err := src.ParseSearch(context.Background(), []byte("<html>not json</html>"))
	require.Error(t, err)
}

func TestParseDetailWrappedHouse(t *testing.T) {
	t.Parallel()

	payload := `{"house": {
		"id": 99,
		"url": "/woning/leiden-x-99",
		"status": {"name": "available"},
		"address": {"city": "Leiden", "house": "Hooigracht 5"},
		"prices": {"rental": {"price": 900}}
	}}`
	src := &Source{}
	got, err := src.ParseDetail(context.Background(), []byte(payload), "https://www.vbtverhuurmakelaars.nl/woning/leiden-x-99")
	require.NoError(t, err)
	require.Equal(t, "99", got.SourceID)
	require.Equal(t, 900, got.PriceNumeric)
}

func TestParseDetailFallsBackToURL(t *testing.T) {
	t.Parallel()

	src := &Source{}
	got, err := src.ParseDetail(context.Background(), []byte("<html></html>"), "https://www.vbtverhuurmakelaars.nl/woning/leiden-breestraat-12-4711")
	require.NoError(t, err)
	require.Equal(t, "4711", got.SourceID)
	require.NotEmpty(t, got.Hash)
}

func TestSourceIsRegistered(t *testing.T) {
	t.Parallel()

	src, err := scraper.New(SourceName)
	require.NoError(t, err)
	require.Equal(t, SourceName, src.Name())
}
