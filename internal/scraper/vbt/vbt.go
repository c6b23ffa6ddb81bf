// Package vbt scrapes the vb&t Verhuurmakelaars JSON API.
package vbt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/rentradar/rentradar/internal/listing"
	"github.com/rentradar/rentradar/internal/scraper"
)

// SourceName is the canonical registry name.
const SourceName = "vbt"

const (
	apiBase  = "https://api.vbtverhuurmakelaars.nl/properties"
	siteBase = "https://www.vbtverhuurmakelaars.nl"
	pageSize = 20
)

var detailIDPattern = regexp.MustCompile(`/woning/[^/]+-([^/]+)/?$`)

func init() {
	scraper.Register(SourceName, func() scraper.Source { return &Source{} })
}

// Source implements scraper.Source for the vb&t API.
type Source struct{}

// Name returns the registry name.
func (s *Source) Name() string { return SourceName }

// SearchURL builds the API URL for one search page, newest listings first.
func (s *Source) SearchURL(_ context.Context, q scraper.SearchQuery) (string, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	params := url.Values{}
	if q.City != "" {
		params.Set("city", strings.ReplaceAll(strings.ToLower(q.City), " ", "-"))
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(pageSize))
	params.Set("sort", "newest")
	return apiBase + "?" + params.Encode(), nil
}

// apiHouse mirrors the subset of the vb&t payload the scraper consumes.
type apiHouse struct {
	ID                json.Number    `json:"id"`
	SourceID          json.Number    `json:"sourceId"`
	URL               string         `json:"url"`
	IsBouwinvest      bool           `json:"isBouwinvest"`
	Plot              float64        `json:"plot"`
	Rooms             float64        `json:"rooms"`
	InterestedParties float64        `json:"interestedParties"`
	Image             string         `json:"image"`
	Coordinate        []float64      `json:"coordinate"`
	Address           *apiAddress    `json:"address"`
	Prices            *apiPrices     `json:"prices"`
	Attributes        *apiAttributes `json:"attributes"`
	Status            *apiStatus     `json:"status"`
	USPs              []apiUSP       `json:"usps"`
	Source            *apiSource     `json:"source"`
}

type apiAddress struct {
	City  string `json:"city"`
	House string `json:"house"`
}

type apiPrices struct {
	Rental                *apiRental `json:"rental"`
	WOZ                   *apiWOZ    `json:"woz"`
	RentalPoints          float64    `json:"rentalpoints"`
	ParkingCharges        float64    `json:"parkingCharges"`
	ParkingServiceCharges float64    `json:"parkingServiceCharges"`
}

type apiRental struct {
	Price           float64 `json:"price"`
	ServiceCharges  float64 `json:"serviceCharges"`
	SecurityDeposit float64 `json:"securityDeposit"`
	MinMonths       float64 `json:"minMonths"`
}

type apiWOZ struct {
	Value   float64 `json:"value"`
	RefDate string  `json:"refdate"`
}

type apiAttributes struct {
	Type *apiTypeInfo `json:"type"`
}

type apiTypeInfo struct {
	Category  string `json:"category"`
	BuildType string `json:"buildType"`
}

type apiStatus struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type apiUSP struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiSource struct {
	ExternalLink string `json:"externalLink"`
	LastImported string `json:"lastImported"`
}

type searchPayload struct {
	Houses []apiHouse `json:"houses"`
}

type detailPayload struct {
	House *apiHouse `json:"house"`
}

// ParseSearch extracts listings from a search page payload. Entries with
// category "other", unavailable status, or the Bouwinvest flag are skipped.
func (s *Source) ParseSearch(_ context.Context, payload []byte) ([]listing.Listing, error) {
	var page searchPayload
	if err := json.Unmarshal(payload, &page); err != nil {
		return nil, fmt.Errorf("decode vbt search payload: %w", err)
	}
	listings := make([]listing.Listing, 0, len(page.Houses))
	for i := range page.Houses {
		house := &page.Houses[i]
		if skipHouse(house) {
			continue
		}
		listings = append(listings, s.buildListing(house))
	}
	return listings, nil
}

// ParseDetail extracts one listing from a detail payload. Detail responses
// wrap a single house object; non-JSON bodies fall back to a stub listing
// with the source ID mined from the URL.
func (s *Source) ParseDetail(ctx context.Context, payload []byte, pageURL string) (listing.Listing, error) {
	var detail detailPayload
	if err := json.Unmarshal(payload, &detail); err == nil && detail.House != nil {
		if !skipHouse(detail.House) {
			return s.buildListing(detail.House), nil
		}
	}

	stub := listing.Listing{
		Source:   "vb&t",
		URL:      pageURL,
		Offering: listing.OfferingRental,
	}
	if m := detailIDPattern.FindStringSubmatch(pageURL); m != nil {
		stub.SourceID = m[1]
	}
	stub.Hash = stub.IdentityHash()
	return stub, nil
}

func skipHouse(house *apiHouse) bool {
	if house.Attributes != nil && house.Attributes.Type != nil && house.Attributes.Type.Category == "other" {
		return true
	}
	if house.Status == nil || house.Status.Name != "available" {
		return true
	}
	return house.IsBouwinvest
}

func (s *Source) buildListing(house *apiHouse) listing.Listing {
	l := listing.Listing{
		Source:   "vb&t",
		Offering: listing.OfferingRental,
	}

	if id := house.ID.String(); id != "" {
		l.SourceID = id
	} else if id := house.SourceID.String(); id != "" {
		l.SourceID = id
	}
	if house.URL != "" {
		l.URL = absolutize(house.URL)
	}
	if house.Address != nil {
		l.City = strings.ToUpper(house.Address.City)
		l.Address = house.Address.House
		l.Title = house.Address.House
	}

	s.extractPrices(house, &l)

	if house.Attributes != nil && house.Attributes.Type != nil {
		l.PropertyType = mapPropertyType(house.Attributes.Type.Category)
		if house.Attributes.Type.BuildType != "" {
			l.AddFeature("build_type", house.Attributes.Type.BuildType)
		}
	} else {
		l.PropertyType = listing.PropertyApartment
	}

	if house.Plot > 0 {
		l.LivingArea = int(house.Plot)
	}
	if house.Rooms > 0 {
		l.Rooms = int(house.Rooms)
	}
	if house.InterestedParties > 0 {
		l.AddFeature("interested_parties", int(house.InterestedParties))
	}
	if house.Status != nil {
		if house.Status.Name != "" {
			l.AddFeature("status", house.Status.Name)
		}
		if house.Status.Code != "" {
			l.AddFeature("status_code", house.Status.Code)
		}
	}
	for i, usp := range house.USPs {
		if usp.Text == "" {
			continue
		}
		kind := usp.Type
		if kind == "" {
			kind = "usp"
		}
		l.AddFeature(fmt.Sprintf("%s_%d", kind, i+1), usp.Text)
	}
	// The API emits [longitude, latitude].
	if len(house.Coordinate) >= 2 {
		l.Longitude = house.Coordinate[0]
		l.Latitude = house.Coordinate[1]
	}
	if house.Image != "" {
		l.Images = []string{absolutize(house.Image)}
	}
	if house.Source != nil {
		if house.Source.ExternalLink != "" {
			l.AddFeature("external_link", house.Source.ExternalLink)
		}
		if imported := scraper.NormalizeISODate(house.Source.LastImported); imported != "" {
			l.AddFeature("last_imported", imported)
		}
	}

	l.Hash = l.IdentityHash()
	return l
}

func (s *Source) extractPrices(house *apiHouse, l *listing.Listing) {
	if house.Prices == nil {
		return
	}
	prices := house.Prices
	if rental := prices.Rental; rental != nil {
		if rental.Price > 0 {
			l.PriceNumeric = int(rental.Price)
			l.Price = fmt.Sprintf("€ %d per month", l.PriceNumeric)
			l.PricePeriod = "month"
		}
		if rental.ServiceCharges > 0 {
			l.ServiceCosts = float64(int(rental.ServiceCharges))
		}
		if rental.SecurityDeposit > 0 {
			l.AddFeature("security_deposit", int(rental.SecurityDeposit))
		}
		if rental.MinMonths > 0 {
			l.AddFeature("min_rental_months", int(rental.MinMonths))
		}
	}
	if woz := prices.WOZ; woz != nil {
		if woz.Value > 0 {
			l.AddFeature("woz_value", int(woz.Value))
		}
		if refDate := scraper.NormalizeISODate(woz.RefDate); refDate != "" {
			l.AddFeature("woz_date", refDate)
		}
	}
	if prices.RentalPoints > 0 {
		l.AddFeature("rental_points", int(prices.RentalPoints))
	}
	if prices.ParkingCharges > 0 {
		l.AddFeature("parking_charges", int(prices.ParkingCharges))
	}
	if prices.ParkingServiceCharges > 0 {
		l.AddFeature("parking_service_charges", int(prices.ParkingServiceCharges))
	}
}

func mapPropertyType(category string) listing.PropertyType {
	switch strings.ToLower(category) {
	case "apartment":
		return listing.PropertyApartment
	case "studio":
		return listing.PropertyStudio
	case "house", "family_house":
		return listing.PropertyHouse
	case "room":
		return listing.PropertyRoom
	default:
		return listing.PropertyApartment
	}
}

func absolutize(path string) string {
	if strings.HasPrefix(path, "/") {
		return siteBase + path
	}
	return path
}
