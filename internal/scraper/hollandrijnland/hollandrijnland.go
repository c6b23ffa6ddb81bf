// Package hollandrijnland scrapes the Huren in Holland Rijnland housing
// portal JSON API.
package hollandrijnland

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rentradar/rentradar/internal/listing"
	"github.com/rentradar/rentradar/internal/scraper"
)

// SourceName is the canonical registry name.
const SourceName = "hollandrijnland"

const (
	apiBase  = "https://api.housing-portal.nl/properties"
	siteBase = "https://hureninhollandrijnland.nl"
	pageSize = 20
)

var (
	energyLabelPattern = regexp.MustCompile(`(?i)Energielabel\s+([A-G](?:\+{1,4})?)`)
	bareLabelPattern   = regexp.MustCompile(`^[A-G](\+{1,4})?$`)
	detailKeyPattern   = regexp.MustCompile(`/details/([^/]+)`)
	detailIDPattern    = regexp.MustCompile(`^(\d+)-`)
)

func init() {
	scraper.Register(SourceName, func() scraper.Source {
		return &Source{now: time.Now}
	})
}

// Source implements scraper.Source for the portal API.
type Source struct {
	now func() time.Time
}

// Name returns the registry name.
func (s *Source) Name() string { return SourceName }

// SearchURL builds the API URL for one search page.
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
	return apiBase + "?" + params.Encode(), nil
}

type searchPayload struct {
	Data []json.RawMessage `json:"data"`
}

type detailEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiItem models the portal's property payload. Dutch field names are kept
// as the API emits them.
type apiItem struct {
	ID                  json.Number      `json:"id"`
	URLKey              string           `json:"urlKey"`
	Street              string           `json:"street"`
	HouseNumber         string           `json:"houseNumber"`
	HouseNumberAddition string           `json:"houseNumberAddition"`
	PostalCode          string           `json:"postalcode"`
	City                *namedEntity     `json:"city"`
	GemeenteNaam        string           `json:"gemeenteGeoLocatieNaam"`
	Quarter             *namedEntity     `json:"quarter"`
	TotalRent           float64          `json:"totalRent"`
	ServiceCosts        float64          `json:"serviceCosts"`
	DwellingType        *dwellingType    `json:"dwellingType"`
	AreaDwelling        float64          `json:"areaDwelling"`
	AreaPerceel         float64          `json:"areaPerceel"`
	SleepingRoom        *sleepingRoom    `json:"sleepingRoom"`
	AreaSleepingRoom    string           `json:"areaSleepingRoom"`
	EnergyLabel         *localizedNaam   `json:"energyLabel"`
	ConstructionYear    flexInt          `json:"constructionYear"`
	AvailableFromDate   string           `json:"availableFromDate"`
	AvailableFrom       string           `json:"availableFrom"`
	PublicationDate     string           `json:"publicationDate"`
	Balcony             int              `json:"balcony"`
	Tuin                int              `json:"tuin"`
	StorageRoom         int              `json:"storageRoom"`
	Infoveld            string           `json:"infoveld"`
	Pictures            []picture        `json:"pictures"`
	Floor               *floorInfo       `json:"floor"`
	Heating             *localizedName   `json:"heating"`
	Voorzieningen       []localizedName  `json:"specifiekeVoorzieningen"`
	ServiceComponenten  []localizedNaam  `json:"servicecomponentenBinnenServicekosten"`
	MinimumIncome       float64          `json:"minimumIncome"`
	MinimumAge          int              `json:"minimumAge"`
	MaximumHousehold    int              `json:"maximumHouseholdSize"`
	Latitude            float64          `json:"latitude"`
	Longitude           float64          `json:"longitude"`
	ActionLabel         *actionLabelInfo `json:"actionLabel"`
}

type namedEntity struct {
	Name string `json:"name"`
}

type dwellingType struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	LocalizedName string `json:"localizedName"`
}

type sleepingRoom struct {
	AmountOfRooms flexInt `json:"amountOfRooms"`
}

// flexInt tolerates the portal emitting counts as numbers or quoted strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(v)
	return nil
}

type localizedName struct {
	LocalizedName string `json:"localizedName"`
}

type localizedNaam struct {
	LocalizedNaam string `json:"localizedNaam"`
}

type picture struct {
	URI string `json:"uri"`
}

type floorInfo struct {
	Verdieping string `json:"verdieping"`
}

type actionLabelInfo struct {
	LocalizedLabel string `json:"localizedLabel"`
}

// ParseSearch extracts listings from the portal's data array. Entries mapped
// to no property type (parking spots) are dropped.
func (s *Source) ParseSearch(_ context.Context, payload []byte) ([]listing.Listing, error) {
	var page searchPayload
	if err := json.Unmarshal(payload, &page); err != nil {
		return nil, fmt.Errorf("decode portal search payload: %w", err)
	}
	listings := make([]listing.Listing, 0, len(page.Data))
	for _, raw := range page.Data {
		var item apiItem
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		l, ok := s.buildListing(&item)
		if !ok {
			continue
		}
		listings = append(listings, l)
	}
	return listings, nil
}

// ParseDetail extracts one listing from a detail payload, which may wrap the
// item as a single object or a one-element array. Non-JSON bodies fall back
// to a stub with the source ID mined from the URL key.
func (s *Source) ParseDetail(_ context.Context, payload []byte, pageURL string) (listing.Listing, error) {
	var envelope detailEnvelope
	if err := json.Unmarshal(payload, &envelope); err == nil && len(envelope.Data) > 0 {
		if l, ok := s.parseDetailData(envelope.Data); ok {
			return l, nil
		}
	}

	stub := listing.Listing{
		Source:   "HollandRijnland",
		URL:      pageURL,
		Offering: listing.OfferingRental,
	}
	if m := detailKeyPattern.FindStringSubmatch(pageURL); m != nil {
		if idMatch := detailIDPattern.FindStringSubmatch(m[1]); idMatch != nil {
			stub.SourceID = idMatch[1]
		}
	}
	stub.Hash = stub.IdentityHash()
	return stub, nil
}

func (s *Source) parseDetailData(data json.RawMessage) (listing.Listing, bool) {
	var single apiItem
	if err := json.Unmarshal(data, &single); err == nil {
		if l, ok := s.buildListing(&single); ok {
			return l, true
		}
	}
	var many []apiItem
	if err := json.Unmarshal(data, &many); err == nil && len(many) > 0 {
		if l, ok := s.buildListing(&many[0]); ok {
			return l, true
		}
	}
	return listing.Listing{}, false
}

func (s *Source) buildListing(item *apiItem) (listing.Listing, bool) {
	propertyType, ok := mapDwellingType(item.DwellingType)
	if !ok {
		return listing.Listing{}, false
	}

	l := listing.Listing{
		Source:       "HollandRijnland",
		PropertyType: propertyType,
		Offering:     listing.OfferingRental,
	}

	if id := item.ID.String(); id != "" {
		l.SourceID = id
		if item.URLKey != "" {
			l.URL = fmt.Sprintf("%s/woningaanbod/details/%s", siteBase, item.URLKey)
		}
	}

	l.Address = joinAddress(item.Street, item.HouseNumber, item.HouseNumberAddition)
	l.PostalCode = item.PostalCode
	switch {
	case item.City != nil && item.City.Name != "":
		l.City = strings.ToUpper(item.City.Name)
	case item.GemeenteNaam != "":
		l.City = strings.ToUpper(item.GemeenteNaam)
	}
	if item.Quarter != nil {
		l.Neighborhood = item.Quarter.Name
	}

	if item.TotalRent > 0 {
		l.PriceNumeric = int(item.TotalRent)
		l.Price = fmt.Sprintf("€ %d", l.PriceNumeric)
		l.PricePeriod = "month"
	}
	if item.ServiceCosts > 0 {
		l.ServiceCosts = item.ServiceCosts
	}

	if item.DwellingType != nil && l.Address != "" {
		l.Title = strings.TrimSpace(item.DwellingType.LocalizedName + " " + l.Address)
	}

	if item.AreaDwelling > 0 {
		l.LivingArea = int(item.AreaDwelling)
	}
	if item.AreaPerceel > 0 {
		l.PlotArea = int(item.AreaPerceel)
	}

	if bedrooms, ok := extractBedrooms(item.SleepingRoom, item.AreaSleepingRoom); ok {
		l.Bedrooms = bedrooms
		// Count the living room as well.
		l.Rooms = bedrooms + 1
	}

	if item.EnergyLabel != nil {
		l.EnergyLabel = extractEnergyLabel(item.EnergyLabel.LocalizedNaam)
	}
	if item.ConstructionYear > 0 {
		l.ConstructionYear = int(item.ConstructionYear)
	}

	l.DateAvailable = scraper.ParseAvailability(item.AvailableFromDate, item.AvailableFrom, s.now())
	l.DateListed = scraper.NormalizeISODate(item.PublicationDate)

	l.Balcony = item.Balcony == 1
	l.Garden = item.Tuin == 1
	l.Parking = item.StorageRoom == 1

	if item.Infoveld != "" {
		l.Description = item.Infoveld
		l.Interior = mapInterior(item.Infoveld)
	}

	for _, pic := range item.Pictures {
		if pic.URI == "" {
			continue
		}
		l.Images = append(l.Images, absolutize(pic.URI))
	}

	s.extractFeatures(item, &l)

	l.Hash = l.IdentityHash()
	return l, true
}

func (s *Source) extractFeatures(item *apiItem, l *listing.Listing) {
	if item.StorageRoom != 0 {
		l.AddFeature("storage", item.StorageRoom == 1)
	}
	if item.Floor != nil && item.Floor.Verdieping != "" {
		l.AddFeature("floor", item.Floor.Verdieping)
	}
	if item.Heating != nil && item.Heating.LocalizedName != "" {
		l.AddFeature("heating_type", item.Heating.LocalizedName)
	}
	for _, v := range item.Voorzieningen {
		if v.LocalizedName != "" {
			l.AddFeature("facility", v.LocalizedName)
		}
	}
	for _, c := range item.ServiceComponenten {
		if c.LocalizedNaam != "" {
			l.AddFeature("service_component", c.LocalizedNaam)
		}
	}
	if item.MinimumIncome > 0 {
		l.AddFeature("minimum_income", item.MinimumIncome)
	}
	if item.MinimumAge > 0 {
		l.AddFeature("minimum_age", item.MinimumAge)
	}
	if item.MaximumHousehold > 0 {
		l.AddFeature("maximum_household_size", item.MaximumHousehold)
	}
	if item.Latitude != 0 && item.Longitude != 0 {
		l.Latitude = item.Latitude
		l.Longitude = item.Longitude
	}
	if item.ActionLabel != nil && item.ActionLabel.LocalizedLabel != "" {
		l.AddFeature("action_label", item.ActionLabel.LocalizedLabel)
	}
}

func joinAddress(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// mapDwellingType maps the portal's Dutch dwelling types onto property
// types. Parking spots map to none and are skipped.
func mapDwellingType(dt *dwellingType) (listing.PropertyType, bool) {
	if dt == nil || dt.Code == "" {
		return "", false
	}
	code := strings.ToLower(dt.Code)
	name := strings.ToLower(dt.Name)
	switch {
	case strings.Contains(name, "parkeerplaats"):
		return "", false
	case strings.Contains(name, "appartement"), strings.Contains(code, "flat"),
		strings.Contains(name, "benedenwoning"), strings.Contains(name, "bovenwoning"):
		return listing.PropertyApartment, true
	case strings.Contains(name, "studio"):
		return listing.PropertyStudio, true
	case strings.Contains(name, "eengezinswoning"), strings.Contains(code, "woning"):
		return listing.PropertyHouse, true
	case strings.Contains(name, "kamer"):
		return listing.PropertyRoom, true
	default:
		return listing.PropertyApartment, true
	}
}

func mapInterior(info string) listing.InteriorType {
	lower := strings.ToLower(info)
	switch {
	case strings.Contains(lower, "gemeubileerd"):
		return listing.InteriorFurnished
	case strings.Contains(lower, "gestoffeerd"):
		return listing.InteriorUpholstered
	case strings.Contains(lower, "kaal"):
		return listing.InteriorShell
	default:
		return ""
	}
}

// extractBedrooms reads the room count, falling back to counting entries in
// area descriptions like "7, 8 en 13".
func extractBedrooms(room *sleepingRoom, areaDescription string) (int, bool) {
	if room != nil && room.AmountOfRooms > 0 {
		return int(room.AmountOfRooms), true
	}
	if areaDescription != "" {
		commas := strings.Count(areaDescription, ",")
		ands := strings.Count(strings.ToLower(areaDescription), " en ")
		if commas > 0 || ands > 0 {
			return commas + ands + 1, true
		}
	}
	return 0, false
}

func extractEnergyLabel(raw string) string {
	if m := energyLabelPattern.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	parts := strings.Fields(strings.TrimSpace(raw))
	if len(parts) == 0 {
		return ""
	}
	last := parts[len(parts)-1]
	if bareLabelPattern.MatchString(last) {
		return last
	}
	return ""
}

func absolutize(uri string) string {
	if strings.HasPrefix(uri, "/") {
		return siteBase + uri
	}
	return uri
}
