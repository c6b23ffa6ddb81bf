package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rentradar/rentradar/internal/config"
	"github.com/rentradar/rentradar/internal/listing"
	"github.com/rentradar/rentradar/internal/scanner"
	"github.com/rentradar/rentradar/internal/scraper"
	"github.com/rentradar/rentradar/internal/store"
	storemem "github.com/rentradar/rentradar/internal/store/memory"
)

type fakeScanStarter struct {
	lastOpts scanner.Options
	run      *store.ScanRun
	err      error
}

func (f *fakeScanStarter) Start(_ context.Context, opts scanner.Options) (*store.ScanRun, error) {
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.run, nil
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

func testConfig() config.Config {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

func newTestServer(t *testing.T, listings store.ListingStore, runs store.ScanStore, scans ScanStarter, pinger Pinger, cfg config.Config) *Server {
	t.Helper()
	return NewServer(listings, runs, scans, pinger, cfg, zap.NewNop())
}

func seedListing(t *testing.T, listings *storemem.ListingStore, city string, price int) *listing.Listing {
	t.Helper()
	l := &listing.Listing{
		Source:       "vbt",
		SourceID:     fmt.Sprintf("%s-%d", city, price),
		Title:        "Teststraat 1",
		City:         city,
		PriceNumeric: price,
		ScrapedAt:    time.Now().UTC(),
	}
	l.Finalize(l.ScrapedAt)
	_, err := listings.Upsert(context.Background(), l)
	require.NoError(t, err)
	return l
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, storemem.NewListingStore(), storemem.NewScanStore(), nil, nil, testConfig())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"ok"`)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyzReportsDatabaseDown(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, storemem.NewListingStore(), storemem.NewScanStore(), nil,
		&fakePinger{err: fmt.Errorf("dial tcp: connection refused")}, testConfig())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadyzOK(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, storemem.NewListingStore(), storemem.NewScanStore(), nil, &fakePinger{}, testConfig())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestListListingsWithFilters(t *testing.T) {
	t.Parallel()

	listings := storemem.NewListingStore()
	seedListing(t, listings, "leiden", 1200)
	seedListing(t, listings, "leiden", 1900)
	seedListing(t, listings, "den haag", 1400)

	srv := newTestServer(t, listings, storemem.NewScanStore(), nil, nil, testConfig())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/listings/?city=leiden&max_price=1500", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Count    int                `json:"count"`
		Listings []*listing.Listing `json:"listings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	require.Equal(t, "leiden", body.Listings[0].City)
	require.Equal(t, 1200, body.Listings[0].PriceNumeric)
}

func TestListListingsRejectsBadMaxPrice(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, storemem.NewListingStore(), storemem.NewScanStore(), nil, nil, testConfig())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/listings/?max_price=cheap", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchCities(t *testing.T) {
	t.Parallel()

	listings := storemem.NewListingStore()
	seedListing(t, listings, "den haag", 1200)
	seedListing(t, listings, "den haag", 1400)
	seedListing(t, listings, "leiden", 1300)

	srv := newTestServer(t, listings, storemem.NewScanStore(), nil, nil, testConfig())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/cities?q=den+hag", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Count  int               `json:"count"`
		Cities []store.CityMatch `json:"cities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	require.Equal(t, "den haag", body.Cities[0].City)
	require.Equal(t, 2, body.Cities[0].Listings)
}

func TestSearchCitiesRequiresQuery(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, storemem.NewListingStore(), storemem.NewScanStore(), nil, nil, testConfig())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/cities", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetListingByHash(t *testing.T) {
	t.Parallel()

	listings := storemem.NewListingStore()
	l := seedListing(t, listings, "leiden", 1200)

	srv := newTestServer(t, listings, storemem.NewScanStore(), nil, nil, testConfig())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/listings/"+l.Hash, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), l.Hash)
}

func TestGetListingNotFound(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, storemem.NewListingStore(), storemem.NewScanStore(), nil, nil, testConfig())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/listings/deadbeef", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerScanUsesConfigDefaults(t *testing.T) {
	t.Parallel()

	starter := &fakeScanStarter{run: &store.ScanRun{ID: 3, Status: store.ScanStatusRunning}}
	srv := newTestServer(t, storemem.NewListingStore(), storemem.NewScanStore(), starter, nil, testConfig())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/scans/", strings.NewReader(`{}`))
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []string{"vbt", "hollandrijnland"}, starter.lastOpts.Sources)
	require.Equal(t, []string{"den haag", "leiden"}, starter.lastOpts.Cities)
	require.Contains(t, rec.Body.String(), `"id":3`)
}

func TestTriggerScanUnknownSource(t *testing.T) {
	t.Parallel()

	starter := &fakeScanStarter{err: fmt.Errorf("%w: %q", scraper.ErrSourceUnknown, "nope")}
	srv := newTestServer(t, storemem.NewListingStore(), storemem.NewScanStore(), starter, nil, testConfig())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/scans/", strings.NewReader(`{"sources":["nope"],"cities":["leiden"]}`))
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetScan(t *testing.T) {
	t.Parallel()

	runs := storemem.NewScanStore()
	run := &store.ScanRun{Sources: []string{"vbt"}, Cities: []string{"leiden"}, Status: store.ScanStatusCompleted, StartedAt: time.Now().UTC()}
	require.NoError(t, runs.Create(context.Background(), run))

	srv := newTestServer(t, storemem.NewListingStore(), runs, nil, nil, testConfig())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/v1/scans/%d", run.ID), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), store.ScanStatusCompleted)
}

func TestGetScanNotFound(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, storemem.NewListingStore(), storemem.NewScanStore(), nil, nil, testConfig())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/scans/99", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIKeyGuardsV1Routes(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "sleutel"

	srv := newTestServer(t, storemem.NewListingStore(), storemem.NewScanStore(), nil, nil, cfg)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/listings/", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/listings/", nil)
	req.Header.Set("X-API-Key", "sleutel")
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// probes stay open
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, storemem.NewListingStore(), storemem.NewScanStore(), nil, nil, testConfig())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}
