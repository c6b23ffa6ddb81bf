package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	require.Equal(t, "api.vbtverhuurmakelaars.nl", SanitizeSite("https://api.vbtverhuurmakelaars.nl/properties?page=1"))
	require.Equal(t, "hureninhollandrijnland.nl", SanitizeSite("hureninhollandrijnland.nl/woningaanbod"))
	require.Equal(t, "unknown", SanitizeSite("://bad"))
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	// Observations against initialized collectors must not panic.
	ObserveListing("vbt", "new")
	ObservePage("vbt", 200, 2048)
	ObserveRun("succeeded")
	IncActiveWorkers()
	DecActiveWorkers()
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	Init()

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/listings", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/listings", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
}
