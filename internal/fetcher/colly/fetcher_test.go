package collyfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetchReturnsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "rentradar-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>detail</body></html>"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "rentradar-test", Timeout: 5 * time.Second})
	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Contains(t, string(page.Body), "detail")
	require.Greater(t, page.Duration, time.Duration(0))
}

func TestFetchSurfacesHTTPErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("down"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "rentradar-test"})
	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, page.StatusCode)
}

func TestFetchFailsOnUnreachableHost(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "rentradar-test", Timeout: time.Second})
	_, err := f.Fetch(context.Background(), "http://127.0.0.1:1/unreachable")
	require.Error(t, err)
}
