package httpx

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newFastClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	c := New(cfg, zap.NewNop())
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestGetSendsBrowserHeaders(t *testing.T) {
	t.Parallel()

	var gotUA, gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	c := newFastClient(t, Config{})
	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, gotUA, "Mozilla/5.0")
	require.NotEmpty(t, gotReferer)
	require.Equal(t, `{"ok": true}`, resp.Text)
}

func TestGetDecompressesGzip(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"houses": []}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, _ = zw.Write(payload)
		_ = zw.Close()
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	c := newFastClient(t, Config{})
	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, payload, resp.Body)
}

func TestDecompressDeflateVariants(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"houses": []}`)

	var wrapped bytes.Buffer
	zw := zlib.NewWriter(&wrapped)
	_, _ = zw.Write(payload)
	_ = zw.Close()
	require.Equal(t, payload, decompress(wrapped.Bytes(), "deflate"))

	var raw bytes.Buffer
	fw, err := flate.NewWriter(&raw, flate.DefaultCompression)
	require.NoError(t, err)
	_, _ = fw.Write(payload)
	_ = fw.Close()
	require.Equal(t, payload, decompress(raw.Bytes(), "deflate"))
}

func TestGetDoesNotRetry404(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newFastClient(t, Config{})
	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, int32(1), calls.Load())
}

func TestGetRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newFastClient(t, Config{MaxRetries: 3})
	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int32(3), calls.Load())
}

func TestGetRotatesProfilesOnAntiBot(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte("<html>Ik ben geen robot</html>"))
			return
		}
		_, _ = w.Write([]byte("<html>echte woningen</html>"))
	}))
	defer srv.Close()

	c := newFastClient(t, Config{MaxAntiBotTries: 3})
	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Contains(t, resp.Text, "echte woningen")
	require.Equal(t, int32(2), calls.Load())
}

func TestGetGivesUpOnPersistentAntiBot(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("Just a moment..."))
	}))
	defer srv.Close()

	c := newFastClient(t, Config{MaxAntiBotTries: 2})
	_, err := c.Get(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrAntiBot)
}

func TestDetectAntiBot(t *testing.T) {
	t.Parallel()

	pattern, ok := DetectAntiBot("<p>We houden ons platform graag veilig en spamvrij.</p>")
	require.True(t, ok)
	require.Equal(t, "we houden ons platform graag veilig en spamvrij", pattern)

	_, ok = DetectAntiBot("<p>Ruim appartement in het centrum</p>")
	require.False(t, ok)
}

func TestExtractCharset(t *testing.T) {
	t.Parallel()

	require.Equal(t, "utf-8", extractCharset("text/html; charset=UTF-8"))
	require.Equal(t, "iso-8859-1", extractCharset(`text/html; charset="ISO-8859-1"`))
	require.Equal(t, "", extractCharset("application/json"))
}

func TestDecodeTextLatin1Fallback(t *testing.T) {
	t.Parallel()

	// 0xE9 is é in Latin-1 and invalid on its own in UTF-8.
	raw := []byte{'c', 'a', 'f', 0xE9}
	require.Equal(t, "café", decodeText(raw, ""))
	require.Equal(t, "café", decodeText(raw, "latin1"))
}
