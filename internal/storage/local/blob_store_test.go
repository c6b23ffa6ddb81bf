package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCreatesBaseDir(t *testing.T) {
	base := filepath.Join(t.TempDir(), "blobs")

	store, err := New(Config{BaseDir: base})
	require.NoError(t, err)
	require.NotNil(t, store)

	info, err := os.Stat(base)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestNewRejectsEmptyBaseDir(t *testing.T) {
	_, err := New(Config{BaseDir: "  "})
	require.Error(t, err)
}

func TestNewRejectsFileAsBaseDir(t *testing.T) {
	base := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(base, []byte("x"), 0o600))

	_, err := New(Config{BaseDir: base})
	require.Error(t, err)
}

func TestPutObjectWritesFile(t *testing.T) {
	base := t.TempDir()
	store, err := New(Config{BaseDir: base})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(),
		"snapshots/vbt/2026-08-30/abc123.json",
		"application/json",
		strings.NewReader(`{"id":"abc123"}`))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "file://"))

	data, err := os.ReadFile(filepath.Join(base, "snapshots", "vbt", "2026-08-30", "abc123.json"))
	require.NoError(t, err)
	require.Equal(t, `{"id":"abc123"}`, string(data))
}

func TestPutObjectRejectsTraversal(t *testing.T) {
	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../../etc/passwd", "text/plain", strings.NewReader("x"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "traversal")
}

func TestPutObjectRejectsEmptyPath(t *testing.T) {
	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "", "text/plain", strings.NewReader("x"))
	require.Error(t, err)
}
