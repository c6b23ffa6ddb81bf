package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutObjectAndGet(t *testing.T) {
	store := New()

	uri, err := store.PutObject(context.Background(), "snapshots/vbt/x.json", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	require.Equal(t, "mem://snapshots/vbt/x.json", uri)

	obj, ok := store.Get("snapshots/vbt/x.json")
	require.True(t, ok)
	require.Equal(t, "application/json", obj.ContentType)
	require.Equal(t, `{}`, string(obj.Data))
	require.Equal(t, 1, store.Len())
}

func TestPutObjectRejectsEmptyPath(t *testing.T) {
	store := New()
	_, err := store.PutObject(context.Background(), " ", "text/plain", strings.NewReader("x"))
	require.Error(t, err)
}
