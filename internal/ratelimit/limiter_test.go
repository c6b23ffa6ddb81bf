package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rentradar/rentradar/internal/telemetry"
)

func TestUnlimitedNeverBlocks(t *testing.T) {
	telemetry.Init()
	l := New(Config{})

	start := time.Now()
	for range 50 {
		require.NoError(t, l.Wait(context.Background(), "https://api.vbtverhuurmakelaars.nl/properties"))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterThrottlesPerDomain(t *testing.T) {
	telemetry.Init()
	l := New(Config{DefaultRPS: 20, DefaultBurst: 1})

	start := time.Now()
	for range 3 {
		require.NoError(t, l.Wait(context.Background(), "https://example.com/a"))
	}
	// Burst 1 at 20 rps: two waits of ~50ms each.
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestWaitNormalizesDomainKeys(t *testing.T) {
	telemetry.Init()
	l := New(Config{DefaultRPS: 20, DefaultBurst: 1})

	// Mixed case and a scheme-less URL land in the same bucket.
	require.NoError(t, l.Wait(context.Background(), "https://Example.com/a"))
	require.NoError(t, l.Wait(context.Background(), "example.com/b"))

	l.mu.Lock()
	defer l.mu.Unlock()
	require.Len(t, l.limiters, 1)
	require.Contains(t, l.limiters, "example.com")
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	telemetry.Init()
	l := New(Config{DefaultRPS: 0.001, DefaultBurst: 1})

	// Drain the burst token.
	require.NoError(t, l.Wait(context.Background(), "https://example.com/a"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://example.com/a"))
}
