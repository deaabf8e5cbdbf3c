package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitUnlimitedNeverBlocks(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://api.example.org/manga"))
	}
}

func TestWaitPacesPerHost(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 50, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://api.example.org/manga"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://api.example.org/manga"))
	require.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	// A different host draws from its own bucket.
	start = time.Now()
	require.NoError(t, l.Wait(ctx, "https://uploads.example.org/covers/x.jpg"))
	require.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.1, Burst: 1})
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "https://api.example.org/manga"))

	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := l.Wait(cancelCtx, "https://api.example.org/manga")
	require.Error(t, err)
}
