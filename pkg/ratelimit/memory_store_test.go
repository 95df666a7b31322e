package ratelimit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailroom/pkg/ratelimit"
)

func TestMemoryStore_RecordIfAllowed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := ratelimit.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	now := time.Now()

	allowed, count, err := store.RecordIfAllowed(ctx, "k", now, time.Minute, 2, 1)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.EqualValues(t, 1, count)

	allowed, count, err = store.RecordIfAllowed(ctx, "k", now, time.Minute, 2, 1)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.EqualValues(t, 2, count)

	// Over limit: nothing recorded, count unchanged.
	allowed, count, err = store.RecordIfAllowed(ctx, "k", now, time.Minute, 2, 1)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.EqualValues(t, 2, count)
}

func TestMemoryStore_Concurrency(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := ratelimit.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	const limit = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0

	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, _, err := store.RecordIfAllowed(ctx, "k", time.Now(), time.Minute, limit, 1)
			require.NoError(t, err)
			if allowed {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, allowedCount)
}

func TestMemoryStore_CountInWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := ratelimit.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	count, err := store.CountInWindow(ctx, "missing", time.Minute)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, _, err = store.RecordIfAllowed(ctx, "k", time.Now(), time.Minute, 10, 3)
	require.NoError(t, err)

	count, err = store.CountInWindow(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestMemoryStore_RemoveLast(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := ratelimit.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	_, _, err := store.RecordIfAllowed(ctx, "k", time.Now(), time.Minute, 10, 3)
	require.NoError(t, err)

	require.NoError(t, store.RemoveLast(ctx, "k", 2))
	count, err := store.CountInWindow(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	// Removing more than remains clamps at zero; unknown keys are a no-op.
	require.NoError(t, store.RemoveLast(ctx, "k", 5))
	count, err = store.CountInWindow(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, store.RemoveLast(ctx, "missing", 1))
}

func TestMemoryStore_Close(t *testing.T) {
	t.Parallel()

	store := ratelimit.NewMemoryStore()
	require.NoError(t, store.Close())
	// Idempotent.
	require.NoError(t, store.Close())
}
