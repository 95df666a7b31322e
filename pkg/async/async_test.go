package async_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailroom/pkg/async"
)

func TestAsync(t *testing.T) {
	t.Parallel()

	t.Run("await returns result", func(t *testing.T) {
		t.Parallel()

		f := async.Async(context.Background(), 21, func(_ context.Context, v int) (int, error) {
			return v * 2, nil
		})

		result, err := f.Await()
		require.NoError(t, err)
		assert.Equal(t, 42, result)
	})

	t.Run("await propagates error", func(t *testing.T) {
		t.Parallel()

		wantErr := errors.New("boom")
		f := async.Async(context.Background(), "x", func(_ context.Context, _ string) (string, error) {
			return "", wantErr
		})

		_, err := f.Await()
		assert.ErrorIs(t, err, wantErr)
	})

	t.Run("cancelled context completes with context error", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		f := async.Async(ctx, 0, func(_ context.Context, _ int) (int, error) {
			t.Error("function must not run with pre-cancelled context")
			return 0, nil
		})

		_, err := f.Await()
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("await with timeout", func(t *testing.T) {
		t.Parallel()

		f := async.Async(context.Background(), 0, func(_ context.Context, _ int) (int, error) {
			time.Sleep(time.Second)
			return 1, nil
		})

		_, err := f.AwaitWithTimeout(10 * time.Millisecond)
		assert.ErrorIs(t, err, async.ErrTimeout)
	})

	t.Run("is complete", func(t *testing.T) {
		t.Parallel()

		f := async.Async(context.Background(), 0, func(_ context.Context, _ int) (int, error) {
			return 1, nil
		})

		_, _ = f.Await()
		assert.True(t, f.IsComplete())
	})
}

func TestWaitAll(t *testing.T) {
	t.Parallel()

	t.Run("preserves argument order", func(t *testing.T) {
		t.Parallel()

		futures := make([]*async.Future[int], 5)
		for i := range futures {
			futures[i] = async.Async(context.Background(), i, func(_ context.Context, v int) (int, error) {
				// Reverse sleep order so completion order differs from argument order.
				time.Sleep(time.Duration(5-v) * time.Millisecond)
				return v * 10, nil
			})
		}

		results, err := async.WaitAll(futures...)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 10, 20, 30, 40}, results)
	})

	t.Run("error from one future does not lose other results", func(t *testing.T) {
		t.Parallel()

		ok := async.Async(context.Background(), 1, func(_ context.Context, v int) (int, error) {
			return v, nil
		})
		bad := async.Async(context.Background(), 2, func(_ context.Context, _ int) (int, error) {
			return 0, errors.New("failed")
		})

		results, err := async.WaitAll(ok, bad)
		require.Error(t, err)
		assert.Equal(t, 1, results[0])
	})
}
