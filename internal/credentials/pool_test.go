package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPool(t *testing.T, keys ...string) *Pool {
	t.Helper()
	pool, err := NewPool(keys, PoolConfig{Cooldown: time.Millisecond}, zap.NewNop())
	require.NoError(t, err)
	return pool
}

func TestNewPoolEmpty(t *testing.T) {
	_, err := NewPool(nil, PoolConfig{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestPoolRotation(t *testing.T) {
	pool := newTestPool(t, "key-a", "key-b", "key-c")

	assert.Equal(t, "key-a", pool.Current())

	pool.MarkFailed()
	assert.Equal(t, "key-b", pool.Current())
	assert.Equal(t, 2, pool.AvailableCount())

	pool.MarkFailed()
	assert.Equal(t, "key-c", pool.Current())
	assert.Equal(t, 1, pool.AvailableCount())
}

func TestPoolExhaustionResets(t *testing.T) {
	const n = 4
	keys := []string{"k1", "k2", "k3", "k4"}
	pool := newTestPool(t, keys...)

	for i := 0; i < n; i++ {
		pool.MarkFailed()
	}
	assert.Equal(t, 0, pool.AvailableCount())

	// The next Current call resets the pool back to fully available and
	// wraps around to the first credential.
	assert.Equal(t, "k1", pool.Current())
	assert.Equal(t, n, pool.AvailableCount())
}

func TestPoolWrapAround(t *testing.T) {
	pool := newTestPool(t, "k1", "k2")

	pool.MarkFailed()
	pool.MarkFailed()
	// Pointer wrapped past the end back to index 0.
	assert.Equal(t, "k1", pool.Current())
}

func TestRotateSucceedsAfterFailures(t *testing.T) {
	pool := newTestPool(t, "k1", "k2", "k3")
	quota := errors.New("quota exceeded")

	attempts := 0
	out, err := Rotate(context.Background(), pool, 0, func(err error) bool {
		return errors.Is(err, quota)
	}, func(ctx context.Context, key string) (string, error) {
		attempts++
		if attempts <= 2 {
			return "", quota
		}
		return "answer from " + key, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "answer from k3", out)
	assert.Equal(t, 3, attempts)
	// Exactly two failures were recorded in the pool.
	assert.Equal(t, 1, pool.AvailableCount())
}

func TestRotateNonRetryableAborts(t *testing.T) {
	pool := newTestPool(t, "k1", "k2")
	fatal := errors.New("malformed input")

	attempts := 0
	_, err := Rotate(context.Background(), pool, 0, func(error) bool { return false },
		func(ctx context.Context, key string) (string, error) {
			attempts++
			return "", fatal
		})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, attempts)
	// Non-retryable errors must not consume credentials.
	assert.Equal(t, 2, pool.AvailableCount())
}

func TestRotateExhaustsPool(t *testing.T) {
	pool := newTestPool(t, "k1", "k2", "k3")
	quota := errors.New("quota exceeded")

	attempts := 0
	_, err := Rotate(context.Background(), pool, 0, func(error) bool { return true },
		func(ctx context.Context, key string) (string, error) {
			attempts++
			return "", quota
		})

	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 3, attempts)
}

func TestRotateContextCancelled(t *testing.T) {
	pool := newTestPool(t, "k1", "k2")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Rotate(ctx, pool, 0, func(error) bool { return true },
		func(ctx context.Context, key string) (string, error) {
			t.Fatal("attempt must not run after cancellation")
			return "", nil
		})

	assert.ErrorIs(t, err, context.Canceled)
}
