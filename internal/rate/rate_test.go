package rate

import (
	"context"
	"os"
	"testing"
	"time"

	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLocalLimiter_BurstThenReject(t *testing.T) {
	l := NewLocalLimiter(3, time.Minute, 3)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "user-1")
		require.NoError(t, err)
		require.True(t, res.Allowed, "request %d", i)
	}
	res, err := l.Allow(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.GreaterOrEqual(t, res.RetryAfter, time.Second)

	// otra clave tiene su propio bucket
	res, err = l.Allow(ctx, "user-2")
	require.NoError(t, err)
	require.True(t, res.Allowed)

	// repone un token cada 20s
	now = now.Add(21 * time.Second)
	res, err = l.Allow(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, res.Allowed)
}

// Requiere un redis descartable: STARLING_TEST_REDIS_ADDR=localhost:6379
func TestRedisLimiter_FixedWindow(t *testing.T) {
	addr := os.Getenv("STARLING_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("STARLING_TEST_REDIS_ADDR not set")
	}
	client := rdb.NewClient(&rdb.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLimiter(client, "rl-test:", 2, time.Minute)
	key := "k-" + time.Now().Format("150405.000000")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, key)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
	res, err := l.Allow(ctx, key)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Greater(t, res.RetryAfter, time.Duration(0))
}
