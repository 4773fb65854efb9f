package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemory_TakeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("test")
	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))

	v, err := c.Take(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)

	_, err = c.Take(ctx, "k")
	require.True(t, IsNotFound(err))
}

func TestMemory_TakeConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("")
	require.NoError(t, c.Set(ctx, "state", "payload", time.Minute))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Take(ctx, "state"); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins)
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("")
	require.NoError(t, c.Set(ctx, "k", "v", 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)
	_, err := c.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_AddRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("")
	require.NoError(t, c.Add(ctx, "k", "v1", time.Minute))
	require.ErrorIs(t, c.Add(ctx, "k", "v2", time.Minute), ErrExists)
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v1", v)
}

func TestNew_DefaultsToMemory(t *testing.T) {
	c, err := New(Config{Driver: ""})
	require.NoError(t, err)
	require.NoError(t, c.Ping(context.Background()))
	require.NoError(t, c.Close())
}
