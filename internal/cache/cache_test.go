package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache() (*MemoryCache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 5, 25, 12, 0, 0, 0, time.UTC)}
	c := NewMemoryCache()
	c.now = clock.Now
	return c, clock
}

func TestMemoryCache_GetSet(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v1"), time.Minute))
	value, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), value)
}

func TestMemoryCache_LastWriteWins(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("first"), time.Minute))
	require.NoError(t, c.Set(ctx, "k", []byte("second"), time.Minute))

	value, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "second", string(value))
}

func TestMemoryCache_PerKeyExpiry(t *testing.T) {
	c, clock := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("a"), time.Minute))
	require.NoError(t, c.Set(ctx, "long", []byte("b"), 10*time.Minute))

	clock.Advance(time.Minute)

	_, ok, _ := c.Get(ctx, "short")
	assert.False(t, ok, "expiry is inclusive of the ttl boundary")
	_, ok, _ = c.Get(ctx, "long")
	assert.True(t, ok)
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	original := []byte("drafts")
	require.NoError(t, c.Set(ctx, "k", original, time.Minute))
	original[0] = 'X'

	value, _, _ := c.Get(ctx, "k")
	value[1] = 'Y'

	again, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "drafts", string(again))
}

func TestMemoryCache_NonPositiveTTLDeletes(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))

	_, ok, _ := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryCache_Sweep(t *testing.T) {
	c, clock := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Hour))
	clock.Advance(2 * time.Minute)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_Concurrent(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i%5)
			_ = c.Set(ctx, key, []byte(key), time.Minute)
			value, ok, err := c.Get(ctx, key)
			assert.NoError(t, err)
			if ok {
				assert.Equal(t, key, string(value))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, c.Len())
}
