package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Hour)
	defer c.Close()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "text:a", "alpha", time.Minute))
	require.NoError(t, c.Set(ctx, "text:b", "beta", 0))
	require.NoError(t, c.Set(ctx, "kw:a", "x", time.Minute))

	v, err := c.Get(ctx, "text:a")
	require.NoError(t, err)
	assert.Equal(t, "alpha", v)

	keys, err := c.Keys(ctx, "text:")
	require.NoError(t, err)
	assert.Equal(t, []string{"text:a", "text:b"}, keys)

	require.NoError(t, c.Delete(ctx, "text:a"))
	_, err = c.Get(ctx, "text:a")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(5 * time.Millisecond)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	assert.Eventually(t, func() bool { return c.Size() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemoryCacheCloseTwice(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
