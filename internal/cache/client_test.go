package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestMemoryClient_TTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1000, 0)}
	c := newMemoryClient(10, clock.now)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	clock.t = clock.t.Add(2 * time.Minute)
	_, err = c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClient_Bounded(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1000, 0)}
	c := newMemoryClient(2, clock.now)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "short", []byte("x"), time.Second))
	require.NoError(t, c.Set(ctx, "long", []byte("y"), time.Hour))
	require.NoError(t, c.Set(ctx, "long", []byte("z"), time.Hour))
	assert.Equal(t, 2, c.Len())

	require.NoError(t, c.Set(ctx, "new", []byte("n"), time.Hour))
	assert.Equal(t, 2, c.Len())

	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)
	got, err := c.Get(ctx, "long")
	require.NoError(t, err)
	assert.Equal(t, []byte("z"), got)
}

func TestMemoryClient_DeleteAndClose(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(0)
	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Delete(ctx, "a"))
	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "job:doc-1", CacheKey("job", "doc-1"))
}
