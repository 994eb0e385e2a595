package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := NewRedisCache(ctx, NewRedisCacheConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer c.Close()

	val, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, val)

	require.NoError(t, c.Set(ctx, "webhook:abc", "1", time.Hour))
	val, err = c.Get(ctx, "webhook:abc")
	require.NoError(t, err)
	assert.Equal(t, "1", val)

	mr.FastForward(2 * time.Hour)
	val, err = c.Get(ctx, "webhook:abc")
	require.NoError(t, err)
	assert.Empty(t, val)

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	require.NoError(t, c.Delete(ctx, "k"))
	assert.False(t, mr.Exists("k"))
}

func TestRedisCache_SetNX(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := NewRedisCache(ctx, NewRedisCacheConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer c.Close()

	won, err := c.SetNX(ctx, "webhook:stripe:evt_1", "processing", time.Minute)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = c.SetNX(ctx, "webhook:stripe:evt_1", "processing", time.Minute)
	require.NoError(t, err)
	assert.False(t, won)

	require.NoError(t, c.Delete(ctx, "webhook:stripe:evt_1"))
	won, err = c.SetNX(ctx, "webhook:stripe:evt_1", "processing", time.Minute)
	require.NoError(t, err)
	assert.True(t, won)

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("webhook:stripe:evt_1"))
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisCache(context.Background(), NewRedisCacheConfig{Address: addr})
	assert.Error(t, err)
}
