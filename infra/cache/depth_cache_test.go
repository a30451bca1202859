package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ladder/domain/orderbook"
)

func newCache(t *testing.T) (*DepthCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewDepthCache(mr.Addr(), "", 0, time.Minute)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestDepthCacheRoundTrip(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	in := CachedDepth{
		Seq: 42,
		At:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Depth: orderbook.Depth{
			Bids: []orderbook.LevelDepth{{Price: 100, Quantity: 3, Orders: 1}},
			Asks: []orderbook.LevelDepth{{Price: 110, Quantity: 5, Orders: 2}},
		},
	}
	require.NoError(t, c.Set(ctx, "LDR-USD", in))
	assert.True(t, mr.Exists("depth:LDR-USD"))
	assert.Equal(t, time.Minute, mr.TTL("depth:LDR-USD"))

	out, err := c.Get(ctx, "LDR-USD")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, in.Seq, out.Seq)
	assert.True(t, in.At.Equal(out.At))
	assert.Equal(t, in.Depth, out.Depth)
}

func TestDepthCacheMiss(t *testing.T) {
	c, _ := newCache(t)
	out, err := c.Get(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestDepthCacheExpiryAndInvalidate(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "A", CachedDepth{Seq: 1}))
	mr.FastForward(2 * time.Minute)
	out, err := c.Get(ctx, "A")
	require.NoError(t, err)
	assert.Nil(t, out)

	require.NoError(t, c.Set(ctx, "A", CachedDepth{Seq: 2}))
	require.NoError(t, c.Invalidate(ctx, "A"))
	out, err = c.Get(ctx, "A")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestDepthCacheUnreachable(t *testing.T) {
	c, mr := newCache(t)
	mr.Close()
	_, err := c.Get(context.Background(), "A")
	assert.Error(t, err)
}
