package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"ladder/domain/orderbook"
)

// CachedDepth is a depth view stamped with the journal position it was
// taken at.
type CachedDepth struct {
	Seq   uint64          `json:"seq"`
	At    time.Time       `json:"at"`
	Depth orderbook.Depth `json:"depth"`
}

// DepthCache keeps the latest depth per symbol in Redis.
type DepthCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDepthCache(addr, password string, db int, ttl time.Duration) *DepthCache {
	return NewDepthCacheWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), ttl)
}

func NewDepthCacheWithClient(client *redis.Client, ttl time.Duration) *DepthCache {
	return &DepthCache{client: client, ttl: ttl}
}

func key(symbol string) string { return "depth:" + symbol }

func (c *DepthCache) Set(ctx context.Context, symbol string, d CachedDepth) error {
	b, err := json.Marshal(d)
	if err != nil {
		return errors.Wrap(err, "encode depth")
	}
	return errors.Wrapf(c.client.Set(ctx, key(symbol), b, c.ttl).Err(), "cache depth %s", symbol)
}

// Get returns nil, nil on a miss.
func (c *DepthCache) Get(ctx context.Context, symbol string) (*CachedDepth, error) {
	b, err := c.client.Get(ctx, key(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read depth %s", symbol)
	}
	var d CachedDepth
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, errors.Wrap(err, "decode depth")
	}
	return &d, nil
}

func (c *DepthCache) Invalidate(ctx context.Context, symbol string) error {
	return c.client.Del(ctx, key(symbol)).Err()
}

func (c *DepthCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *DepthCache) Close() error {
	return c.client.Close()
}
