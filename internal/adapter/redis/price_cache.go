package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/shopspring/decimal"
)

// PriceCache is the shared L2 layer of the price oracle. Failures degrade to
// cache misses.
type PriceCache struct {
	rdb goredis.Cmdable
}

func NewPriceCache(rdb goredis.Cmdable) *PriceCache {
	return &PriceCache{rdb: rdb}
}

func (c *PriceCache) Get(ctx context.Context, key string) (decimal.Decimal, bool) {
	raw, err := c.rdb.Get(ctx, priceKey(key)).Result()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			slog.WarnContext(ctx, "Redis price cache GET failed", "component", key, "error", err)
		}
		return decimal.Zero, false
	}

	v, err := decimal.NewFromString(raw)
	if err != nil {
		slog.WarnContext(ctx, "Discarding malformed cached price", "component", key, "value", raw)
		return decimal.Zero, false
	}
	return v, true
}

func (c *PriceCache) Set(ctx context.Context, key string, v decimal.Decimal, ttl time.Duration) {
	if err := c.rdb.Set(ctx, priceKey(key), v.String(), ttl).Err(); err != nil {
		slog.WarnContext(ctx, "Failed to populate Redis price cache", "component", key, "error", err)
	}
}

// Clear removes every cached price component.
func (c *PriceCache) Clear(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, priceKey("*"), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func priceKey(component string) string {
	return "price:" + component
}
