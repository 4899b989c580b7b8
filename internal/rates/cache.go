package rates

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/tokenized/logger"
)

// Cache wraps a price Source with a redis lookaside cache. A nil redis client
// degrades to pass-through so tests can run without redis.
type Cache struct {
	source Source
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a cached source with the given entry lifetime.
func NewCache(source Source, client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		source: source,
		client: client,
		ttl:    ttl,
	}
}

func (c *Cache) GetCryptoPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	key := "rates:" + symbol

	if c.client != nil {
		cached, err := c.client.Get(ctx, key).Result()
		if err == nil {
			price, err := decimal.NewFromString(cached)
			if err == nil {
				return price, nil
			}
			logger.Warn(ctx, "Bad cached price for %s : %s", symbol, err)
		} else if err != redis.Nil {
			logger.Warn(ctx, "Price cache read for %s : %s", symbol, err)
		}
	}

	price, err := c.source.GetCryptoPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "fetch price")
	}

	if c.client != nil {
		if err := c.client.Set(ctx, key, price.String(), c.ttl).Err(); err != nil {
			logger.Warn(ctx, "Price cache write for %s : %s", symbol, err)
		}
	}

	return price, nil
}
