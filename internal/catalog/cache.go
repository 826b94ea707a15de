package catalog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "promo:catalog:category:"

// Lookup is the single catalog operation the engine needs.
type Lookup interface {
	CategoryOf(ctx context.Context, productUnitID string) (string, error)
}

// CachedLookup memoizes categories in Redis. Unknown products are cached as
// the empty string so they are not fetched again until the entry expires.
// Cache failures degrade to the inner lookup.
type CachedLookup struct {
	inner  Lookup
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedLookup(inner Lookup, client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *CachedLookup {
	return &CachedLookup{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (c *CachedLookup) CategoryOf(ctx context.Context, productUnitID string) (string, error) {
	key := cacheKeyPrefix + productUnitID

	category, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return category, nil
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "catalog cache read failed",
			slog.String("product_unit_id", productUnitID),
			slog.String("error", err.Error()),
		)
	}

	category, err = c.inner.CategoryOf(ctx, productUnitID)
	if err != nil {
		return "", err
	}

	if err := c.client.Set(ctx, key, category, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "catalog cache write failed",
			slog.String("product_unit_id", productUnitID),
			slog.String("error", err.Error()),
		)
	}
	return category, nil
}
