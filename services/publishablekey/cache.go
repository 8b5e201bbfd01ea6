package publishablekey

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	validityCacheHits = prometheus.NewCounter(prometheus.CounterOpts{Name: "publishable_key_validity_cache_hits_total"})
	validityCacheMiss = prometheus.NewCounter(prometheus.CounterOpts{Name: "publishable_key_validity_cache_miss_total"})
)

func init() {
	prometheus.MustRegister(validityCacheHits, validityCacheMiss)
}

const defaultValidityTTL = 30 * time.Second

// ValidityCache is a read-through redis cache for validity checks, the
// one lookup storefronts issue on every request. Loads for the same key
// collapse through singleflight; revoke invalidates eagerly, so the TTL
// only bounds staleness from lost invalidations.
type ValidityCache struct {
	rdb   *redis.Client
	ttl   time.Duration
	group singleflight.Group
}

func NewValidityCache(rdb *redis.Client, ttl time.Duration) *ValidityCache {
	if ttl <= 0 {
		ttl = defaultValidityTTL
	}
	return &ValidityCache{rdb: rdb, ttl: ttl}
}

func (c *ValidityCache) Validate(ctx context.Context, cacheKey string, load func(ctx context.Context) (bool, error)) (bool, error) {
	val, err := c.rdb.Get(ctx, cacheKey).Result()
	if err == nil {
		validityCacheHits.Inc()
		return val == "1", nil
	}
	if err != redis.Nil {
		zap.L().Warn("validity cache read failed", zap.String("key", cacheKey), zap.Error(err))
	}

	validityCacheMiss.Inc()

	v, err, _ := c.group.Do(cacheKey, func() (interface{}, error) {
		valid, err := load(ctx)
		if err != nil {
			return nil, err
		}

		if err := c.rdb.Set(ctx, cacheKey, flag(valid), c.ttl).Err(); err != nil {
			zap.L().Warn("validity cache write failed", zap.String("key", cacheKey), zap.Error(err))
		}

		return valid, nil
	})
	if err != nil {
		return false, err
	}

	return v.(bool), nil
}

// Invalidate drops both cache entries for a key after a lifecycle change.
func (c *ValidityCache) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		zap.L().Warn("validity cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func flag(valid bool) string {
	if valid {
		return "1"
	}
	return "0"
}
