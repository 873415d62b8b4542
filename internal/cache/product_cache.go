package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient connects to Redis and verifies the connection with a ping
func NewRedisClient(cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established", zap.String("addr", rdb.Options().Addr))
	return rdb, nil
}

// ProductCache is a read-through cache of catalog products. Cache failures are
// logged and treated as misses; the store stays authoritative.
type ProductCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewProductCache creates a product cache. A nil client disables caching.
func NewProductCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *ProductCache {
	return &ProductCache{rdb: rdb, ttl: ttl, logger: logger}
}

func productKey(id uuid.UUID) string {
	return fmt.Sprintf("product:%s", id)
}

// Get returns the cached product, or false on a miss
func (c *ProductCache) Get(ctx context.Context, id uuid.UUID) (*domain.Product, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}

	data, err := c.rdb.Get(ctx, productKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Product cache read failed", zap.String("product_id", id.String()), zap.Error(err))
		}
		return nil, false
	}

	var product domain.Product
	if err := json.Unmarshal(data, &product); err != nil {
		c.logger.Warn("Discarding undecodable cached product", zap.String("product_id", id.String()), zap.Error(err))
		c.Invalidate(ctx, id)
		return nil, false
	}

	return &product, true
}

// Set stores product for the configured TTL
func (c *ProductCache) Set(ctx context.Context, product *domain.Product) {
	if c == nil || c.rdb == nil {
		return
	}

	data, err := json.Marshal(product)
	if err != nil {
		c.logger.Warn("Failed to encode product for cache", zap.Error(err))
		return
	}

	if err := c.rdb.Set(ctx, productKey(product.ID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Product cache write failed", zap.String("product_id", product.ID.String()), zap.Error(err))
	}
}

// Invalidate drops the cached copies of the given products
func (c *ProductCache) Invalidate(ctx context.Context, ids ...uuid.UUID) {
	if c == nil || c.rdb == nil || len(ids) == 0 {
		return
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productKey(id)
	}

	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("Product cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
