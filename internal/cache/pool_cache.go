// Package cache keeps pool configurations in Redis in front of a snapshot source.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"tradeslip/internal/domain"
	"tradeslip/internal/observability"
	"tradeslip/internal/snapshot"
)

// Defaults
const (
	DefaultTTL    = 5 * time.Minute
	DefaultPrefix = "tradeslip"
)

// ErrMissingAddr is returned when no Redis address is configured.
var ErrMissingAddr = errors.New("redis addr is required")

// Cache results for metrics.
const (
	resultHit   = "hit"
	resultMiss  = "miss"
	resultError = "error"
)

// NewRedisClient builds a client with the given addr/password/db.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, ErrMissingAddr
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), nil
}

// PoolCache serves pool configurations from Redis and falls back to the wrapped source.
// Balances change every block and always pass through uncached.
// Redis failures never fail a read; they are logged and the source is queried instead.
type PoolCache struct {
	source snapshot.Source
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// PoolCacheOptions configures a PoolCache.
type PoolCacheOptions struct {
	TTL    time.Duration // 0 = DefaultTTL
	Prefix string        // "" = DefaultPrefix
	Logger *slog.Logger
}

var _ snapshot.Source = (*PoolCache)(nil)

// NewPoolCache wraps source with a Redis-backed pool cache.
func NewPoolCache(source snapshot.Source, client *redis.Client, opts PoolCacheOptions) *PoolCache {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PoolCache{
		source: source,
		client: client,
		ttl:    ttl,
		prefix: prefix,
		logger: logger.With("component", "pool_cache"),
	}
}

func (c *PoolCache) key(asset domain.AssetID) string {
	return fmt.Sprintf("%s:pool:%s", c.prefix, asset)
}

// Pool returns the cached pool for asset, loading and caching it on a miss.
// Absent pools are not cached.
func (c *PoolCache) Pool(ctx context.Context, asset domain.AssetID) (*domain.Pool, error) {
	if pool, ok := c.get(ctx, asset); ok {
		return pool, nil
	}

	pool, err := c.source.Pool(ctx, asset)
	if err != nil || pool == nil {
		return pool, err
	}
	c.set(ctx, pool)
	return pool, nil
}

func (c *PoolCache) get(ctx context.Context, asset domain.AssetID) (*domain.Pool, bool) {
	if c.client == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, c.key(asset)).Bytes()
	if err == redis.Nil {
		observability.RecordCache(resultMiss)
		return nil, false
	}
	if err != nil {
		observability.RecordCache(resultError)
		c.logger.Warn("cache read failed", "asset", asset.String(), "error", err)
		return nil, false
	}

	var pool domain.Pool
	if err := json.Unmarshal(data, &pool); err != nil {
		observability.RecordCache(resultError)
		c.logger.Warn("cache entry corrupt", "asset", asset.String(), "error", err)
		return nil, false
	}
	observability.RecordCache(resultHit)
	return &pool, true
}

// set stores pool under every outcome asset it trades, so sibling outcomes hit.
func (c *PoolCache) set(ctx context.Context, pool *domain.Pool) {
	if c.client == nil {
		return
	}
	data, err := json.Marshal(pool)
	if err != nil {
		c.logger.Warn("cache encode failed", "pool_id", pool.ID, "error", err)
		return
	}

	pipe := c.client.Pipeline()
	for _, asset := range pool.Assets {
		if asset.IsOutcome() {
			pipe.Set(ctx, c.key(asset), data, c.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		observability.RecordCache(resultError)
		c.logger.Warn("cache write failed", "pool_id", pool.ID, "error", err)
	}
}

// Invalidate drops the cached pool of every given asset.
func (c *PoolCache) Invalidate(ctx context.Context, assets ...domain.AssetID) error {
	if c.client == nil || len(assets) == 0 {
		return nil
	}
	keys := make([]string, len(assets))
	for i, asset := range assets {
		keys[i] = c.key(asset)
	}
	return c.client.Del(ctx, keys...).Err()
}

// TraderBalance passes through to the source.
func (c *PoolCache) TraderBalance(ctx context.Context, account domain.Account, asset domain.AssetID) (domain.Balance, error) {
	return c.source.TraderBalance(ctx, account, asset)
}

// PoolBalance passes through to the source.
func (c *PoolCache) PoolBalance(ctx context.Context, poolAccount domain.Account, asset domain.AssetID) (*decimal.Decimal, error) {
	return c.source.PoolBalance(ctx, poolAccount, asset)
}

// Close closes the Redis client.
func (c *PoolCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
