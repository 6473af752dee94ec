// Package redis caches the most recent tick per (exchange, asset) pair so
// the /latest endpoint can answer without touching object storage.
package redis

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mpaquette/depthmetrics/internal/domain"
	"github.com/redis/go-redis/v9"
)

// tickTTL bounds how long a stale tick is served after a collector stops
// publishing for a pair.
const tickTTL = 5 * time.Minute

// Config holds the connection parameters from the [redis] table. An empty
// Addr disables the cache; callers skip construction in that case.
type Config struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

func (cfg Config) options() *redis.Options {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// TickCache implements domain.TickCache using Redis string keys. Each pair's
// most recent tick is stored as JSON at "tick:{exchange}:{asset}" with a TTL
// so dead pairs age out instead of serving stale quotes forever.
type TickCache struct {
	rdb *redis.Client
}

// NewTickCache connects to Redis and verifies connectivity with a ping.
func NewTickCache(ctx context.Context, cfg Config) (*TickCache, error) {
	rdb := redis.NewClient(cfg.options())
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &TickCache{rdb: rdb}, nil
}

// Close releases the connection pool.
func (tc *TickCache) Close() error {
	return tc.rdb.Close()
}

func tickKey(exchange, asset string) string {
	return "tick:" + exchange + ":" + asset
}

// SetLatest stores the most recent tick for an (exchange, asset) pair.
func (tc *TickCache) SetLatest(ctx context.Context, tick domain.LatestTick) error {
	data, err := json.Marshal(tick)
	if err != nil {
		return fmt.Errorf("redis: marshal tick %s/%s: %w", tick.Exchange, tick.Asset, err)
	}
	key := tickKey(tick.Exchange, tick.Asset)
	if err := tc.rdb.Set(ctx, key, data, tickTTL).Err(); err != nil {
		return fmt.Errorf("redis: set tick %s/%s: %w", tick.Exchange, tick.Asset, err)
	}
	return nil
}

// GetLatest retrieves the most recent tick for an (exchange, asset) pair.
// It returns domain.ErrNotFound when no tick has been published or the entry
// has expired.
func (tc *TickCache) GetLatest(ctx context.Context, exchange, asset string) (domain.LatestTick, error) {
	data, err := tc.rdb.Get(ctx, tickKey(exchange, asset)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.LatestTick{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.LatestTick{}, fmt.Errorf("redis: get tick %s/%s: %w", exchange, asset, err)
	}

	var tick domain.LatestTick
	if err := json.Unmarshal(data, &tick); err != nil {
		return domain.LatestTick{}, fmt.Errorf("redis: unmarshal tick %s/%s: %w", exchange, asset, err)
	}
	return tick, nil
}

// Compile-time interface check.
var _ domain.TickCache = (*TickCache)(nil)
