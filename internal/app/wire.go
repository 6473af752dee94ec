package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	s3blob "github.com/mpaquette/depthmetrics/internal/blob/s3"
	"github.com/mpaquette/depthmetrics/internal/cache/redis"
	"github.com/mpaquette/depthmetrics/internal/collector"
	"github.com/mpaquette/depthmetrics/internal/config"
	"github.com/mpaquette/depthmetrics/internal/domain"
	"github.com/mpaquette/depthmetrics/internal/exchange"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Blob storage
	BlobReader domain.BlobReader
	BlobWriter domain.BlobWriter

	// TickCache is nil when redis.addr is empty.
	TickCache domain.TickCache

	// Pairs is the enabled (exchange, asset) polling grid, in deterministic
	// order.
	Pairs []collector.Pair
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Object storage (every mode touches the bucket) ---
	s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.Storage.Endpoint,
		Region:         cfg.Storage.Region,
		Bucket:         cfg.Storage.Bucket,
		AccessKey:      cfg.Storage.AccessKey,
		SecretKey:      cfg.Storage.SecretKey,
		UseSSL:         cfg.Storage.UseSSL,
		ForcePathStyle: cfg.Storage.ForcePathStyle,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: s3: %w", err)
	}
	closers = append(closers, func() { _ = s3Client.Close() })

	if err := s3Client.Health(ctx); err != nil {
		logger.WarnContext(ctx, "object storage health check failed; continuing",
			slog.Any("error", err))
	}

	deps.BlobReader = s3blob.NewReader(s3Client)
	deps.BlobWriter = s3blob.NewWriter(s3Client)

	// --- Redis (optional latest-tick cache) ---
	if cfg.Redis.Addr != "" {
		tickCache, err := redis.NewTickCache(ctx, redis.Config{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = tickCache.Close() })
		deps.TickCache = tickCache
	}

	// --- Exchange adapters ---
	pairs, err := buildPairs(cfg)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: exchanges: %w", err)
	}
	deps.Pairs = pairs

	return deps, cleanup, nil
}

// sortedExchanges returns the enabled exchange names in deterministic order.
func sortedExchanges(cfg *config.Config) []string {
	names := cfg.EnabledExchanges()
	sort.Strings(names)
	return names
}

// buildPairs expands the enabled exchanges against the configured assets into
// the polling grid, one adapter instance per exchange.
func buildPairs(cfg *config.Config) ([]collector.Pair, error) {
	names := sortedExchanges(cfg)

	var pairs []collector.Pair
	for _, name := range names {
		exCfg := cfg.Exchanges[name]
		adapter, err := exchange.New(name, exchange.Options{
			BaseURL: exCfg.BaseURL,
			Symbols: exCfg.Symbols,
		})
		if err != nil {
			return nil, err
		}
		for _, asset := range cfg.Collector.Assets {
			pairs = append(pairs, collector.Pair{
				Adapter:       adapter,
				Asset:         asset,
				Quote:         exCfg.Quote,
				FallbackQuote: exCfg.FallbackQuote,
			})
		}
	}
	return pairs, nil
}
