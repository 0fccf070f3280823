package marketdata

import (
	"context"
	"time"

	"watchdash/internal/models"

	"go.uber.org/zap"
)

// NewFromConfig builds the routed, cached fetcher described by cfg.
// The returned close function releases the cache connection, if any.
// An unreachable Redis degrades to the in-memory cache.
func NewFromConfig(ctx context.Context, cfg models.DataConfig, logger *zap.Logger) (Fetcher, func() error) {
	timeout := time.Duration(cfg.FetchTimeoutSec) * time.Second
	var f Fetcher = &Router{
		Equity: NewYahooFetcher("", timeout),
		Crypto: NewBinanceFetcher("", timeout),
	}
	noop := func() error { return nil }
	ttl := time.Duration(cfg.CacheTTLSec) * time.Second

	switch cfg.Cache {
	case "none":
		return f, noop
	case "redis":
		rc, err := NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err == nil {
			return NewCachedFetcher(f, rc, ttl, logger), rc.Close
		}
		logger.Warn("redis cache unavailable, falling back to memory", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	return NewCachedFetcher(f, NewMemoryCache(), ttl, logger), noop
}
