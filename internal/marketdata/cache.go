package marketdata

import (
	"context"
	"strings"
	"sync"
	"time"

	"watchdash/internal/models"

	"go.uber.org/zap"
)

// Cache stores fetched bar series under a key until the ttl expires.
type Cache interface {
	Get(ctx context.Context, key string) ([]models.Bar, bool, error)
	Set(ctx context.Context, key string, bars []models.Bar, ttl time.Duration) error
}

// CacheKey identifies a series by (symbol, period, interval).
func CacheKey(symbol, period, interval string) string {
	return strings.Join([]string{"bars", symbol, period, interval}, ":")
}

type memoryEntry struct {
	bars    []models.Bar
	expires time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]models.Bar, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return append([]models.Bar(nil), e.bars...), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, bars []models.Bar, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{
		bars:    append([]models.Bar(nil), bars...),
		expires: c.now().Add(ttl),
	}
	return nil
}

// CachedFetcher memoizes a Fetcher. Cache errors fall through to a direct fetch,
// and failed fetches are never cached.
type CachedFetcher struct {
	next   Fetcher
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedFetcher(next Fetcher, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedFetcher {
	return &CachedFetcher{next: next, cache: cache, ttl: ttl, logger: logger}
}

func (c *CachedFetcher) FetchBars(ctx context.Context, symbol, period, interval string) ([]models.Bar, error) {
	key := CacheKey(symbol, period, interval)
	bars, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("bar cache read failed", zap.String("symbol", symbol), zap.Error(err))
	} else if ok {
		return bars, nil
	}

	bars, err = c.next.FetchBars(ctx, symbol, period, interval)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, bars, c.ttl); err != nil {
		c.logger.Warn("bar cache write failed", zap.String("symbol", symbol), zap.Error(err))
	}
	return bars, nil
}
