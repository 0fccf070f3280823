package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"watchdash/internal/models"

	goredis "github.com/go-redis/redis/v8"
)

// RedisCache shares fetched bars between processes through Redis.
type RedisCache struct {
	client *goredis.Client
	prefix string
}

// NewRedisCache connects to addr and pings it once.
func NewRedisCache(ctx context.Context, addr, password string) (*RedisCache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisCache{client: client, prefix: "watchdash:"}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]models.Bar, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var bars []models.Bar
	if err := json.Unmarshal(raw, &bars); err != nil {
		return nil, false, fmt.Errorf("decode cached bars: %w", err)
	}
	return bars, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, bars []models.Bar, ttl time.Duration) error {
	raw, err := json.Marshal(bars)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, raw, ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
