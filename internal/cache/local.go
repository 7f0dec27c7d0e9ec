package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/bluele/gcache"
)

// LocalCache is an in-process LRU cache with per-entry expiration. Values
// are stored as JSON so callers never share memory with the cache.
type LocalCache struct {
	lru    gcache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewLocalCache keeps at most size entries; ttl is the default expiration.
func NewLocalCache(size int, ttl time.Duration, logger *slog.Logger) *LocalCache {
	return &LocalCache{
		lru: gcache.New(size).
			LRU().
			Expiration(ttl).
			Build(),
		ttl:    ttl,
		logger: logger.With("component", "local_cache"),
	}
}

func (c *LocalCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	return c.lru.SetWithExpire(key, value, ttl)
}

func (c *LocalCache) Get(_ context.Context, key string) ([]byte, error) {
	v, err := c.lru.Get(key)
	if errors.Is(err, gcache.KeyNotFoundError) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	data, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected cache value %T for %s", v, key)
	}
	return data, nil
}

func (c *LocalCache) Delete(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

func (c *LocalCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	return c.Set(ctx, key, data, ttl)
}

func (c *LocalCache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.Get(ctx, key)
	if err != nil || data == nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("json unmarshal: %w", err)
	}
	return true, nil
}

// DeletePattern removes keys matching a glob pattern (path.Match syntax).
func (c *LocalCache) DeletePattern(_ context.Context, pattern string) error {
	deleted := 0
	for _, k := range c.lru.Keys(false) {
		key, ok := k.(string)
		if !ok {
			continue
		}
		matched, err := path.Match(pattern, key)
		if err != nil {
			return fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if matched && c.lru.Remove(key) {
			deleted++
		}
	}
	c.logger.Debug("cache pattern deleted", "pattern", pattern, "keys", deleted)
	return nil
}

func (c *LocalCache) Len() int {
	return c.lru.Len(true)
}
