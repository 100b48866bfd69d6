package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/tiling"
)

type MemoryConfig struct {
	SizeMB int
	TTL    time.Duration
}

// MemoryCache is a sharded in-process byte cache with a hard size limit.
// Entries older than the TTL are dropped on the next clean window.
type MemoryCache struct {
	cache *bigcache.BigCache
}

func NewMemoryCache(cfg MemoryConfig) (*MemoryCache, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	size := cfg.SizeMB
	if size <= 0 {
		size = 64
	}

	c, err := bigcache.New(context.Background(), bigcache.Config{
		Shards:             64,
		LifeWindow:         ttl,
		CleanWindow:        ttl / 2,
		MaxEntriesInWindow: 1024,
		MaxEntrySize:       64 * 1024,
		HardMaxCacheSize:   size,
		Verbose:            false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	return &MemoryCache{cache: c}, nil
}

var _ TileCache = (*MemoryCache)(nil)

func (c *MemoryCache) Get(_ context.Context, k tiling.TileIndex) ([]byte, bool, error) {
	data, err := c.cache.Get(k.String())
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (c *MemoryCache) Set(_ context.Context, k tiling.TileIndex, v []byte) error {
	return c.cache.Set(k.String(), v)
}

func (c *MemoryCache) Delete(_ context.Context, k tiling.TileIndex) error {
	err := c.cache.Delete(k.String())
	if err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (c *MemoryCache) Len() int {
	return c.cache.Len()
}

func (c *MemoryCache) Close() error {
	return c.cache.Close()
}
