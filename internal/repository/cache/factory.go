package cache

import (
	"fmt"

	"github.com/jaennil/guide_helper/backend/vtiles/pkg/config"
	"github.com/jaennil/guide_helper/backend/vtiles/pkg/logger"
)

// New builds the cache backend selected by cfg.Cache.Backend, wrapped with
// metrics. The result implements io.Closer when the backend holds resources;
// use Close to release it.
func New(cfg *config.Config, l logger.Logger) (TileCache, error) {
	backend := cfg.Cache.Backend

	var (
		c   TileCache
		err error
	)
	if backend == "tiered" {
		c, err = newTiered(cfg, l)
	} else {
		c, err = newBackend(backend, cfg, l)
	}
	if err != nil {
		return nil, err
	}

	l.Info("tile cache ready", "backend", backend)
	return NewInstrumented(backend, c), nil
}

func newTiered(cfg *config.Config, l logger.Logger) (TileCache, error) {
	fast, err := newBackend("memory", cfg, l)
	if err != nil {
		return nil, err
	}
	slow, err := newBackend(cfg.Cache.Slow, cfg, l)
	if err != nil {
		closeCache(fast)
		return nil, err
	}
	return NewTieredCache(fast, slow, l), nil
}

func newBackend(name string, cfg *config.Config, l logger.Logger) (TileCache, error) {
	switch name {
	case "none", "":
		return NopCache{}, nil
	case "map":
		return NewMapCache(), nil
	case "memory":
		return NewMemoryCache(MemoryConfig{
			SizeMB: cfg.Cache.MemoryMB,
			TTL:    cfg.Cache.MemoryTTL,
		})
	case "filesystem":
		return NewFilesystemCache(cfg.Cache.Dir, l)
	case "sqlite":
		return NewSQLiteCache(cfg.Cache.SQLitePath, l)
	case "redis":
		return NewRedisCache(RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
	default:
		return nil, fmt.Errorf("unknown cache backend %q", name)
	}
}

// Close releases c if it holds resources.
func Close(c TileCache) error {
	return closeCache(c)
}
