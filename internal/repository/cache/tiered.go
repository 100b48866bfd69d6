package cache

import (
	"context"
	"errors"
	"io"

	"github.com/jaennil/guide_helper/backend/vtiles/internal/tiling"
	"github.com/jaennil/guide_helper/backend/vtiles/pkg/logger"
)

// TieredCache puts a fast cache in front of a slow persistent one. Reads
// that miss the fast tier and hit the slow one are copied forward; writes go
// to both tiers.
type TieredCache struct {
	fast   TileCache
	slow   TileCache
	logger logger.Logger
}

func NewTieredCache(fast, slow TileCache, l logger.Logger) *TieredCache {
	return &TieredCache{
		fast:   fast,
		slow:   slow,
		logger: logger.OrNop(l),
	}
}

var _ TileCache = (*TieredCache)(nil)

func (c *TieredCache) Get(ctx context.Context, k tiling.TileIndex) ([]byte, bool, error) {
	data, ok, err := c.fast.Get(ctx, k)
	if err != nil {
		c.logger.Warn("fast tier get failed", "tile", k, "error", err)
	} else if ok {
		return data, true, nil
	}

	data, ok, err = c.slow.Get(ctx, k)
	if err != nil || !ok {
		return nil, false, err
	}

	if err := c.fast.Set(ctx, k, data); err != nil {
		c.logger.Warn("failed to promote tile to fast tier", "tile", k, "error", err)
	}
	return data, true, nil
}

// Set fails only when the slow tier rejects the write.
func (c *TieredCache) Set(ctx context.Context, k tiling.TileIndex, v []byte) error {
	if err := c.slow.Set(ctx, k, v); err != nil {
		return err
	}
	if err := c.fast.Set(ctx, k, v); err != nil {
		c.logger.Warn("fast tier set failed", "tile", k, "error", err)
	}
	return nil
}

func (c *TieredCache) Delete(ctx context.Context, k tiling.TileIndex) error {
	return errors.Join(c.fast.Delete(ctx, k), c.slow.Delete(ctx, k))
}

func (c *TieredCache) Close() error {
	return errors.Join(closeCache(c.fast), closeCache(c.slow))
}

func closeCache(c TileCache) error {
	if closer, ok := c.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
