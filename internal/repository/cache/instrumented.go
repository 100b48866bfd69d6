package cache

import (
	"context"

	"github.com/jaennil/guide_helper/backend/vtiles/internal/tiling"
	"github.com/jaennil/guide_helper/backend/vtiles/pkg/metrics"
)

// Instrumented counts hits, misses and failed writes of the wrapped cache
// under the given backend label.
type Instrumented struct {
	name  string
	inner TileCache
}

func NewInstrumented(name string, inner TileCache) *Instrumented {
	return &Instrumented{
		name:  name,
		inner: inner,
	}
}

var _ TileCache = (*Instrumented)(nil)

func (c *Instrumented) Get(ctx context.Context, k tiling.TileIndex) ([]byte, bool, error) {
	data, ok, err := c.inner.Get(ctx, k)
	if err == nil {
		if ok {
			metrics.TilesCacheHits.WithLabelValues(c.name).Inc()
		} else {
			metrics.TilesCacheMisses.WithLabelValues(c.name).Inc()
		}
	}
	return data, ok, err
}

func (c *Instrumented) Set(ctx context.Context, k tiling.TileIndex, v []byte) error {
	err := c.inner.Set(ctx, k, v)
	if err != nil {
		metrics.TilesCacheStoreErrors.WithLabelValues(c.name).Inc()
	}
	return err
}

func (c *Instrumented) Delete(ctx context.Context, k tiling.TileIndex) error {
	return c.inner.Delete(ctx, k)
}

func (c *Instrumented) Name() string {
	return c.name
}

func (c *Instrumented) Close() error {
	return closeCache(c.inner)
}
