package cache

import (
	"context"
	"sync"

	"github.com/jaennil/guide_helper/backend/vtiles/internal/tiling"
)

type MapCache struct {
	m *TypedSyncMap
}

type TypedSyncMap struct {
	m sync.Map
}

func (c *TypedSyncMap) Load(k tiling.TileIndex) ([]byte, bool) {
	v, exists := c.m.Load(k)
	if !exists {
		return nil, false
	}
	return v.([]byte), exists
}

func (c *TypedSyncMap) Store(k tiling.TileIndex, v []byte) {
	c.m.Store(k, v)
}

func (c *TypedSyncMap) Delete(k tiling.TileIndex) {
	c.m.Delete(k)
}

func (c *TypedSyncMap) Len() int {
	n := 0
	c.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func NewMapCache() *MapCache {
	return &MapCache{
		m: &TypedSyncMap{},
	}
}

var _ TileCache = (*MapCache)(nil)

func (c *MapCache) Get(_ context.Context, k tiling.TileIndex) ([]byte, bool, error) {
	v, exists := c.m.Load(k)
	return v, exists, nil
}

// Set keeps its own copy so callers may reuse data.
func (c *MapCache) Set(_ context.Context, k tiling.TileIndex, v []byte) error {
	c.m.Store(k, append([]byte(nil), v...))
	return nil
}

func (c *MapCache) Delete(_ context.Context, k tiling.TileIndex) error {
	c.m.Delete(k)
	return nil
}

func (c *MapCache) Len() int {
	return c.m.Len()
}
