package cache

import (
	"context"

	"github.com/jaennil/guide_helper/backend/vtiles/internal/tiling"
)

// TileCache stores raw tile payloads by index. A miss is reported as
// ok == false with a nil error. Implementations are safe for concurrent use
// and never hold a lock across unrelated indices while doing I/O.
type TileCache interface {
	Get(ctx context.Context, index tiling.TileIndex) ([]byte, bool, error)
	Set(ctx context.Context, index tiling.TileIndex, data []byte) error
	Delete(ctx context.Context, index tiling.TileIndex) error
}

// NopCache never stores anything.
type NopCache struct{}

var _ TileCache = NopCache{}

func (NopCache) Get(context.Context, tiling.TileIndex) ([]byte, bool, error) { return nil, false, nil }
func (NopCache) Set(context.Context, tiling.TileIndex, []byte) error         { return nil }
func (NopCache) Delete(context.Context, tiling.TileIndex) error              { return nil }
