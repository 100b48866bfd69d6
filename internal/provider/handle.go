package provider

import (
	"context"
	"sync"

	"github.com/jaennil/guide_helper/backend/vtiles/internal/decoder"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/tiling"
)

// Handle is one consumer's interest in a tile. Cancelling it releases that
// interest; the tile itself stays shared with other holders.
type Handle struct {
	Index tiling.TileIndex

	provider *Provider
	task     *task
	gen      uint64
	once     sync.Once
}

// Done is closed when the task this handle is attached to has finished.
func (h *Handle) Done() <-chan struct{} {
	return h.task.done
}

// Result returns the decoded tile or the task error, or ErrNotReady while the
// task is still running.
func (h *Handle) Result() (*decoder.DecodedTile, error) {
	select {
	case <-h.task.done:
		return h.task.tile, h.task.err
	default:
		return nil, ErrNotReady
	}
}

// Wait blocks until the task finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (*decoder.DecodedTile, error) {
	select {
	case <-h.task.done:
		return h.task.tile, h.task.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel is idempotent. It has no effect once the index was evicted or
// invalidated after the handle was issued.
func (h *Handle) Cancel() {
	h.once.Do(func() {
		h.provider.release(h.Index, h.gen)
	})
}
