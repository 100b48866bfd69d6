package layer

import (
	"sync"

	"github.com/jaennil/guide_helper/backend/vtiles/internal/decoder"
	"github.com/paulmach/orb"
)

// Painter receives the draw calls of one frame, back to front. Geometries
// are already in screen pixels.
type Painter interface {
	Clear(background string)
	DrawFeature(layer string, feature decoder.Feature, screen orb.Geometry, paint Paint)
}

// FrameStats counts what one frame drew.
type FrameStats struct {
	Background string         `json:"background"`
	Features   int            `json:"features"`
	PerLayer   map[string]int `json:"per_layer"`
}

// FrameRecorder is a Painter that only counts draw calls. The control loop
// renders into it to report the last frame.
type FrameRecorder struct {
	mu    sync.Mutex
	stats FrameStats
}

func NewFrameRecorder() *FrameRecorder {
	return &FrameRecorder{stats: FrameStats{PerLayer: make(map[string]int)}}
}

func (r *FrameRecorder) Clear(background string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Background = background
	r.stats.Features = 0
	clear(r.stats.PerLayer)
}

func (r *FrameRecorder) DrawFeature(layer string, _ decoder.Feature, _ orb.Geometry, _ Paint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Features++
	r.stats.PerLayer[layer]++
}

func (r *FrameRecorder) Stats() FrameStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.stats
	out.PerLayer = make(map[string]int, len(r.stats.PerLayer))
	for k, v := range r.stats.PerLayer {
		out.PerLayer[k] = v
	}
	return out
}
