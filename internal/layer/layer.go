package layer

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/decoder"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/provider"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/tiling"
	"github.com/jaennil/guide_helper/backend/vtiles/pkg/logger"
	"github.com/jaennil/guide_helper/backend/vtiles/pkg/metrics"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// TileSource is the part of the provider the layer drives.
type TileSource interface {
	Request(index tiling.TileIndex) (*provider.Handle, error)
	PollReady() []provider.Completion
}

type Config struct {
	// RetainTiles is how many tiles that left the view stay loaded.
	RetainTiles int
	// HitTolerancePx widens feature lookups around the queried point.
	HitTolerancePx float64
}

// Hit is one feature under a queried position.
type Hit struct {
	Layer   string
	Feature decoder.Feature
	Tile    tiling.TileIndex
}

// Layer owns the decoded tiles of the current view and the active style.
// It is safe for use from several goroutines; one of them should call
// SetView and Update.
type Layer struct {
	pyramid     *tiling.Pyramid
	source      TileSource
	logger      logger.Logger
	tolerancePx float64

	mu       sync.RWMutex
	style    *Style
	view     tiling.View
	required map[tiling.TileIndex]struct{}
	handles  map[tiling.TileIndex]*provider.Handle
	tiles    map[tiling.TileIndex]*decoder.DecodedTile
	failures map[tiling.TileIndex]error
	retained *lru.Cache[tiling.TileIndex, struct{}]
}

func New(cfg Config, pyramid *tiling.Pyramid, source TileSource, style *Style, l logger.Logger) (*Layer, error) {
	if pyramid == nil || source == nil {
		return nil, errors.New("layer needs a pyramid and a tile source")
	}
	if style == nil {
		style = DefaultStyle()
	}

	layer := &Layer{
		pyramid:     pyramid,
		source:      source,
		logger:      logger.OrNop(l),
		tolerancePx: cfg.HitTolerancePx,
		style:       style.Clone(),
		required:    make(map[tiling.TileIndex]struct{}),
		handles:     make(map[tiling.TileIndex]*provider.Handle),
		tiles:       make(map[tiling.TileIndex]*decoder.DecodedTile),
		failures:    make(map[tiling.TileIndex]error),
	}

	if cfg.RetainTiles > 0 {
		retained, err := lru.NewWithEvict[tiling.TileIndex, struct{}](cfg.RetainTiles, layer.onEvict)
		if err != nil {
			return nil, fmt.Errorf("failed to create retention cache: %w", err)
		}
		layer.retained = retained
	}
	return layer, nil
}

// onEvict runs with l.mu held, from inside retained.Add or retained.Remove.
func (l *Layer) onEvict(index tiling.TileIndex, _ struct{}) {
	if _, ok := l.required[index]; ok {
		return
	}
	l.release(index)
}

// release gives the tile back to the provider. Caller holds l.mu.
func (l *Layer) release(index tiling.TileIndex) {
	if h, ok := l.handles[index]; ok {
		h.Cancel()
	}
	delete(l.handles, index)
	delete(l.tiles, index)
	delete(l.failures, index)
}

// UpdateStyle takes effect on the next Render or GetFeaturesAt. Loaded tiles
// are kept.
func (l *Layer) UpdateStyle(style *Style) error {
	if style == nil {
		return errors.New("style is nil")
	}
	l.mu.Lock()
	l.style = style.Clone()
	l.mu.Unlock()
	return nil
}

func (l *Layer) Style() *Style {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.style.Clone()
}

func (l *Layer) View() tiling.View {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.view
}

// SetView computes the tiles covering view, requests the missing ones and
// releases those no longer needed. Released tiles go to the retention margin
// first when one is configured. Failed tiles of the new set are requested
// again.
func (l *Layer) SetView(view tiling.View) error {
	if !(view.Resolution > 0) || view.Width <= 0 || view.Height <= 0 {
		return fmt.Errorf("invalid view: resolution %g, size %dx%d", view.Resolution, view.Width, view.Height)
	}
	level := l.pyramid.LevelFor(view.Resolution)
	need, err := l.pyramid.TilesIn(view.Bounds(), level)
	if err != nil {
		return fmt.Errorf("failed to compute tiles for view: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	previous := l.required
	l.view = view
	l.required = make(map[tiling.TileIndex]struct{}, len(need))
	for _, idx := range need {
		l.required[idx] = struct{}{}
	}

	requested := 0
	for _, idx := range need {
		if l.retained != nil {
			l.retained.Remove(idx)
		}
		if _, failed := l.failures[idx]; failed {
			l.retry(idx)
			requested++
			continue
		}
		if _, held := l.handles[idx]; held {
			continue
		}
		l.request(idx)
		requested++
	}

	dropped := 0
	for idx := range previous {
		if _, ok := l.required[idx]; ok {
			continue
		}
		dropped++
		if l.retained != nil {
			l.retained.Add(idx, struct{}{})
			continue
		}
		l.release(idx)
	}

	l.logger.Debug("view changed",
		"level", level,
		"required", len(need),
		"requested", requested,
		"dropped", dropped,
	)
	return nil
}

// request asks the provider for index. Caller holds l.mu.
func (l *Layer) request(index tiling.TileIndex) {
	h, err := l.source.Request(index)
	if err != nil {
		l.logger.Warn("tile request rejected", "tile", index.String(), "error", err)
		l.failures[index] = err
		return
	}
	l.handles[index] = h
	l.take(index, h)
}

// retry replaces a failed handle with a fresh one. The new request is made
// before the old handle is cancelled so the provider never forgets index in
// between.
func (l *Layer) retry(index tiling.TileIndex) {
	old := l.handles[index]
	delete(l.failures, index)
	delete(l.handles, index)
	l.request(index)
	if old != nil {
		old.Cancel()
	}
}

// Reload drops the tile at index and requests it again when it is still in
// view. Use it after the provider invalidated index.
func (l *Layer) Reload(index tiling.TileIndex) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, required := l.required[index]; !required {
		if l.retained != nil {
			l.retained.Remove(index)
		}
		l.release(index)
		return
	}
	old := l.handles[index]
	delete(l.handles, index)
	delete(l.tiles, index)
	delete(l.failures, index)
	l.request(index)
	if old != nil {
		old.Cancel()
	}
}

// take records a handle that finished before the layer polled for it, such
// as a tile already ready in the provider.
func (l *Layer) take(index tiling.TileIndex, h *provider.Handle) {
	tile, err := h.Result()
	switch {
	case errors.Is(err, provider.ErrNotReady):
	case err != nil:
		l.failures[index] = err
	default:
		l.tiles[index] = tile
	}
}

// Update moves finished tiles from the provider into the layer and returns
// how many changed. It never blocks.
func (l *Layer) Update() int {
	completions := l.source.PollReady()
	if len(completions) == 0 {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	changed := 0
	for _, c := range completions {
		if _, held := l.handles[c.Index]; !held {
			continue
		}
		changed++
		if c.Err != nil {
			l.failures[c.Index] = c.Err
			delete(l.tiles, c.Index)
			continue
		}
		l.tiles[c.Index] = c.Tile
		delete(l.failures, c.Index)
	}
	return changed
}

// Tiles lists the loaded tiles in render order.
func (l *Layer) Tiles() []tiling.TileIndex {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.renderOrder(nil)
}

func (l *Layer) Failures() map[tiling.TileIndex]error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[tiling.TileIndex]error, len(l.failures))
	for k, v := range l.failures {
		out[k] = v
	}
	return out
}

// renderOrder sorts loaded tiles back to front: coarser levels first, then
// rows and columns. With a non-nil filter only tiles it accepts are kept.
// Caller holds l.mu.
func (l *Layer) renderOrder(filter func(tiling.TileIndex) bool) []tiling.TileIndex {
	out := make([]tiling.TileIndex, 0, len(l.tiles))
	for idx := range l.tiles {
		if filter == nil || filter(idx) {
			out = append(out, idx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	return out
}

// Render issues draw calls for every loaded tile visible in view and returns
// the number of features drawn.
func (l *Layer) Render(view tiling.View, p Painter) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p.Clear(l.style.Background)
	visible := view.Bounds()

	drawn := 0
	order := l.renderOrder(func(idx tiling.TileIndex) bool {
		b, err := l.pyramid.TileBounds(idx)
		return err == nil && b.Intersects(visible)
	})
	for _, idx := range order {
		bounds, _ := l.pyramid.TileBounds(idx)
		for _, layer := range l.tiles[idx].Layers {
			toScreen := func(pt orb.Point) orb.Point {
				x, y := view.MapToScreen(decoder.ToWorld(pt, bounds, layer.Extent))
				return orb.Point{x, y}
			}
			for _, f := range layer.Features {
				paint, ok := l.style.PaintFor(layer.Name, f.Properties)
				if !ok {
					continue
				}
				p.DrawFeature(layer.Name, f, project.Geometry(orb.Clone(f.Geometry), toScreen), paint)
				drawn++
			}
		}
	}
	return drawn
}

// GetFeaturesAt returns the drawn features under the world position pos, in
// render order. The tile of the level view is displayed at answers when it
// is loaded. Until then the retained tiles of other levels drawn in its
// place are tested instead. Positions without a loaded tile yield no hits.
func (l *Layer) GetFeaturesAt(pos orb.Point, view tiling.View) []Hit {
	metrics.HitTestQueries.Inc()
	if !(view.Resolution > 0) {
		return nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	current := l.pyramid.LevelFor(view.Resolution)
	if idx, err := l.pyramid.TileAt(pos, current); err == nil {
		if _, ok := l.tiles[idx]; ok {
			return l.hitTile(idx, pos, view, nil)
		}
	}

	var out []Hit
	for _, level := range l.pyramid.Levels() {
		if level == current {
			continue
		}
		idx, err := l.pyramid.TileAt(pos, level)
		if err != nil {
			continue
		}
		if _, ok := l.tiles[idx]; ok {
			out = l.hitTile(idx, pos, view, out)
		}
	}
	return out
}

// hitTile appends the features of the loaded tile idx under pos to out.
// Caller holds l.mu.
func (l *Layer) hitTile(idx tiling.TileIndex, pos orb.Point, view tiling.View, out []Hit) []Hit {
	bounds, err := l.pyramid.TileBounds(idx)
	if err != nil {
		return out
	}
	for _, layer := range l.tiles[idx].Layers {
		local := decoder.ToLocal(pos, bounds, layer.Extent)
		// tile-local units per screen pixel
		scale := view.Resolution * float64(layer.Extent) / (bounds.Max.X() - bounds.Min.X())
		for _, f := range layer.Features {
			paint, ok := l.style.PaintFor(layer.Name, f.Properties)
			if !ok {
				continue
			}
			tol := (l.tolerancePx + slackPx(f.Geometry, paint)) * scale
			if hits(f.Geometry, local, tol) {
				out = append(out, Hit{Layer: layer.Name, Feature: f, Tile: idx})
			}
		}
	}
	return out
}

// slackPx is how far past its geometry a feature is drawn.
func slackPx(g orb.Geometry, paint Paint) float64 {
	switch g.Dimensions() {
	case 0:
		return paint.PointRadius
	default:
		return paint.Width / 2
	}
}

// Close releases every tile held by the layer.
func (l *Layer) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.required = make(map[tiling.TileIndex]struct{})
	if l.retained != nil {
		l.retained.Purge()
	}
	for idx := range l.handles {
		l.release(idx)
	}
}
