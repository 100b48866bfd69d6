package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/event"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/layer"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/provider"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/tiling"
	"github.com/jaennil/guide_helper/backend/vtiles/pkg/logger"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var ErrTileNotReady = errors.New("tile is not loaded")

const clickResultsSize = 128

type MapConfig struct {
	FrameInterval time.Duration
	QueueSize     int
}

// MapUseCase is the control side of the map: it owns the event queue, runs
// the frame loop and answers the control API. The layer and the provider are
// shared with it explicitly.
type MapUseCase struct {
	pyramid  *tiling.Pyramid
	provider *provider.Provider
	layer    *layer.Layer
	logger   logger.Logger

	frameInterval time.Duration
	queue         *event.Queue
	dispatcher    *event.Dispatcher
	clicks        *lru.Cache[uuid.UUID, []layer.Hit]
	frame         *layer.FrameRecorder

	mu     sync.RWMutex
	cursor orb.Point
	frames uint64
}

func NewMapUseCase(
	cfg MapConfig,
	pyramid *tiling.Pyramid,
	p *provider.Provider,
	l *layer.Layer,
	log logger.Logger,
) (*MapUseCase, error) {
	clicks, err := lru.New[uuid.UUID, []layer.Hit](clickResultsSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create click results cache: %w", err)
	}
	interval := cfg.FrameInterval
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}

	uc := &MapUseCase{
		pyramid:       pyramid,
		provider:      p,
		layer:         l,
		logger:        logger.OrNop(log),
		frameInterval: interval,
		queue:         event.NewQueue(cfg.QueueSize),
		clicks:        clicks,
		frame:         layer.NewFrameRecorder(),
	}
	uc.dispatcher = event.NewDispatcher(
		event.HandlerFunc(uc.onViewEvent),
		event.HandlerFunc(uc.onMove),
		event.HandlerFunc(uc.onClick),
	)
	return uc, nil
}

// Dispatcher lets callers add handlers after the built-in ones.
func (uc *MapUseCase) Dispatcher() *event.Dispatcher {
	return uc.dispatcher
}

// Run is the control loop. Events are dispatched and finished tiles are
// taken from the provider on every frame tick or wake-up. It returns when
// ctx is done.
func (uc *MapUseCase) Run(ctx context.Context) {
	ticker := time.NewTicker(uc.frameInterval)
	defer ticker.Stop()
	defer uc.queue.Close()

	uc.logger.Info("control loop started", "frame_interval", uc.frameInterval)
	for {
		select {
		case <-ctx.Done():
			uc.logger.Info("control loop stopped")
			return
		case <-ticker.C:
		case <-uc.queue.Notify():
		case <-uc.provider.Notify():
		}
		uc.Step(ctx)
	}
}

// Step runs one iteration of the control loop and reports whether a frame
// was rendered.
func (uc *MapUseCase) Step(ctx context.Context) bool {
	dispatched := uc.queue.DispatchAll(ctx, uc.dispatcher)
	changed := uc.layer.Update()
	if dispatched == 0 && changed == 0 {
		return false
	}

	uc.layer.Render(uc.layer.View(), uc.frame)
	uc.mu.Lock()
	uc.frames++
	uc.mu.Unlock()
	return true
}

func (uc *MapUseCase) onViewEvent(_ context.Context, e event.Event) event.Propagation {
	view := uc.layer.View()
	switch e := e.(type) {
	case event.Resize:
		view.Width, view.Height = e.Width, e.Height
	case event.Scroll:
		view = view.Zoom(math.Pow(2, -e.Delta), e.Screen.X(), e.Screen.Y())
	case event.Drag:
		view = view.Pan(e.To.X()-e.From.X(), e.To.Y()-e.From.Y())
	default:
		return event.Propagate
	}

	if err := uc.layer.SetView(view); err != nil {
		uc.logger.Warn("view event rejected", "kind", e.Kind(), "error", err)
	}
	return event.Stop
}

func (uc *MapUseCase) onMove(_ context.Context, e event.Event) event.Propagation {
	move, ok := e.(event.Move)
	if !ok {
		return event.Propagate
	}
	pos := uc.layer.View().ScreenToMap(move.Screen.X(), move.Screen.Y())
	uc.mu.Lock()
	uc.cursor = pos
	uc.mu.Unlock()
	return event.Stop
}

// onClick answers a left click with the features under the cursor.
func (uc *MapUseCase) onClick(_ context.Context, e event.Event) event.Propagation {
	click, ok := e.(event.Click)
	if !ok || click.Button != event.ButtonLeft {
		return event.Propagate
	}

	view := uc.layer.View()
	pos := view.ScreenToMap(click.Screen.X(), click.Screen.Y())
	hits := uc.layer.GetFeaturesAt(pos, view)
	for _, h := range hits {
		uc.logger.Info("feature clicked", "layer", h.Layer, "properties", h.Feature.Properties)
	}
	uc.clicks.Add(click.ID, hits)
	return event.Stop
}

// Click queues a click and waits for the control loop to handle it.
func (uc *MapUseCase) Click(ctx context.Context, button event.MouseButton, x, y float64) ([]layer.Hit, error) {
	click := event.NewClick(button, x, y)
	if _, err := uc.queue.Submit(ctx, click); err != nil {
		return nil, fmt.Errorf("failed to dispatch click: %w", err)
	}
	hits, _ := uc.clicks.Peek(click.ID)
	uc.clicks.Remove(click.ID)
	return hits, nil
}

// Submit queues any event and waits until it was dispatched.
func (uc *MapUseCase) Submit(ctx context.Context, e event.Event) (event.Propagation, error) {
	return uc.queue.Submit(ctx, e)
}

func (uc *MapUseCase) SetView(view tiling.View) error {
	return uc.layer.SetView(view)
}

func (uc *MapUseCase) View() tiling.View {
	return uc.layer.View()
}

// Cursor is the world position of the last move event.
func (uc *MapUseCase) Cursor() orb.Point {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.cursor
}

// FeaturesAtScreen looks up features under a screen position of the current
// view.
func (uc *MapUseCase) FeaturesAtScreen(x, y float64) []layer.Hit {
	view := uc.layer.View()
	return uc.layer.GetFeaturesAt(view.ScreenToMap(x, y), view)
}

func (uc *MapUseCase) FeaturesAtWorld(pos orb.Point) []layer.Hit {
	return uc.layer.GetFeaturesAt(pos, uc.layer.View())
}

func (uc *MapUseCase) Tiles() []provider.IndexState {
	return uc.provider.Snapshot()
}

func (uc *MapUseCase) Stats() provider.Stats {
	return uc.provider.Stats()
}

// TileGeoJSON exports a ready tile in world coordinates.
func (uc *MapUseCase) TileGeoJSON(index tiling.TileIndex) (*geojson.FeatureCollection, error) {
	tile, ok := uc.provider.Get(index)
	if !ok {
		return nil, ErrTileNotReady
	}
	return tile.GeoJSON(uc.pyramid)
}

// InvalidateTile drops the cached and decoded copies of index. A tile still
// in view is fetched again.
func (uc *MapUseCase) InvalidateTile(ctx context.Context, index tiling.TileIndex) error {
	if err := uc.provider.Invalidate(ctx, index); err != nil {
		return err
	}
	uc.layer.Reload(index)
	return nil
}

func (uc *MapUseCase) Style() *layer.Style {
	return uc.layer.Style()
}

func (uc *MapUseCase) UpdateStyle(style *layer.Style) error {
	return uc.layer.UpdateStyle(style)
}

type Frame struct {
	layer.FrameStats
	Frames uint64      `json:"frames"`
	Tiles  int         `json:"tiles"`
	View   tiling.View `json:"view"`
}

// Frame describes the last rendered frame.
func (uc *MapUseCase) Frame() Frame {
	uc.mu.RLock()
	frames := uc.frames
	uc.mu.RUnlock()
	return Frame{
		FrameStats: uc.frame.Stats(),
		Frames:     frames,
		Tiles:      len(uc.layer.Tiles()),
		View:       uc.layer.View(),
	}
}
