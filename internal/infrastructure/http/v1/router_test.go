package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/decoder"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/event"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/layer"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/provider"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/tiling"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/usecase"
	"github.com/jaennil/guide_helper/backend/vtiles/pkg/logger"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeMap struct {
	view        tiling.View
	viewErr     error
	clickErr    error
	submitted   []event.Event
	worldAt     orb.Point
	screenAt    orb.Point
	ready       map[tiling.TileIndex]bool
	invalidated []tiling.TileIndex
	style       *layer.Style
}

var house = layer.Hit{
	Layer: "buildings",
	Tile:  tiling.NewTileIndex(0, 0, 0),
	Feature: decoder.Feature{
		ID:         uint64(7),
		Geometry:   orb.Point{1, 1},
		Properties: geojson.Properties{"name": "house"},
	},
}

func (f *fakeMap) View() tiling.View { return f.view }

func (f *fakeMap) SetView(view tiling.View) error {
	if f.viewErr != nil {
		return f.viewErr
	}
	f.view = view
	return nil
}

func (f *fakeMap) Click(_ context.Context, button event.MouseButton, x, y float64) ([]layer.Hit, error) {
	if f.clickErr != nil {
		return nil, f.clickErr
	}
	f.submitted = append(f.submitted, event.NewClick(button, x, y))
	if button != event.ButtonLeft {
		return nil, nil
	}
	return []layer.Hit{house}, nil
}

func (f *fakeMap) Submit(_ context.Context, e event.Event) (event.Propagation, error) {
	f.submitted = append(f.submitted, e)
	return event.Stop, nil
}

func (f *fakeMap) FeaturesAtScreen(x, y float64) []layer.Hit {
	f.screenAt = orb.Point{x, y}
	return []layer.Hit{house}
}

func (f *fakeMap) FeaturesAtWorld(pos orb.Point) []layer.Hit {
	f.worldAt = pos
	return nil
}

func (f *fakeMap) Tiles() []provider.IndexState {
	return []provider.IndexState{{Index: tiling.NewTileIndex(0, 0, 0), State: "ready", Interest: 1}}
}

func (f *fakeMap) TileGeoJSON(index tiling.TileIndex) (*geojson.FeatureCollection, error) {
	if !f.ready[index] {
		return nil, usecase.ErrTileNotReady
	}
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{1, 2}))
	return fc, nil
}

func (f *fakeMap) InvalidateTile(_ context.Context, index tiling.TileIndex) error {
	f.invalidated = append(f.invalidated, index)
	return nil
}

func (f *fakeMap) Style() *layer.Style { return f.style }

func (f *fakeMap) UpdateStyle(style *layer.Style) error {
	f.style = style
	return nil
}

func (f *fakeMap) Frame() usecase.Frame {
	return usecase.Frame{Frames: 3, Tiles: 1, View: f.view}
}

func (f *fakeMap) Stats() provider.Stats {
	return provider.Stats{Ready: 1, TasksStarted: 1}
}

func newTestRouter(m *fakeMap) *gin.Engine {
	h := handler.NewHandler(validator.New(), m)
	return NewRouter(h, logger.NewNop(), false)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(&fakeMap{})
	w, _ := do(t, r, http.MethodGet, "/api/v1/healthz", nil)
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Fatalf("expected 200 OK, got %d %q", w.Code, w.Body.String())
	}
}

func TestMetrics(t *testing.T) {
	r := newTestRouter(&fakeMap{})
	w, _ := do(t, r, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("vtiles_requests_total")) {
		t.Fatal("expected tile metrics to be exported")
	}
}

func TestSetView(t *testing.T) {
	tests := []struct {
		name    string
		body    any
		viewErr error
		code    int
	}{
		{
			name: "valid",
			body: map[string]any{"center_x": 10, "center_y": 20, "resolution": 2, "width": 100, "height": 50},
			code: http.StatusOK,
		},
		{
			name: "zero resolution",
			body: map[string]any{"resolution": 0, "width": 100, "height": 50},
			code: http.StatusBadRequest,
		},
		{
			name: "not json",
			body: "view",
			code: http.StatusBadRequest,
		},
		{
			name:    "rejected by layer",
			body:    map[string]any{"resolution": 1, "width": 10, "height": 10},
			viewErr: errors.New("failed to compute tiles for view"),
			code:    http.StatusUnprocessableEntity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMap{viewErr: tt.viewErr}
			w, env := do(t, newTestRouter(m), http.MethodPut, "/api/v1/view", tt.body)
			if w.Code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
			if env.Success != (tt.code < 400) {
				t.Fatalf("unexpected success flag in %s", w.Body.String())
			}
		})
	}

	m := &fakeMap{}
	do(t, newTestRouter(m), http.MethodPut, "/api/v1/view", map[string]any{"center_x": 10, "center_y": 20, "resolution": 2, "width": 100, "height": 50})
	want := tiling.View{Center: orb.Point{10, 20}, Resolution: 2, Width: 100, Height: 50}
	if m.view != want {
		t.Fatalf("expected %+v, got %+v", want, m.view)
	}
}

func TestClick(t *testing.T) {
	m := &fakeMap{}
	r := newTestRouter(m)

	w, env := do(t, r, http.MethodPost, "/api/v1/events/click", map[string]any{"x": 5, "y": 6})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var hits []struct {
		Layer      string         `json:"layer"`
		Tile       string         `json:"tile"`
		Properties map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(env.Data, &hits); err != nil {
		t.Fatalf("failed to decode hits: %v", err)
	}
	if len(hits) != 1 || hits[0].Layer != "buildings" || hits[0].Tile != "0/0/0" || hits[0].Properties["name"] != "house" {
		t.Fatalf("unexpected hits %+v", hits)
	}

	w, _ = do(t, r, http.MethodPost, "/api/v1/events/click", map[string]any{"x": 5, "y": 6, "button": "thumb"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown button, got %d", w.Code)
	}

	m.clickErr = event.ErrQueueFull
	w, _ = do(t, r, http.MethodPost, "/api/v1/events/click", map[string]any{"x": 5, "y": 6})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for a full queue, got %d", w.Code)
	}

	m.clickErr = event.ErrQueueClosed
	w, _ = do(t, r, http.MethodPost, "/api/v1/events/click", map[string]any{"x": 5, "y": 6})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for a closed queue, got %d", w.Code)
	}
}

func TestEvent(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
		code int
		kind event.Kind
	}{
		{"scroll", map[string]any{"kind": "scroll", "x": 1, "y": 2, "delta": 1}, http.StatusOK, event.KindScroll},
		{"drag", map[string]any{"kind": "drag", "x": 1, "y": 2, "to_x": 5, "to_y": 5}, http.StatusOK, event.KindDrag},
		{"resize", map[string]any{"kind": "resize", "width": 640, "height": 480}, http.StatusOK, event.KindResize},
		{"resize without size", map[string]any{"kind": "resize"}, http.StatusBadRequest, ""},
		{"unknown kind", map[string]any{"kind": "pinch"}, http.StatusBadRequest, ""},
		{"missing kind", map[string]any{"x": 1}, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMap{}
			w, env := do(t, newTestRouter(m), http.MethodPost, "/api/v1/events", tt.body)
			if w.Code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
			if tt.code != http.StatusOK {
				if len(m.submitted) != 0 {
					t.Fatalf("expected nothing submitted, got %d events", len(m.submitted))
				}
				return
			}
			if len(m.submitted) != 1 || m.submitted[0].Kind() != tt.kind {
				t.Fatalf("expected one %s event, got %+v", tt.kind, m.submitted)
			}
			var resp struct {
				Propagation string `json:"propagation"`
			}
			if err := json.Unmarshal(env.Data, &resp); err != nil || resp.Propagation != event.Stop.String() {
				t.Fatalf("unexpected response %s", w.Body.String())
			}
		})
	}
}

func TestFeatures(t *testing.T) {
	m := &fakeMap{}
	r := newTestRouter(m)

	w, _ := do(t, r, http.MethodGet, "/api/v1/features?x=3&y=4", nil)
	if w.Code != http.StatusOK || m.screenAt != (orb.Point{3, 4}) {
		t.Fatalf("expected a screen lookup at (3, 4), got %d %v", w.Code, m.screenAt)
	}

	w, env := do(t, r, http.MethodGet, "/api/v1/features?x=100.5&y=-20&space=world", nil)
	if w.Code != http.StatusOK || m.worldAt != (orb.Point{100.5, -20}) {
		t.Fatalf("expected a world lookup, got %d %v", w.Code, m.worldAt)
	}
	if string(env.Data) != "[]" {
		t.Fatalf("expected an empty list, got %s", env.Data)
	}

	w, _ = do(t, r, http.MethodGet, "/api/v1/features?x=1&y=1&space=tile", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown space, got %d", w.Code)
	}
	w, _ = do(t, r, http.MethodGet, "/api/v1/features?x=left", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a non-numeric position, got %d", w.Code)
	}
}

func TestTile(t *testing.T) {
	m := &fakeMap{ready: map[tiling.TileIndex]bool{tiling.NewTileIndex(2, 1, 3): true}}
	r := newTestRouter(m)

	tests := []struct {
		path string
		code int
	}{
		{"/api/v1/tiles/2/1/3", http.StatusOK},
		{"/api/v1/tiles/2/1/2", http.StatusNotFound},
		{"/api/v1/tiles/a/1/2", http.StatusBadRequest},
		{"/api/v1/tiles/2/-1/2", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w, _ := do(t, r, http.MethodGet, tt.path, nil)
			if w.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, w.Code)
			}
		})
	}

	w, _ := do(t, r, http.MethodGet, "/api/v1/tiles/2/1/3", nil)
	fc, err := geojson.UnmarshalFeatureCollection(w.Body.Bytes())
	if err != nil {
		t.Fatalf("expected a feature collection: %v", err)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(fc.Features))
	}
}

func TestTilesAndStats(t *testing.T) {
	r := newTestRouter(&fakeMap{})

	w, env := do(t, r, http.MethodGet, "/api/v1/tiles", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var states []provider.IndexState
	if err := json.Unmarshal(env.Data, &states); err != nil || len(states) != 1 || states[0].State != "ready" {
		t.Fatalf("unexpected tiles %s", env.Data)
	}

	w, env = do(t, r, http.MethodGet, "/api/v1/stats", nil)
	var stats provider.Stats
	if err := json.Unmarshal(env.Data, &stats); err != nil || stats.Ready != 1 {
		t.Fatalf("unexpected stats %d %s", w.Code, env.Data)
	}

	w, env = do(t, r, http.MethodGet, "/api/v1/frame", nil)
	var frame usecase.Frame
	if err := json.Unmarshal(env.Data, &frame); err != nil || frame.Frames != 3 {
		t.Fatalf("unexpected frame %d %s", w.Code, env.Data)
	}
}

func TestInvalidateTile(t *testing.T) {
	m := &fakeMap{}
	r := newTestRouter(m)

	w, _ := do(t, r, http.MethodDelete, "/api/v1/tiles/4/5/6", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(m.invalidated) != 1 || m.invalidated[0] != tiling.NewTileIndex(4, 5, 6) {
		t.Fatalf("unexpected invalidations %v", m.invalidated)
	}

	w, _ = do(t, r, http.MethodDelete, "/api/v1/tiles/4/5/x", nil)
	if w.Code != http.StatusBadRequest || len(m.invalidated) != 1 {
		t.Fatalf("expected 400 and no invalidation, got %d", w.Code)
	}
}

func TestStyle(t *testing.T) {
	m := &fakeMap{style: layer.DefaultStyle()}
	r := newTestRouter(m)

	w, env := do(t, r, http.MethodGet, "/api/v1/style", nil)
	var style layer.Style
	if err := json.Unmarshal(env.Data, &style); err != nil || len(style.Rules) != len(layer.DefaultStyle().Rules) {
		t.Fatalf("unexpected style %d %s", w.Code, env.Data)
	}

	body := map[string]any{
		"background": "#000000",
		"rules":      []any{map[string]any{"layer": "roads", "paint": map[string]any{"stroke": "#ffffff", "width": 3}}},
	}
	w, _ = do(t, r, http.MethodPut, "/api/v1/style", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if m.style.Background != "#000000" || len(m.style.Rules) != 1 || m.style.Rules[0].Paint.Width != 3 {
		t.Fatalf("unexpected stored style %+v", m.style)
	}

	bad := map[string]any{
		"rules": []any{map[string]any{"layer": "roads", "paint": map[string]any{"width": -1}}},
	}
	w, _ = do(t, r, http.MethodPut, "/api/v1/style", bad)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a negative width, got %d", w.Code)
	}
	if m.style.Background != "#000000" {
		t.Fatal("expected the rejected style to be ignored")
	}

	bad = map[string]any{"default": map[string]any{"point_radius": -2}}
	w, _ = do(t, r, http.MethodPut, "/api/v1/style", bad)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a negative default radius, got %d", w.Code)
	}

	filtered := map[string]any{
		"rules":   []any{map[string]any{"layer": "buildings", "filter": map[string]any{"height": 1000000}, "paint": map[string]any{"fill": "#ff0000"}}},
		"default": map[string]any{"fill": "#cccccc"},
	}
	w, _ = do(t, r, http.MethodPut, "/api/v1/style", filtered)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	paint, drawn := m.style.PaintFor("buildings", geojson.Properties{"height": int64(1000000)})
	if !drawn || paint.Fill != "#ff0000" {
		t.Fatalf("expected the filtered rule to match, got %+v drawn=%v", paint, drawn)
	}
}
