package dto

import (
	"fmt"

	"github.com/jaennil/guide_helper/backend/vtiles/internal/event"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/layer"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/tiling"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type ViewRequest struct {
	CenterX    float64 `json:"center_x"`
	CenterY    float64 `json:"center_y"`
	Resolution float64 `json:"resolution" validate:"gt=0"`
	Width      int     `json:"width" validate:"min=1"`
	Height     int     `json:"height" validate:"min=1"`
}

func (r ViewRequest) View() tiling.View {
	return tiling.View{
		Center:     orb.Point{r.CenterX, r.CenterY},
		Resolution: r.Resolution,
		Width:      r.Width,
		Height:     r.Height,
	}
}

type ClickRequest struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Button string  `json:"button" validate:"omitempty,oneof=left middle right"`
}

// EventRequest carries one input event. Which fields matter depends on Kind.
type EventRequest struct {
	Kind   string  `json:"kind" validate:"required,oneof=click move scroll resize drag"`
	Button string  `json:"button" validate:"omitempty,oneof=left middle right"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Delta  float64 `json:"delta"`
	Width  int     `json:"width" validate:"required_if=Kind resize,min=0"`
	Height int     `json:"height" validate:"required_if=Kind resize,min=0"`
	ToX    float64 `json:"to_x"`
	ToY    float64 `json:"to_y"`
}

// Event builds the event described by r. Drag starts at (X, Y).
func (r EventRequest) Event() (event.Event, error) {
	button, err := event.ParseButton(r.Button)
	if err != nil {
		return nil, err
	}
	switch event.Kind(r.Kind) {
	case event.KindClick:
		return event.NewClick(button, r.X, r.Y), nil
	case event.KindMove:
		return event.NewMove(r.X, r.Y), nil
	case event.KindScroll:
		return event.NewScroll(r.X, r.Y, r.Delta), nil
	case event.KindResize:
		return event.NewResize(r.Width, r.Height), nil
	case event.KindDrag:
		return event.NewDrag(button, orb.Point{r.X, r.Y}, orb.Point{r.ToX, r.ToY}), nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", r.Kind)
	}
}

type FeaturesQuery struct {
	X     float64 `form:"x"`
	Y     float64 `form:"y"`
	Space string  `form:"space" validate:"omitempty,oneof=screen world"`
}

type HitResponse struct {
	Layer      string             `json:"layer"`
	Tile       string             `json:"tile"`
	ID         any                `json:"id,omitempty"`
	Properties geojson.Properties `json:"properties"`
}

func NewHitsResponse(hits []layer.Hit) []HitResponse {
	out := make([]HitResponse, 0, len(hits))
	for _, h := range hits {
		out = append(out, HitResponse{
			Layer:      h.Layer,
			Tile:       h.Tile.String(),
			ID:         h.Feature.ID,
			Properties: h.Feature.Properties,
		})
	}
	return out
}

type EventResponse struct {
	Propagation string `json:"propagation"`
}

type PaintRequest struct {
	Fill        string  `json:"fill"`
	Stroke      string  `json:"stroke"`
	Width       float64 `json:"width" validate:"min=0"`
	PointRadius float64 `json:"point_radius" validate:"min=0"`
	Hidden      bool    `json:"hidden"`
}

func (r PaintRequest) Paint() layer.Paint {
	return layer.Paint{
		Fill:        r.Fill,
		Stroke:      r.Stroke,
		Width:       r.Width,
		PointRadius: r.PointRadius,
		Hidden:      r.Hidden,
	}
}

type RuleRequest struct {
	Layer  string         `json:"layer"`
	Filter map[string]any `json:"filter"`
	Paint  PaintRequest   `json:"paint"`
}

// StyleRequest replaces the whole style. A missing default hides features
// no rule matches.
type StyleRequest struct {
	Background string        `json:"background"`
	Rules      []RuleRequest `json:"rules" validate:"dive"`
	Default    *PaintRequest `json:"default"`
}

func (r StyleRequest) Style() *layer.Style {
	style := &layer.Style{
		Background: r.Background,
		Rules:      make([]layer.Rule, 0, len(r.Rules)),
	}
	for _, rule := range r.Rules {
		style.Rules = append(style.Rules, layer.Rule{
			Layer:  rule.Layer,
			Filter: rule.Filter,
			Paint:  rule.Paint.Paint(),
		})
	}
	if r.Default != nil {
		p := r.Default.Paint()
		style.Default = &p
	}
	return style
}
