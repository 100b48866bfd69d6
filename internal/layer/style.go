package layer

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// Paint says how one feature is drawn. Sizes are in screen pixels.
type Paint struct {
	Fill        string  `json:"fill,omitempty"`
	Stroke      string  `json:"stroke,omitempty"`
	Width       float64 `json:"width,omitempty"`
	PointRadius float64 `json:"point_radius,omitempty"`
	Hidden      bool    `json:"hidden,omitempty"`
}

// Rule applies Paint to features of Layer whose properties carry every
// key/value pair of Filter. An empty Layer matches all layers.
type Rule struct {
	Layer  string         `json:"layer"`
	Filter map[string]any `json:"filter,omitempty"`
	Paint  Paint          `json:"paint"`
}

// Style is an ordered rule list. The first matching rule wins; features
// matched by no rule use Default, or are not drawn when Default is nil.
type Style struct {
	Background string `json:"background,omitempty"`
	Rules      []Rule `json:"rules"`
	Default    *Paint `json:"default,omitempty"`
}

func DefaultStyle() *Style {
	return &Style{
		Background: "#f2efe9",
		Rules: []Rule{
			{Layer: "water", Paint: Paint{Fill: "#aad3df"}},
			{Layer: "landuse", Paint: Paint{Fill: "#d8e8c8"}},
			{Layer: "buildings", Paint: Paint{Fill: "#d9d0c9", Stroke: "#b9a99d", Width: 1}},
			{Layer: "roads", Filter: map[string]any{"class": "primary"}, Paint: Paint{Stroke: "#f9b29c", Width: 4}},
			{Layer: "roads", Paint: Paint{Stroke: "#ffffff", Width: 2}},
			{Layer: "pois", Paint: Paint{Fill: "#734a08", PointRadius: 4}},
		},
		Default: &Paint{Fill: "#cccccc", Stroke: "#999999", Width: 1, PointRadius: 2},
	}
}

// Clone returns a deep copy so callers may keep editing their value.
func (s *Style) Clone() *Style {
	if s == nil {
		return nil
	}
	out := &Style{
		Background: s.Background,
		Rules:      make([]Rule, len(s.Rules)),
	}
	for i, r := range s.Rules {
		out.Rules[i] = r
		if r.Filter != nil {
			out.Rules[i].Filter = make(map[string]any, len(r.Filter))
			for k, v := range r.Filter {
				out.Rules[i].Filter[k] = v
			}
		}
	}
	if s.Default != nil {
		d := *s.Default
		out.Default = &d
	}
	return out
}

// PaintFor resolves the paint of one feature. ok is false when the feature
// is not drawn.
func (s *Style) PaintFor(layer string, props geojson.Properties) (Paint, bool) {
	for _, r := range s.Rules {
		if r.Layer != "" && r.Layer != layer {
			continue
		}
		if !matches(r.Filter, props) {
			continue
		}
		return r.Paint, !r.Paint.Hidden
	}
	if s.Default == nil {
		return Paint{}, false
	}
	return *s.Default, !s.Default.Hidden
}

// matches compares numbers by value, MVT integers decode as int64 or uint64
// while JSON filters arrive as float64. Other values compare by their
// printed form.
func matches(filter map[string]any, props geojson.Properties) bool {
	for k, want := range filter {
		got, ok := props[k]
		if !ok || !equal(got, want) {
			return false
		}
	}
	return true
}

func equal(a, b any) bool {
	x, xok := number(a)
	y, yok := number(b)
	if xok || yok {
		return xok && yok && x == y
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
