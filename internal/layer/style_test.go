package layer

import (
	"testing"

	"github.com/paulmach/orb/geojson"
)

func TestPaintFor(t *testing.T) {
	style := &Style{
		Rules: []Rule{
			{Layer: "roads", Filter: map[string]any{"class": "primary"}, Paint: Paint{Stroke: "primary"}},
			{Layer: "roads", Filter: map[string]any{"lanes": float64(4)}, Paint: Paint{Stroke: "wide"}},
			{Layer: "roads", Filter: map[string]any{"class": "path"}, Paint: Paint{Hidden: true}},
			{Layer: "roads", Paint: Paint{Stroke: "road"}},
			{Layer: "buildings", Filter: map[string]any{"height": float64(1000000)}, Paint: Paint{Stroke: "tall"}},
			{Paint: Paint{Fill: "any"}},
		},
	}

	tests := []struct {
		name  string
		layer string
		props geojson.Properties
		want  string
		drawn bool
	}{
		{name: "first match wins", layer: "roads", props: geojson.Properties{"class": "primary", "lanes": int64(4)}, want: "primary", drawn: true},
		{name: "numeric filter", layer: "roads", props: geojson.Properties{"lanes": uint64(4)}, want: "wide", drawn: true},
		{name: "hidden", layer: "roads", props: geojson.Properties{"class": "path"}, drawn: false},
		{name: "layer fallback", layer: "roads", props: nil, want: "road", drawn: true},
		{name: "catch all", layer: "water", props: nil, want: "any", drawn: true},
		{name: "large integer filter", layer: "buildings", props: geojson.Properties{"height": int64(1000000)}, want: "tall", drawn: true},
		{name: "large unsigned filter", layer: "buildings", props: geojson.Properties{"height": uint64(1000000)}, want: "tall", drawn: true},
		{name: "number never matches string", layer: "buildings", props: geojson.Properties{"height": "1000000"}, want: "any", drawn: true},
		{name: "different number", layer: "buildings", props: geojson.Properties{"height": int64(1000001)}, want: "any", drawn: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paint, drawn := style.PaintFor(tt.layer, tt.props)
			if drawn != tt.drawn {
				t.Fatalf("expected drawn=%v, got %v", tt.drawn, drawn)
			}
			if !drawn {
				return
			}
			got := paint.Stroke + paint.Fill
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestPaintForDefault(t *testing.T) {
	style := &Style{Rules: []Rule{{Layer: "water", Paint: Paint{Fill: "blue"}}}}
	if _, drawn := style.PaintFor("roads", nil); drawn {
		t.Fatal("expected unmatched features to be skipped without a default")
	}

	style.Default = &Paint{Fill: "grey"}
	paint, drawn := style.PaintFor("roads", nil)
	if !drawn || paint.Fill != "grey" {
		t.Fatalf("expected the default paint, got %+v drawn=%v", paint, drawn)
	}
}

func TestStyleClone(t *testing.T) {
	orig := DefaultStyle()
	clone := orig.Clone()

	clone.Rules[3].Filter["class"] = "secondary"
	clone.Default.Fill = "#000000"
	clone.Rules = append(clone.Rules, Rule{Layer: "extra"})

	if orig.Rules[3].Filter["class"] != "primary" {
		t.Fatal("expected filters to be copied")
	}
	if orig.Default.Fill == "#000000" {
		t.Fatal("expected the default paint to be copied")
	}
	if len(orig.Rules) != 6 {
		t.Fatalf("expected 6 rules, got %d", len(orig.Rules))
	}
	if (*Style)(nil).Clone() != nil {
		t.Fatal("expected nil clone of nil style")
	}
}
