package decoder

import (
	"github.com/jaennil/guide_helper/backend/vtiles/internal/tiling"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
)

// Decoder turns the raw payload of one tile into layers of features. It is
// pure: decoding the same bytes twice gives structurally identical tiles.
type Decoder interface {
	Decode(index tiling.TileIndex, data []byte) (*DecodedTile, error)
}

// Feature geometry is in tile-local coordinates: x to the right, y down,
// both in [0, Extent] of the owning layer.
type Feature struct {
	ID         any
	Geometry   orb.Geometry
	Properties geojson.Properties
}

type Layer struct {
	Name     string
	Extent   uint32
	Features []Feature
}

// DecodedTile is read-only once it leaves the decoder.
type DecodedTile struct {
	Index  tiling.TileIndex
	Layers []Layer
}

// Layer returns the named layer, or nil.
func (t *DecodedTile) Layer(name string) *Layer {
	for i := range t.Layers {
		if t.Layers[i].Name == name {
			return &t.Layers[i]
		}
	}
	return nil
}

func (t *DecodedTile) LayerNames() []string {
	names := make([]string, len(t.Layers))
	for i, l := range t.Layers {
		names[i] = l.Name
	}
	return names
}

func (t *DecodedTile) FeatureCount() int {
	n := 0
	for _, l := range t.Layers {
		n += len(l.Features)
	}
	return n
}

// ToWorld maps a tile-local point of a layer with the given extent to world
// coordinates inside bounds.
func ToWorld(p orb.Point, bounds orb.Bound, extent uint32) orb.Point {
	e := float64(extent)
	return orb.Point{
		bounds.Min.X() + p.X()/e*(bounds.Max.X()-bounds.Min.X()),
		bounds.Max.Y() - p.Y()/e*(bounds.Max.Y()-bounds.Min.Y()),
	}
}

// ToLocal is the inverse of ToWorld.
func ToLocal(p orb.Point, bounds orb.Bound, extent uint32) orb.Point {
	e := float64(extent)
	return orb.Point{
		(p.X() - bounds.Min.X()) / (bounds.Max.X() - bounds.Min.X()) * e,
		(bounds.Max.Y() - p.Y()) / (bounds.Max.Y() - bounds.Min.Y()) * e,
	}
}

// GeoJSON exports the tile in world coordinates of pyramid. Each feature
// gets a "layer" property naming its source layer.
func (t *DecodedTile) GeoJSON(pyramid *tiling.Pyramid) (*geojson.FeatureCollection, error) {
	bounds, err := pyramid.TileBounds(t.Index)
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	for _, l := range t.Layers {
		toWorld := func(p orb.Point) orb.Point {
			return ToWorld(p, bounds, l.Extent)
		}
		for _, f := range l.Features {
			if f.Geometry == nil {
				continue
			}
			out := geojson.NewFeature(project.Geometry(orb.Clone(f.Geometry), toWorld))
			out.ID = f.ID
			if f.Properties != nil {
				out.Properties = f.Properties.Clone()
			}
			out.Properties["layer"] = l.Name
			fc.Append(out)
		}
	}
	return fc, nil
}
