package tiling

import (
	"fmt"

	"github.com/paulmach/orb/maptile"
)

// TileIndex addresses one tile of a pyramid. It is comparable and is used
// directly as a map key by the cache, the provider and the layer.
type TileIndex struct {
	Level int `json:"level"`
	X     int `json:"x"`
	Y     int `json:"y"`
}

func NewTileIndex(level, x, y int) TileIndex {
	return TileIndex{Level: level, X: x, Y: y}
}

// Valid reports whether all components are non-negative.
func (i TileIndex) Valid() bool {
	return i.Level >= 0 && i.X >= 0 && i.Y >= 0
}

func (i TileIndex) String() string {
	return fmt.Sprintf("%d/%d/%d", i.Level, i.X, i.Y)
}

// FromMaptile converts an XYZ slippy-map tile into an index of a
// top-to-bottom Web Mercator pyramid.
func FromMaptile(t maptile.Tile) TileIndex {
	return TileIndex{Level: int(t.Z), X: int(t.X), Y: int(t.Y)}
}

// ToMaptile is the inverse of FromMaptile.
func ToMaptile(i TileIndex) maptile.Tile {
	return maptile.New(uint32(i.X), uint32(i.Y), maptile.Zoom(i.Level))
}
