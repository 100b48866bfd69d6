package tiling

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
)

var squareBounds = orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1024, 1024}}

func squarePyramid(t *testing.T, dir VerticalDirection) *Pyramid {
	t.Helper()
	origin := orb.Point{0, 1024}
	if dir == BottomToTop {
		origin = orb.Point{0, 0}
	}
	p, err := NewPyramid(PyramidConfig{
		Origin:     origin,
		Bounds:     squareBounds,
		Lods:       []Lod{{Resolution: 4, Level: 0}, {Resolution: 1, Level: 1}},
		TileWidth:  256,
		TileHeight: 256,
		YDirection: dir,
	})
	if err != nil {
		t.Fatalf("NewPyramid: %v", err)
	}
	return p
}

func TestNewPyramidRejectsBadLadder(t *testing.T) {
	tests := []struct {
		name string
		lods []Lod
	}{
		{"empty", nil},
		{"equalResolution", []Lod{{4, 0}, {4, 1}}},
		{"increasingResolution", []Lod{{1, 0}, {4, 1}}},
		{"repeatedLevel", []Lod{{4, 0}, {2, 0}}},
		{"zeroResolution", []Lod{{4, 0}, {0, 1}}},
		{"negativeLevel", []Lod{{4, -1}}},
		{"topTooFine", []Lod{{1, 0}, {0.5, 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPyramid(PyramidConfig{
				Origin:     orb.Point{0, 1024},
				Bounds:     squareBounds,
				Lods:       tt.lods,
				TileWidth:  256,
				TileHeight: 256,
			})
			if !errors.Is(err, ErrInvalidLod) {
				t.Fatalf("expected ErrInvalidLod, got %v", err)
			}
		})
	}
}

func TestNewPyramidRejectsBadGeometry(t *testing.T) {
	base := PyramidConfig{
		Origin:     orb.Point{0, 1024},
		Bounds:     squareBounds,
		Lods:       []Lod{{4, 0}},
		TileWidth:  256,
		TileHeight: 256,
	}

	zeroTile := base
	zeroTile.TileWidth = 0
	if _, err := NewPyramid(zeroTile); err == nil {
		t.Fatal("expected error for zero tile width")
	}

	empty := base
	empty.Bounds = orb.Bound{Min: orb.Point{5, 5}, Max: orb.Point{5, 10}}
	if _, err := NewPyramid(empty); err == nil {
		t.Fatal("expected error for empty bounds")
	}

	badDir := base
	badDir.YDirection = VerticalDirection(7)
	if _, err := NewPyramid(badDir); err == nil {
		t.Fatal("expected error for unknown direction")
	}
}

func TestPyramidDefaultsCRS(t *testing.T) {
	p := squarePyramid(t, TopToBottom)
	if p.CRS() != EPSG3857 {
		t.Fatalf("expected %s, got %s", EPSG3857, p.CRS())
	}
	if p.MinLevel() != 0 || p.MaxLevel() != 1 {
		t.Fatalf("unexpected level range [%d..%d]", p.MinLevel(), p.MaxLevel())
	}
}

func TestTileAtVerticalDirection(t *testing.T) {
	tests := []struct {
		dir      VerticalDirection
		point    orb.Point
		wantRow  int
		wantCell orb.Bound
	}{
		{TopToBottom, orb.Point{10, 1000}, 0, orb.Bound{Min: orb.Point{0, 768}, Max: orb.Point{256, 1024}}},
		{TopToBottom, orb.Point{10, 10}, 3, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{256, 256}}},
		{BottomToTop, orb.Point{10, 10}, 0, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{256, 256}}},
		{BottomToTop, orb.Point{10, 1000}, 3, orb.Bound{Min: orb.Point{0, 768}, Max: orb.Point{256, 1024}}},
	}
	for _, tt := range tests {
		t.Run(tt.dir.String(), func(t *testing.T) {
			p := squarePyramid(t, tt.dir)
			idx, err := p.TileAt(tt.point, 1)
			if err != nil {
				t.Fatalf("TileAt: %v", err)
			}
			want := TileIndex{Level: 1, X: 0, Y: tt.wantRow}
			if idx != want {
				t.Fatalf("expected %s, got %s", want, idx)
			}
			b, err := p.TileBounds(idx)
			if err != nil {
				t.Fatalf("TileBounds: %v", err)
			}
			if b != tt.wantCell {
				t.Fatalf("expected bounds %v, got %v", tt.wantCell, b)
			}
		})
	}
}

func TestTileAtRoundTrip(t *testing.T) {
	offset := PyramidConfig{
		Bounds:     orb.Bound{Min: orb.Point{-500.5, 123.25}, Max: orb.Point{1700, 900}},
		Lods:       []Lod{{9, 0}, {3, 1}, {1, 2}, {0.37, 3}},
		TileWidth:  256,
		TileHeight: 192,
	}

	for _, dir := range []VerticalDirection{TopToBottom, BottomToTop} {
		t.Run("square/"+dir.String(), func(t *testing.T) {
			p := squarePyramid(t, dir)
			const steps = 40
			for level := p.MinLevel(); level <= p.MaxLevel(); level++ {
				for i := 0; i <= steps; i++ {
					for j := 0; j <= steps; j++ {
						pt := orb.Point{1024 * float64(i) / steps, 1024 * float64(j) / steps}
						assertRoundTrip(t, p, pt, level)
					}
				}
			}
		})

		t.Run("offset/"+dir.String(), func(t *testing.T) {
			cfg := offset
			cfg.YDirection = dir
			cfg.Origin = orb.Point{cfg.Bounds.Min.X(), cfg.Bounds.Max.Y()}
			if dir == BottomToTop {
				cfg.Origin = cfg.Bounds.Min
			}
			p, err := NewPyramid(cfg)
			if err != nil {
				t.Fatalf("NewPyramid: %v", err)
			}
			rng := rand.New(rand.NewSource(1))
			for n := 0; n < 2000; n++ {
				pt := orb.Point{
					cfg.Bounds.Min.X() + rng.Float64()*(cfg.Bounds.Max.X()-cfg.Bounds.Min.X()),
					cfg.Bounds.Min.Y() + rng.Float64()*(cfg.Bounds.Max.Y()-cfg.Bounds.Min.Y()),
				}
				assertRoundTrip(t, p, pt, n%4)
			}
		})
	}
}

func assertRoundTrip(t *testing.T, p *Pyramid, pt orb.Point, level int) {
	t.Helper()
	idx, err := p.TileAt(pt, level)
	if err != nil {
		t.Fatalf("TileAt(%v, %d): %v", pt, level, err)
	}
	b, err := p.TileBounds(idx)
	if err != nil {
		t.Fatalf("TileBounds(%s): %v", idx, err)
	}
	if !b.Contains(pt) {
		t.Fatalf("tile %s with bounds %v does not contain %v", idx, b, pt)
	}
}

func TestTileAtErrors(t *testing.T) {
	p := squarePyramid(t, TopToBottom)

	if _, err := p.TileAt(orb.Point{10, 10}, 5); !errors.Is(err, ErrInvalidLod) {
		t.Fatalf("expected ErrInvalidLod, got %v", err)
	}
	if _, err := p.TileAt(orb.Point{-1, 10}, 1); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
	if _, err := p.TileBounds(TileIndex{Level: 9}); !errors.Is(err, ErrInvalidLod) {
		t.Fatalf("expected ErrInvalidLod, got %v", err)
	}
	if _, err := p.TileBounds(TileIndex{Level: 1, X: -1}); err == nil {
		t.Fatal("expected error for negative column")
	}
}

func TestLevelFor(t *testing.T) {
	p := squarePyramid(t, TopToBottom)
	tests := []struct {
		resolution float64
		want       int
	}{
		{4, 0},
		{1, 1},
		{3, 0},
		{1.5, 1},
		{100, 0},
		{0.01, 1},
		{0, 1},
	}
	for _, tt := range tests {
		if got := p.LevelFor(tt.resolution); got != tt.want {
			t.Errorf("LevelFor(%g): expected %d, got %d", tt.resolution, tt.want, got)
		}
	}
}

func TestTilesIn(t *testing.T) {
	t.Run("topToBottom", func(t *testing.T) {
		p := squarePyramid(t, TopToBottom)
		got, err := p.TilesIn(orb.Bound{Min: orb.Point{300, 300}, Max: orb.Point{600, 600}}, 1)
		if err != nil {
			t.Fatalf("TilesIn: %v", err)
		}
		want := []TileIndex{{1, 1, 1}, {1, 2, 1}, {1, 1, 2}, {1, 2, 2}}
		assertIndices(t, want, got)
	})

	t.Run("alignedEdges", func(t *testing.T) {
		rect := orb.Bound{Min: orb.Point{256, 256}, Max: orb.Point{512, 512}}

		got, _ := squarePyramid(t, TopToBottom).TilesIn(rect, 1)
		assertIndices(t, []TileIndex{{1, 1, 2}}, got)

		got, _ = squarePyramid(t, BottomToTop).TilesIn(rect, 1)
		assertIndices(t, []TileIndex{{1, 1, 1}}, got)
	})

	t.Run("outside", func(t *testing.T) {
		p := squarePyramid(t, TopToBottom)
		got, err := p.TilesIn(orb.Bound{Min: orb.Point{2000, 2000}, Max: orb.Point{3000, 3000}}, 1)
		if err != nil {
			t.Fatalf("TilesIn: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("expected no tiles, got %v", got)
		}
	})

	t.Run("clipped", func(t *testing.T) {
		p := squarePyramid(t, BottomToTop)
		got, _ := p.TilesIn(orb.Bound{Min: orb.Point{-5000, -5000}, Max: orb.Point{5000, 5000}}, 1)
		if len(got) != 16 {
			t.Fatalf("expected 16 tiles, got %d", len(got))
		}
	})

	t.Run("coversExactlyOverlapping", func(t *testing.T) {
		rect := orb.Bound{Min: orb.Point{100, 700}, Max: orb.Point{900, 800}}
		for _, dir := range []VerticalDirection{TopToBottom, BottomToTop} {
			p := squarePyramid(t, dir)
			got, _ := p.TilesIn(rect, 1)
			listed := make(map[TileIndex]bool, len(got))
			for _, idx := range got {
				listed[idx] = true
			}
			for x := 0; x < 4; x++ {
				for y := 0; y < 4; y++ {
					idx := TileIndex{Level: 1, X: x, Y: y}
					b, _ := p.TileBounds(idx)
					if overlaps(b, rect) != listed[idx] {
						t.Fatalf("%s: tile %s overlap=%v listed=%v", dir, idx, overlaps(b, rect), listed[idx])
					}
				}
			}
		}
	})
}

func overlaps(a, b orb.Bound) bool {
	return a.Min.X() < b.Max.X() && b.Min.X() < a.Max.X() &&
		a.Min.Y() < b.Max.Y() && b.Min.Y() < a.Max.Y()
}

func assertIndices(t *testing.T, want, got []TileIndex) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestWebMercatorMatchesSlippyTiles(t *testing.T) {
	p, err := WebMercator(19, 256)
	if err != nil {
		t.Fatalf("WebMercator: %v", err)
	}
	points := []orb.Point{
		{37.6173, 55.7558},
		{-74.0060, 40.7128},
		{151.2093, -33.8688},
		{-0.1276, 51.5072},
	}
	for _, ll := range points {
		merc := project.WGS84.ToMercator(ll)
		for _, z := range []int{0, 3, 10, 15, 18} {
			got, err := p.TileAt(merc, z)
			if err != nil {
				t.Fatalf("TileAt(%v, %d): %v", ll, z, err)
			}
			want := FromMaptile(maptile.At(ll, maptile.Zoom(z)))
			if got != want {
				t.Errorf("%v at z%d: expected %s, got %s", ll, z, want, got)
			}
		}
	}
}

func TestWebMercatorLargeTiles(t *testing.T) {
	p, err := WebMercator(16, 1024)
	if err != nil {
		t.Fatalf("WebMercator: %v", err)
	}
	cols, rows, err := p.TileCount(2)
	if err != nil {
		t.Fatalf("TileCount: %v", err)
	}
	if cols != 4 || rows != 4 {
		t.Fatalf("expected 4x4 tiles at level 2, got %dx%d", cols, rows)
	}
	lod, _ := p.Lod(0)
	if math.Abs(lod.Resolution-webMercatorTopResolution/4) > 1e-9 {
		t.Fatalf("unexpected top resolution %g", lod.Resolution)
	}
}

func TestTileIndexMaptileConversion(t *testing.T) {
	idx := NewTileIndex(12, 2475, 1280)
	if got := FromMaptile(ToMaptile(idx)); got != idx {
		t.Fatalf("expected %s, got %s", idx, got)
	}
	if idx.String() != "12/2475/1280" {
		t.Fatalf("unexpected string %q", idx.String())
	}
}

func TestGalileoWebMercator(t *testing.T) {
	p, err := GalileoWebMercator()
	if err != nil {
		t.Fatalf("GalileoWebMercator: %v", err)
	}
	levels := p.Levels()
	if len(levels) != 16 || levels[0] != 0 || levels[15] != 15 {
		t.Fatalf("unexpected levels %v", levels)
	}
	if p.TileWidth() != 1024 || p.YDirection() != TopToBottom {
		t.Fatalf("unexpected tile scheme %dpx %s", p.TileWidth(), p.YDirection())
	}
}
