package tiling

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// VerticalDirection tells which way tile rows grow from the origin.
type VerticalDirection int

const (
	// TopToBottom rows grow southwards from an origin at the top edge (XYZ).
	TopToBottom VerticalDirection = iota
	// BottomToTop rows grow northwards from an origin at the bottom edge (TMS).
	BottomToTop
)

func (d VerticalDirection) String() string {
	switch d {
	case TopToBottom:
		return "top-to-bottom"
	case BottomToTop:
		return "bottom-to-top"
	default:
		return fmt.Sprintf("VerticalDirection(%d)", int(d))
	}
}

// CRS identifies the coordinate reference system of the world coordinates.
type CRS string

const (
	EPSG3857 CRS = "EPSG:3857"
	EPSG4326 CRS = "EPSG:4326"
)

// Lod is one rung of the level-of-detail ladder. Resolution is the size of
// one pixel in world units.
type Lod struct {
	Resolution float64
	Level      int
}

// NewHalvingLods builds n levels starting from top, each half the previous one.
func NewHalvingLods(top float64, n int) []Lod {
	lods := make([]Lod, 0, n)
	res := top
	for i := 0; i < n; i++ {
		lods = append(lods, Lod{Resolution: res, Level: i})
		res /= 2
	}
	return lods
}

type PyramidConfig struct {
	Origin     orb.Point
	Bounds     orb.Bound
	Lods       []Lod
	TileWidth  int
	TileHeight int
	YDirection VerticalDirection
	CRS        CRS
}

// Pyramid is the immutable tile scheme: world origin and bounds, the LOD
// ladder and the tile size in pixels.
type Pyramid struct {
	origin     orb.Point
	bounds     orb.Bound
	lods       []Lod
	tileWidth  int
	tileHeight int
	yDirection VerticalDirection
	crs        CRS
}

// relative slack for float comparisons against tile edges
const edgeEpsilon = 1e-9

func NewPyramid(cfg PyramidConfig) (*Pyramid, error) {
	if cfg.TileWidth <= 0 || cfg.TileHeight <= 0 {
		return nil, fmt.Errorf("tile size must be positive, got %dx%d", cfg.TileWidth, cfg.TileHeight)
	}
	if cfg.Bounds.Max.X() <= cfg.Bounds.Min.X() || cfg.Bounds.Max.Y() <= cfg.Bounds.Min.Y() {
		return nil, fmt.Errorf("pyramid bounds are empty: %v", cfg.Bounds)
	}
	if cfg.YDirection != TopToBottom && cfg.YDirection != BottomToTop {
		return nil, fmt.Errorf("unknown vertical direction %v", cfg.YDirection)
	}
	if len(cfg.Lods) == 0 {
		return nil, fmt.Errorf("%w: empty level ladder", ErrInvalidLod)
	}

	for i, lod := range cfg.Lods {
		if lod.Level < 0 {
			return nil, fmt.Errorf("%w: negative level %d", ErrInvalidLod, lod.Level)
		}
		if !(lod.Resolution > 0) || math.IsInf(lod.Resolution, 0) {
			return nil, fmt.Errorf("%w: level %d has resolution %g", ErrInvalidLod, lod.Level, lod.Resolution)
		}
		if i == 0 {
			continue
		}
		prev := cfg.Lods[i-1]
		if lod.Level <= prev.Level {
			return nil, fmt.Errorf("%w: level %d follows level %d", ErrInvalidLod, lod.Level, prev.Level)
		}
		if lod.Resolution >= prev.Resolution {
			return nil, fmt.Errorf("%w: resolution %g at level %d is not below %g at level %d",
				ErrInvalidLod, lod.Resolution, lod.Level, prev.Resolution, prev.Level)
		}
	}

	top := cfg.Lods[0]
	width := cfg.Bounds.Max.X() - cfg.Bounds.Min.X()
	height := cfg.Bounds.Max.Y() - cfg.Bounds.Min.Y()
	if top.Resolution*float64(cfg.TileWidth)*(1+edgeEpsilon) < width ||
		top.Resolution*float64(cfg.TileHeight)*(1+edgeEpsilon) < height {
		return nil, fmt.Errorf("%w: level %d needs more than one tile per axis to cover the bounds",
			ErrInvalidLod, top.Level)
	}

	lods := make([]Lod, len(cfg.Lods))
	copy(lods, cfg.Lods)

	crs := cfg.CRS
	if crs == "" {
		crs = EPSG3857
	}

	return &Pyramid{
		origin:     cfg.Origin,
		bounds:     cfg.Bounds,
		lods:       lods,
		tileWidth:  cfg.TileWidth,
		tileHeight: cfg.TileHeight,
		yDirection: cfg.YDirection,
		crs:        crs,
	}, nil
}

const (
	webMercatorHalfExtent = 20037508.342789244
	// resolution of a single 256px tile covering the whole Web Mercator square
	webMercatorTopResolution = 156543.03392800014
)

// WebMercator returns the usual XYZ scheme over EPSG:3857 with the given
// number of levels and square tile size.
func WebMercator(levels, tileSize int) (*Pyramid, error) {
	if tileSize <= 0 {
		return nil, fmt.Errorf("tile size must be positive, got %d", tileSize)
	}
	top := webMercatorTopResolution * 256 / float64(tileSize)
	return NewPyramid(PyramidConfig{
		Origin: orb.Point{-webMercatorHalfExtent, webMercatorHalfExtent},
		Bounds: orb.Bound{
			Min: orb.Point{-webMercatorHalfExtent, -webMercatorHalfExtent},
			Max: orb.Point{webMercatorHalfExtent, webMercatorHalfExtent},
		},
		Lods:       NewHalvingLods(top, levels),
		TileWidth:  tileSize,
		TileHeight: tileSize,
		YDirection: TopToBottom,
		CRS:        EPSG3857,
	})
}

// GalileoWebMercator is Web Mercator with 16 levels of 1024 px tiles.
func GalileoWebMercator() (*Pyramid, error) {
	return WebMercator(16, 1024)
}

func (p *Pyramid) Origin() orb.Point             { return p.origin }
func (p *Pyramid) Bounds() orb.Bound             { return p.bounds }
func (p *Pyramid) TileWidth() int                { return p.tileWidth }
func (p *Pyramid) TileHeight() int               { return p.tileHeight }
func (p *Pyramid) YDirection() VerticalDirection { return p.yDirection }
func (p *Pyramid) CRS() CRS                      { return p.crs }
func (p *Pyramid) MinLevel() int                 { return p.lods[0].Level }
func (p *Pyramid) MaxLevel() int                 { return p.lods[len(p.lods)-1].Level }

// Lods returns a copy of the ladder, coarsest first.
func (p *Pyramid) Lods() []Lod {
	lods := make([]Lod, len(p.lods))
	copy(lods, p.lods)
	return lods
}

func (p *Pyramid) Levels() []int {
	levels := make([]int, len(p.lods))
	for i, lod := range p.lods {
		levels[i] = lod.Level
	}
	return levels
}

func (p *Pyramid) Lod(level int) (Lod, error) {
	i := sort.Search(len(p.lods), func(i int) bool { return p.lods[i].Level >= level })
	if i == len(p.lods) || p.lods[i].Level != level {
		return Lod{}, fmt.Errorf("%w: level %d is not in the ladder [%d..%d]",
			ErrInvalidLod, level, p.MinLevel(), p.MaxLevel())
	}
	return p.lods[i], nil
}

// LevelFor picks the level whose resolution is nearest to resolution on a
// logarithmic scale. Values outside the ladder clamp to its ends.
func (p *Pyramid) LevelFor(resolution float64) int {
	if !(resolution > 0) {
		return p.MaxLevel()
	}
	best := p.lods[0]
	bestDist := math.Inf(1)
	for _, lod := range p.lods {
		d := math.Abs(math.Log2(lod.Resolution / resolution))
		if d < bestDist {
			best, bestDist = lod, d
		}
	}
	return best.Level
}

// TileSpan is the world-space width and height of one tile at level.
func (p *Pyramid) TileSpan(level int) (float64, float64, error) {
	lod, err := p.Lod(level)
	if err != nil {
		return 0, 0, err
	}
	return lod.Resolution * float64(p.tileWidth), lod.Resolution * float64(p.tileHeight), nil
}

// TileCount is the number of columns and rows needed to cover the bounds at level.
func (p *Pyramid) TileCount(level int) (int, int, error) {
	w, h, err := p.TileSpan(level)
	if err != nil {
		return 0, 0, err
	}
	cols := int(math.Ceil((p.bounds.Max.X()-p.origin.X())/w - edgeEpsilon))
	var rows int
	if p.yDirection == TopToBottom {
		rows = int(math.Ceil((p.origin.Y()-p.bounds.Min.Y())/h - edgeEpsilon))
	} else {
		rows = int(math.Ceil((p.bounds.Max.Y()-p.origin.Y())/h - edgeEpsilon))
	}
	return max(cols, 1), max(rows, 1), nil
}

func (p *Pyramid) colMin(col int, w float64) float64 {
	return p.origin.X() + float64(col)*w
}

// rowExtent returns the lower and upper world Y of a row.
func (p *Pyramid) rowExtent(row int, h float64) (float64, float64) {
	if p.yDirection == TopToBottom {
		top := p.origin.Y() - float64(row)*h
		return top - h, top
	}
	bottom := p.origin.Y() + float64(row)*h
	return bottom, bottom + h
}

func (p *Pyramid) rowOf(y, h float64) int {
	if p.yDirection == TopToBottom {
		return int(math.Floor((p.origin.Y() - y) / h))
	}
	return int(math.Floor((y - p.origin.Y()) / h))
}

// TileAt returns the index of the tile at level that contains point.
func (p *Pyramid) TileAt(point orb.Point, level int) (TileIndex, error) {
	w, h, err := p.TileSpan(level)
	if err != nil {
		return TileIndex{}, err
	}
	if !p.bounds.Contains(point) {
		return TileIndex{}, fmt.Errorf("%w: %v", ErrOutOfBounds, point)
	}
	cols, rows, _ := p.TileCount(level)

	col := int(math.Floor((point.X() - p.origin.X()) / w))
	row := p.rowOf(point.Y(), h)
	if col < 0 || row < 0 {
		return TileIndex{}, fmt.Errorf("%w: %v lies before the origin %v", ErrOutOfBounds, point, p.origin)
	}

	col = min(col, cols-1)
	row = min(row, rows-1)

	// snap to the same arithmetic TileBounds uses so the round trip is exact
	if x := p.colMin(col, w); point.X() < x && col > 0 {
		col--
	} else if point.X() > x+w && col+1 < cols {
		col++
	}

	lo, hi := p.rowExtent(row, h)
	north, south := point.Y() > hi, point.Y() < lo
	step := 0
	switch {
	case north && p.yDirection == TopToBottom, south && p.yDirection == BottomToTop:
		step = -1
	case south && p.yDirection == TopToBottom, north && p.yDirection == BottomToTop:
		step = 1
	}
	if r := row + step; r >= 0 && r < rows {
		row = r
	}

	return TileIndex{Level: level, X: col, Y: row}, nil
}

// TileBounds returns the world rectangle covered by index.
func (p *Pyramid) TileBounds(index TileIndex) (orb.Bound, error) {
	if !index.Valid() {
		return orb.Bound{}, fmt.Errorf("invalid tile index %s", index)
	}
	w, h, err := p.TileSpan(index.Level)
	if err != nil {
		return orb.Bound{}, err
	}
	minX := p.colMin(index.X, w)
	minY, maxY := p.rowExtent(index.Y, h)
	return orb.Bound{
		Min: orb.Point{minX, minY},
		Max: orb.Point{minX + w, maxY},
	}, nil
}

// TilesIn lists, row by row, the indices at level whose footprint
// intersects rect. Parts of rect outside the pyramid bounds are ignored.
func (p *Pyramid) TilesIn(rect orb.Bound, level int) ([]TileIndex, error) {
	w, h, err := p.TileSpan(level)
	if err != nil {
		return nil, err
	}
	if !rect.Intersects(p.bounds) {
		return nil, nil
	}
	clipped := orb.Bound{
		Min: orb.Point{math.Max(rect.Min.X(), p.bounds.Min.X()), math.Max(rect.Min.Y(), p.bounds.Min.Y())},
		Max: orb.Point{math.Min(rect.Max.X(), p.bounds.Max.X()), math.Min(rect.Max.Y(), p.bounds.Max.Y())},
	}
	cols, rows, _ := p.TileCount(level)

	minCol := int(math.Floor((clipped.Min.X() - p.origin.X()) / w))
	maxCol := int(math.Ceil((clipped.Max.X()-p.origin.X())/w)) - 1

	var minRow, maxRow int
	if p.yDirection == TopToBottom {
		minRow = int(math.Floor((p.origin.Y() - clipped.Max.Y()) / h))
		maxRow = int(math.Ceil((p.origin.Y()-clipped.Min.Y())/h)) - 1
	} else {
		minRow = int(math.Floor((clipped.Min.Y() - p.origin.Y()) / h))
		maxRow = int(math.Ceil((clipped.Max.Y()-p.origin.Y())/h)) - 1
	}

	minCol, maxCol = clampRange(minCol, maxCol, cols)
	minRow, maxRow = clampRange(minRow, maxRow, rows)

	indices := make([]TileIndex, 0, (maxCol-minCol+1)*(maxRow-minRow+1))
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			indices = append(indices, TileIndex{Level: level, X: col, Y: row})
		}
	}
	return indices, nil
}

func clampRange(lo, hi, n int) (int, int) {
	lo = min(max(lo, 0), n-1)
	hi = min(max(hi, lo), n-1)
	return lo, hi
}
