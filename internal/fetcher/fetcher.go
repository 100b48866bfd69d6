package fetcher

import (
	"context"
	"strconv"
	"strings"

	"github.com/jaennil/guide_helper/backend/vtiles/internal/tiling"
)

// Fetcher retrieves the raw payload of one tile. Implementations return
// either the complete payload or an error, never a partial body.
type Fetcher interface {
	Fetch(ctx context.Context, index tiling.TileIndex) ([]byte, error)
}

// Forgetter is implemented by fetchers that share in-flight downloads. Forget
// makes the next Fetch of index start a new download.
type Forgetter interface {
	Forget(index tiling.TileIndex)
}

// URLResolver maps a tile index to the URL it is downloaded from. It must be
// pure: the same index always yields the same URL.
type URLResolver func(index tiling.TileIndex) string

// TemplateResolver substitutes {z}, {x} and {y} in template. {-y} is the row
// counted from the other edge, which turns an XYZ pyramid into a TMS URL and
// the other way round. Row counts come from pyramid, or 2^z when it is nil.
func TemplateResolver(template string, pyramid *tiling.Pyramid) URLResolver {
	return func(index tiling.TileIndex) string {
		r := strings.NewReplacer(
			"{z}", strconv.Itoa(index.Level),
			"{x}", strconv.Itoa(index.X),
			"{y}", strconv.Itoa(index.Y),
			"{-y}", strconv.Itoa(rowsAt(pyramid, index.Level)-1-index.Y),
		)
		return r.Replace(template)
	}
}

func rowsAt(p *tiling.Pyramid, level int) int {
	if p != nil {
		if _, rows, err := p.TileCount(level); err == nil {
			return rows
		}
	}
	return 1 << level
}
