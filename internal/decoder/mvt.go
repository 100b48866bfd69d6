package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jaennil/guide_helper/backend/vtiles/internal/tiling"
	"github.com/jaennil/guide_helper/backend/vtiles/pkg/metrics"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/paulmach/orb/encoding/mvt"
)

const defaultMaxPayload = 64 << 20

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// MVTDecoder decodes Mapbox Vector Tiles. Gzip and zstd framed payloads are
// recognised by their magic bytes and inflated first.
type MVTDecoder struct {
	zstd       *zstd.Decoder
	maxPayload int64
}

func NewMVTDecoder() (*MVTDecoder, error) {
	zd, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(defaultMaxPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &MVTDecoder{
		zstd:       zd,
		maxPayload: defaultMaxPayload,
	}, nil
}

var _ Decoder = (*MVTDecoder)(nil)

// Decode never panics; a malformed payload yields an ErrDecodeFailed error.
// An empty payload is a valid tile without layers.
func (d *MVTDecoder) Decode(index tiling.TileIndex, data []byte) (tile *DecodedTile, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			tile, err = nil, fmt.Errorf("decoder panic: %v", r)
		}
		if err != nil {
			metrics.TilesDecodeFailures.Inc()
			err = tiling.NewTileError(tiling.ErrDecodeFailed, index, err)
			return
		}
		metrics.TilesDecodeLatency.Observe(time.Since(start).Seconds())
	}()

	raw, err := d.inflate(data)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return &DecodedTile{Index: index}, nil
	}

	layers, err := mvt.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal MVT data: %w", err)
	}

	tile = &DecodedTile{
		Index:  index,
		Layers: make([]Layer, 0, len(layers)),
	}
	for _, l := range layers {
		extent := l.Extent
		if extent == 0 {
			extent = mvt.DefaultExtent
		}
		layer := Layer{
			Name:     l.Name,
			Extent:   extent,
			Features: make([]Feature, 0, len(l.Features)),
		}
		for _, f := range l.Features {
			if f.Geometry == nil {
				continue
			}
			layer.Features = append(layer.Features, Feature{
				ID:         f.ID,
				Geometry:   f.Geometry,
				Properties: f.Properties,
			})
		}
		tile.Layers = append(tile.Layers, layer)
	}
	return tile, nil
}

func (d *MVTDecoder) inflate(data []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("invalid gzip payload: %w", err)
		}
		defer zr.Close()
		return d.readLimited(zr)
	case bytes.HasPrefix(data, zstdMagic):
		out, err := d.zstd.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("invalid zstd payload: %w", err)
		}
		if int64(len(out)) > d.maxPayload {
			return nil, errPayloadTooLarge
		}
		return out, nil
	default:
		return data, nil
	}
}

var errPayloadTooLarge = errors.New("inflated payload exceeds limit")

func (d *MVTDecoder) readLimited(r io.Reader) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, d.maxPayload+1))
	if err != nil {
		return nil, fmt.Errorf("failed to inflate payload: %w", err)
	}
	if int64(len(out)) > d.maxPayload {
		return nil, errPayloadTooLarge
	}
	return out, nil
}

func (d *MVTDecoder) Close() {
	d.zstd.Close()
}
