package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/jaennil/guide_helper/backend/vtiles/internal/tiling"
	"github.com/jaennil/guide_helper/backend/vtiles/pkg/logger"
	"github.com/jaennil/guide_helper/backend/vtiles/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/singleflight"
)

type HTTPConfig struct {
	Timeout      time.Duration
	UserAgent    string
	MaxIdleConns int
}

// HTTPFetcher downloads tiles over HTTP. Concurrent fetches of the same URL
// share one upstream request.
type HTTPFetcher struct {
	resolve    URLResolver
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
	inflight   singleflight.Group
	logger     logger.Logger
}

func NewHTTPFetcher(resolve URLResolver, cfg HTTPConfig, l logger.Logger) *HTTPFetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	idle := cfg.MaxIdleConns
	if idle <= 0 {
		idle = 64
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = idle
	transport.MaxIdleConnsPerHost = idle

	return &HTTPFetcher{
		resolve: resolve,
		httpClient: &http.Client{
			Transport: transport,
		},
		timeout:   timeout,
		userAgent: cfg.UserAgent,
		logger:    logger.OrNop(l),
	}
}

var (
	_ Fetcher   = (*HTTPFetcher)(nil)
	_ Forgetter = (*HTTPFetcher)(nil)
)

func (f *HTTPFetcher) Fetch(ctx context.Context, index tiling.TileIndex) ([]byte, error) {
	url := f.resolve(index)

	ch := f.inflight.DoChan(url, func() (any, error) {
		// detached so one caller giving up does not fail the others
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
		defer cancel()
		return f.get(fetchCtx, url)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, tiling.NewTileError(classify(res.Err), index, res.Err)
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		kind := tiling.ErrFetchFailed
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = tiling.ErrTimeout
		}
		return nil, tiling.NewTileError(kind, index, ctx.Err())
	}
}

// Forget detaches later fetches of index from a download already in
// progress, so they go upstream again.
func (f *HTTPFetcher) Forget(index tiling.TileIndex) {
	f.inflight.Forget(f.resolve(index))
}

func (f *HTTPFetcher) get(ctx context.Context, url string) ([]byte, error) {
	f.logger.Debug("fetching from upstream", "url", url)
	metrics.TilesUpstreamRequests.Inc()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		metrics.TilesUpstreamErrors.WithLabelValues(kindLabel(err)).Inc()
		f.logger.Warn("failed to fetch from upstream", "url", url, "error", err)
		return nil, fmt.Errorf("failed to fetch tile from upstream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.TilesUpstreamErrors.WithLabelValues("status").Inc()
		f.logger.Warn("upstream returned non-200", "url", url, "status", resp.StatusCode)
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	tileData, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.TilesUpstreamErrors.WithLabelValues(kindLabel(err)).Inc()
		return nil, fmt.Errorf("failed to read tile data: %w", err)
	}
	if len(tileData) == 0 {
		metrics.TilesUpstreamErrors.WithLabelValues("empty").Inc()
		return nil, errors.New("upstream returned an empty body")
	}
	metrics.TilesUpstreamLatency.Observe(time.Since(start).Seconds())

	f.logger.Debug("fetched tile from upstream", "url", url, "size", len(tileData))
	return tileData, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func classify(err error) error {
	if isTimeout(err) {
		return tiling.ErrTimeout
	}
	return tiling.ErrFetchFailed
}

func kindLabel(err error) string {
	if isTimeout(err) {
		return "timeout"
	}
	return "transport"
}
