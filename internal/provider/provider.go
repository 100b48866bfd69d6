package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jaennil/guide_helper/backend/vtiles/internal/decoder"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/fetcher"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/tiling"
	"github.com/jaennil/guide_helper/backend/vtiles/pkg/logger"
	"github.com/jaennil/guide_helper/backend/vtiles/pkg/metrics"
	"github.com/jaennil/guide_helper/backend/vtiles/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

type Config struct {
	// Workers bounds the number of pipeline tasks running at once.
	Workers int
	// CompletionBuffer is the initial capacity of the completion queue.
	CompletionBuffer int
	// FetchTimeout bounds one upstream fetch. Zero leaves it to the fetcher.
	FetchTimeout time.Duration
}

// Provider turns tile indices into decoded tiles in the background. Each
// index has at most one pipeline task at a time; requests for an index that
// is already in flight attach to the running task.
type Provider struct {
	pyramid *tiling.Pyramid
	cache   cache.TileCache
	fetcher fetcher.Fetcher
	decoder decoder.Decoder
	logger  logger.Logger

	fetchTimeout time.Duration
	workers      *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	entries   map[tiling.TileIndex]*entry
	completed []completionRecord
	closed    bool
	gen       uint64
	started   uint64
	discarded uint64

	notify chan struct{}
}

type completionRecord struct {
	index tiling.TileIndex
	task  *task
}

// New builds a provider. pyramid may be nil, in which case levels are not
// checked on request.
func New(
	cfg Config,
	pyramid *tiling.Pyramid,
	c cache.TileCache,
	f fetcher.Fetcher,
	d decoder.Decoder,
	l logger.Logger,
) *Provider {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if c == nil {
		c = cache.NopCache{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Provider{
		pyramid:      pyramid,
		cache:        c,
		fetcher:      f,
		decoder:      d,
		logger:       logger.OrNop(l),
		fetchTimeout: cfg.FetchTimeout,
		workers:      semaphore.NewWeighted(int64(workers)),
		ctx:          ctx,
		cancel:       cancel,
		entries:      make(map[tiling.TileIndex]*entry),
		completed:    make([]completionRecord, 0, max(cfg.CompletionBuffer, 0)),
		notify:       make(chan struct{}, 1),
	}
}

// Request registers one unit of interest in index. The returned handle is
// already done when the tile is ready; otherwise it is attached to the task
// that will produce it.
func (p *Provider) Request(index tiling.TileIndex) (*Handle, error) {
	if err := p.checkIndex(index); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	metrics.TilesRequests.Inc()

	e, ok := p.entries[index]
	switch {
	case !ok:
		p.gen++
		e = &entry{gen: p.gen}
		p.entries[index] = e
		p.schedule(index, e, nil)
	case e.state == StateFailed:
		p.schedule(index, e, nil)
	case e.stale:
		// the invalidated task still runs; the fresh one starts after it
		e.stale = false
		p.schedule(index, e, e.task)
	default:
		metrics.TilesRequestsAttached.Inc()
	}
	e.interest++

	return &Handle{Index: index, provider: p, task: e.task, gen: e.gen}, nil
}

func (p *Provider) checkIndex(index tiling.TileIndex) error {
	if !index.Valid() {
		return fmt.Errorf("invalid tile index %s", index)
	}
	if p.pyramid == nil {
		return nil
	}
	if _, err := p.pyramid.Lod(index.Level); err != nil {
		return tiling.NewTileError(tiling.ErrInvalidLod, index, err)
	}
	return nil
}

// schedule starts a new task for e. With a non-nil prev the task waits for
// prev to finish first, so an index never has two tasks running. Caller
// holds p.mu.
func (p *Provider) schedule(index tiling.TileIndex, e *entry, prev *task) {
	t := newTask()
	e.state = StateInFlight
	e.task = t
	p.started++
	metrics.TilesInFlight.Inc()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if prev != nil {
			select {
			case <-prev.done:
			case <-p.ctx.Done():
				p.complete(index, t, nil, tiling.NewTileError(tiling.ErrFetchFailed, index, ErrClosed))
				return
			}
		}
		if err := p.workers.Acquire(p.ctx, 1); err != nil {
			p.complete(index, t, nil, tiling.NewTileError(tiling.ErrFetchFailed, index, ErrClosed))
			return
		}
		defer p.workers.Release(1)

		if !p.begin(index, t) {
			return
		}
		tile, err := p.load(p.ctx, index, t)
		p.complete(index, t, tile, err)
	}()
}

// begin reports whether t should run. A task nobody waits for any more, or
// one invalidated before it started, is finished here without fetching. The
// check and the removal share one critical section so a concurrent Request
// either attaches before it or creates a fresh entry.
func (p *Provider) begin(index tiling.TileIndex, t *task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[index]
	current := ok && e.task == t
	if current && !e.stale && e.interest > 0 {
		return true
	}

	t.err = ErrInvalidated
	if current {
		if !e.stale {
			t.err = errAbandoned
		}
		delete(p.entries, index)
	}
	close(t.done)
	p.discarded++
	metrics.TilesInFlight.Dec()
	metrics.TilesDiscarded.Inc()
	return false
}

var errAbandoned = errors.New("task abandoned before start")

// owns reports whether t is still the live task of index.
func (p *Provider) owns(index tiling.TileIndex, t *task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[index]
	return ok && e.task == t && !e.stale
}

// load is the pipeline body: cache, then upstream, then decode.
func (p *Provider) load(ctx context.Context, index tiling.TileIndex, t *task) (*decoder.DecodedTile, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "tile.pipeline",
		trace.WithAttributes(attribute.String("tile.index", index.String())),
	)
	defer span.End()

	data, hit := p.cacheGet(ctx, index)
	span.SetAttributes(attribute.Bool("tile.cache_hit", hit))

	if !hit {
		var err error
		data, err = p.fetch(ctx, index)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "fetch failed")
			return nil, err
		}
		p.cachePut(ctx, index, t, data)
	}

	tile, err := p.decode(ctx, index, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		if hit {
			// drop the bad entry so the next request goes upstream
			if derr := p.cache.Delete(ctx, index); derr != nil {
				p.logger.Warn("failed to drop undecodable cache entry", "tile", index.String(), "error", derr)
			}
		}
		return nil, err
	}
	return tile, nil
}

func (p *Provider) cacheGet(ctx context.Context, index tiling.TileIndex) ([]byte, bool) {
	ctx, span := telemetry.Tracer().Start(ctx, "tile.cache_get")
	defer span.End()

	data, ok, err := p.cache.Get(ctx, index)
	if err != nil {
		span.RecordError(err)
		p.logger.Warn("cache read failed, treating as miss", "tile", index.String(), "error", err)
		return nil, false
	}
	if ok {
		p.logger.Debug("tile served from cache", "tile", index.String())
	}
	return data, ok
}

func (p *Provider) fetch(ctx context.Context, index tiling.TileIndex) ([]byte, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "tile.fetch")
	defer span.End()

	if p.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.fetchTimeout)
		defer cancel()
	}

	data, err := p.fetcher.Fetch(ctx, index)
	if err == nil {
		span.SetAttributes(attribute.Int("tile.size", len(data)))
		return data, nil
	}

	span.RecordError(err)
	var tileErr *tiling.TileError
	if errors.As(err, &tileErr) {
		return nil, err
	}
	kind := tiling.ErrFetchFailed
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = tiling.ErrTimeout
	}
	return nil, tiling.NewTileError(kind, index, err)
}

// cachePut stores freshly fetched bytes unless index was invalidated while
// they were in transit. A failure is logged and the tile is still delivered.
func (p *Provider) cachePut(ctx context.Context, index tiling.TileIndex, t *task, data []byte) {
	ctx, span := telemetry.Tracer().Start(ctx, "tile.cache_put")
	defer span.End()

	if !p.owns(index, t) {
		span.SetAttributes(attribute.Bool("tile.stale", true))
		p.logger.Debug("skipping cache write of invalidated tile", "tile", index.String())
		return
	}
	if err := p.cache.Set(ctx, index, data); err != nil {
		err = tiling.NewTileError(tiling.ErrCacheWriteFailed, index, err)
		span.RecordError(err)
		p.logger.Warn("cache write failed", "tile", index.String(), "error", err)
		return
	}
	// Invalidate may have cleared the cache between the check and the write.
	// A successor task cannot have started yet, so removing the bytes again
	// only removes ours.
	if !p.owns(index, t) {
		if err := p.cache.Delete(ctx, index); err != nil {
			p.logger.Warn("failed to drop invalidated cache entry", "tile", index.String(), "error", err)
		}
	}
}

func (p *Provider) decode(ctx context.Context, index tiling.TileIndex, data []byte) (tile *decoder.DecodedTile, err error) {
	_, span := telemetry.Tracer().Start(ctx, "tile.decode")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			tile = nil
			err = tiling.NewTileError(tiling.ErrDecodeFailed, index, fmt.Errorf("decoder panic: %v", r))
		}
	}()

	tile, err = p.decoder.Decode(index, data)
	if err != nil && !errors.Is(err, tiling.ErrDecodeFailed) {
		err = tiling.NewTileError(tiling.ErrDecodeFailed, index, err)
	}
	return tile, err
}

// complete publishes a task result. The entry changes state, the result is
// queued and the task's done channel is closed in one critical section, so
// readers see either the in-flight entry or the finished one.
func (p *Provider) complete(index tiling.TileIndex, t *task, tile *decoder.DecodedTile, err error) {
	p.mu.Lock()

	metrics.TilesInFlight.Dec()
	t.tile, t.err = tile, err

	e, ok := p.entries[index]
	switch {
	case !ok || e.task != t:
		// superseded by a task started after invalidation
		t.tile, t.err = nil, ErrInvalidated
		p.discarded++
		metrics.TilesDiscarded.Inc()
	case e.stale:
		t.tile, t.err = nil, ErrInvalidated
		delete(p.entries, index)
		p.discarded++
		metrics.TilesDiscarded.Inc()
	case e.interest == 0:
		delete(p.entries, index)
		p.discarded++
		metrics.TilesDiscarded.Inc()
		p.logger.Debug("discarding result nobody waits for", "tile", index.String())
	case err != nil:
		e.state = StateFailed
		p.completed = append(p.completed, completionRecord{index: index, task: t})
	default:
		e.state = StateReady
		metrics.TilesReady.Inc()
		p.completed = append(p.completed, completionRecord{index: index, task: t})
	}
	close(t.done)
	p.mu.Unlock()

	if err != nil && !errors.Is(t.err, ErrInvalidated) {
		p.logger.Warn("tile task failed", "tile", index.String(), "error", err)
	}

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// PollReady drains the completions recorded since the previous call, in
// completion order. It never blocks. Completions for indices that were
// cancelled or invalidated in the meantime are skipped.
func (p *Provider) PollReady() []Completion {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.completed) == 0 {
		return nil
	}
	out := make([]Completion, 0, len(p.completed))
	for _, rec := range p.completed {
		e, ok := p.entries[rec.index]
		if !ok || e.task != rec.task {
			continue
		}
		out = append(out, Completion{Index: rec.index, Tile: rec.task.tile, Err: rec.task.err})
	}
	clear(p.completed)
	p.completed = p.completed[:0]
	return out
}

// Notify returns a channel that receives after a task completes. Wake-ups are
// coalesced; the consumer should call PollReady on every receive.
func (p *Provider) Notify() <-chan struct{} {
	return p.notify
}

// Cancel releases one unit of interest in index. When the last one goes a
// finished tile is evicted and a running task's result will be discarded.
// Holders of a Handle should use Handle.Cancel instead.
func (p *Provider) Cancel(index tiling.TileIndex) {
	p.release(index, 0)
}

// release drops one unit of interest. A non-zero gen must match the entry.
func (p *Provider) release(index tiling.TileIndex, gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[index]
	if !ok || e.interest == 0 || (gen != 0 && e.gen != gen) {
		return
	}
	e.interest--
	if e.interest > 0 {
		return
	}

	switch e.state {
	case StateReady:
		metrics.TilesReady.Dec()
		delete(p.entries, index)
	case StateFailed:
		delete(p.entries, index)
	}
}

// Get returns the decoded tile if index is ready.
func (p *Provider) Get(index tiling.TileIndex) (*decoder.DecodedTile, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[index]
	if !ok || e.state != StateReady {
		return nil, false
	}
	return e.task.tile, true
}

func (p *Provider) State(index tiling.TileIndex) State {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[index]; ok {
		return e.state
	}
	return StateAbsent
}

// Invalidate forgets index: the raw bytes are removed from the cache and the
// decoded tile, if any, is dropped. A task already running keeps its slot
// until it finishes, but its bytes are not cached and its handles resolve
// with ErrInvalidated; the next Request starts a fresh task after it.
func (p *Provider) Invalidate(ctx context.Context, index tiling.TileIndex) error {
	p.mu.Lock()
	if e, ok := p.entries[index]; ok {
		switch e.state {
		case StateInFlight:
			e.stale = true
		case StateReady:
			metrics.TilesReady.Dec()
			delete(p.entries, index)
		default:
			delete(p.entries, index)
		}
	}
	p.mu.Unlock()

	if f, ok := p.fetcher.(fetcher.Forgetter); ok {
		f.Forget(index)
	}
	if err := p.cache.Delete(ctx, index); err != nil {
		return fmt.Errorf("failed to invalidate tile %s: %w", index, err)
	}
	p.logger.Info("tile invalidated", "tile", index.String())
	return nil
}

// Snapshot lists every tracked index ordered by level, column and row.
func (p *Provider) Snapshot() []IndexState {
	p.mu.Lock()
	out := make([]IndexState, 0, len(p.entries))
	for idx, e := range p.entries {
		s := IndexState{Index: idx, State: e.state.String(), Interest: e.interest}
		if e.state == StateFailed && e.task.err != nil {
			s.Error = e.task.err.Error()
		}
		out = append(out, s)
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Index, out[j].Index
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Y < b.Y
	})
	return out
}

func (p *Provider) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		Queued:       len(p.completed),
		TasksStarted: p.started,
		Discarded:    p.discarded,
	}
	for _, e := range p.entries {
		switch e.state {
		case StateInFlight:
			s.InFlight++
		case StateReady:
			s.Ready++
		case StateFailed:
			s.Failed++
		}
	}
	return s
}

// Close stops accepting requests, fails tasks still waiting for a worker and
// waits for running ones to finish.
func (p *Provider) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
