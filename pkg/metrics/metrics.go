package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TilesRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vtiles_requests_total",
		Help: "Total number of tile requests made to the provider",
	})

	TilesRequestsAttached = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vtiles_requests_attached_total",
		Help: "Requests that attached to an in-flight or ready tile instead of scheduling a task",
	})

	TilesCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vtiles_cache_hits_total",
		Help: "Total number of raw tile cache hits",
	}, []string{"backend"})

	TilesCacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vtiles_cache_misses_total",
		Help: "Total number of raw tile cache misses",
	}, []string{"backend"})

	TilesCacheStoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vtiles_cache_store_errors_total",
		Help: "Cache writes that failed and were skipped",
	}, []string{"backend"})

	TilesUpstreamRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vtiles_upstream_requests_total",
		Help: "Total number of upstream tile fetches",
	})

	TilesUpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vtiles_upstream_errors_total",
		Help: "Upstream fetch failures by kind",
	}, []string{"kind"})

	TilesUpstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vtiles_upstream_latency_seconds",
		Help:    "Latency of upstream tile fetches in seconds",
		Buckets: prometheus.DefBuckets,
	})

	TilesDecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vtiles_decode_failures_total",
		Help: "Tiles whose payload could not be decoded",
	})

	TilesDecodeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vtiles_decode_latency_seconds",
		Help:    "Time spent decoding tile payloads",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	TilesDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vtiles_discarded_total",
		Help: "Finished tasks whose result was dropped because nobody was interested any more",
	})

	TilesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vtiles_in_flight",
		Help: "Pipeline tasks currently scheduled or running",
	})

	TilesReady = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vtiles_ready",
		Help: "Decoded tiles held by the provider",
	})

	HitTestQueries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vtiles_hit_test_queries_total",
		Help: "Feature lookups at a map position",
	})

	EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vtiles_events_dispatched_total",
		Help: "Control loop events by kind",
	}, []string{"kind"})
)
