package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/academic-records-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides snapshots for the API.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	cacheLatency     prometheus.Histogram
	cacheWrite       prometheus.Histogram
	cacheHitRatio    prometheus.Gauge
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	dbQueryDuration  *prometheus.HistogramVec
	dbErrors         *prometheus.CounterVec
	scoreMutations   *prometheus.CounterVec
	notifierFailures *prometheus.CounterVec
	outboxDelivered  prometheus.Counter
	outboxBacklog    prometheus.Gauge
	outboxDead       prometheus.Counter

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	dbQueryCount         uint64
	dbQueryDurationTotal uint64
	mutationCount        uint64
	notifierFailureCount uint64
	backlog              int64
}

// NewMetricsService registers core Prometheus collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_cache_latency_seconds",
			Help:    "Latency for summary cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_cache_write_seconds",
			Help:    "Latency for summary cache writes",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_cache_hit_ratio",
			Help: "Ratio of summary cache hits to total lookups",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_cache_hits_total",
			Help: "Total summary cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_cache_misses_total",
			Help: "Total summary cache misses",
		}),
		dbQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of storage operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"query"}),
		dbErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "db_query_errors_total",
			Help: "Storage operations that returned an error",
		}, []string{"query"}),
		scoreMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grade_score_mutations_total",
			Help: "Committed score mutations by kind",
		}, []string{"kind"}),
		notifierFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grade_notifier_failures_total",
			Help: "Failed notification deliveries by path",
		}, []string{"path"}),
		outboxDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grade_outbox_delivered_total",
			Help: "Score events delivered to the notifier",
		}),
		outboxBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grade_outbox_backlog",
			Help: "Undelivered score events observed by the relay",
		}),
		outboxDead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grade_outbox_dead_letters_total",
			Help: "Score events that exhausted their delivery attempts",
		}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.cacheLatency, m.cacheWrite, m.cacheHitRatio, m.cacheHits, m.cacheMisses,
		m.dbQueryDuration, m.dbErrors,
		m.scoreMutations, m.notifierFailures, m.outboxDelivered, m.outboxBacklog, m.outboxDead,
		goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration of cache writes.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records storage timing. It matches database.Observer.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
	if err != nil {
		m.dbErrors.WithLabelValues(label).Inc()
	}
	atomic.AddUint64(&m.dbQueryCount, 1)
	atomic.AddUint64(&m.dbQueryDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordScoreMutation counts a committed score event.
func (m *MetricsService) RecordScoreMutation(kind models.ScoreEventKind) {
	if m == nil {
		return
	}
	m.scoreMutations.WithLabelValues(string(kind)).Inc()
	atomic.AddUint64(&m.mutationCount, 1)
}

// RecordNotifierFailure counts a failed delivery. path is "inline" or "relay".
func (m *MetricsService) RecordNotifierFailure(path string) {
	if m == nil {
		return
	}
	m.notifierFailures.WithLabelValues(path).Inc()
	atomic.AddUint64(&m.notifierFailureCount, 1)
}

// RecordOutboxDelivered counts a successful delivery.
func (m *MetricsService) RecordOutboxDelivered() {
	if m == nil {
		return
	}
	m.outboxDelivered.Inc()
}

// RecordOutboxDeadLetter counts an event that will not be retried again.
func (m *MetricsService) RecordOutboxDeadLetter() {
	if m == nil {
		return
	}
	m.outboxDead.Inc()
}

// SetOutboxBacklog publishes the relay's latest backlog reading.
func (m *MetricsService) SetOutboxBacklog(n int) {
	if m == nil {
		return
	}
	m.outboxBacklog.Set(float64(n))
	atomic.StoreInt64(&m.backlog, int64(n))
}

// Snapshot returns aggregated metrics for the admin metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	dbCount := atomic.LoadUint64(&m.dbQueryCount)
	dbDuration := atomic.LoadUint64(&m.dbQueryDurationTotal)

	var cacheRatio float64
	if lookups := hits + misses; lookups > 0 {
		cacheRatio = float64(hits) / float64(lookups)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}
	var avgDBMs float64
	if dbCount > 0 {
		avgDBMs = float64(dbDuration) / float64(dbCount) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		DBQueryCount:             dbCount,
		AverageDBQueryDurationMs: avgDBMs,
		ScoreMutations:           atomic.LoadUint64(&m.mutationCount),
		NotifierFailures:         atomic.LoadUint64(&m.notifierFailureCount),
		OutboxBacklog:            int(atomic.LoadInt64(&m.backlog)),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
