package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Oerlinker/BackendAISi2/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	predictions      *prometheus.CounterVec
	fallbacks        *prometheus.CounterVec
	scanDuration     prometheus.Histogram
	scanPairs        *prometheus.CounterVec
	partialScans     prometheus.Counter
	trainingRuns     *prometheus.CounterVec
	trainingDuration prometheus.Histogram
	notifications    *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	dbQueryCount         uint64
	dbQueryDurationTotal uint64
	fallbackCount        uint64
	partialScanCount     uint64

	sourceMu     sync.Mutex
	sourceCounts map[models.PredictionSource]uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	predictions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "predictions_created_total",
		Help: "Predictions persisted, by producing strategy and level",
	}, []string{"source", "level"})

	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "predictor_fallbacks_total",
		Help: "Strategy failures that fell through to the next predictor",
	}, []string{"source", "reason"})

	scanDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "risk_scan_duration_seconds",
		Help:    "Wall-clock duration of bulk risk scans",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	scanPairs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_scan_pairs_total",
		Help: "Student and subject pairs visited by bulk scans",
	}, []string{"outcome"})

	partialScans := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "risk_scan_partial_total",
		Help: "Bulk scans that stopped on their time budget",
	})

	trainingRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "model_training_total",
		Help: "Model fits by scope and outcome",
	}, []string{"scope", "outcome"})

	trainingDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "model_training_duration_seconds",
		Help:    "Duration of full training passes",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_generated_total",
		Help: "Notification drafts generated, by recipient role and type",
	}, []string{"role", "type"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses, dbQueryDuration,
		predictions, fallbacks, scanDuration, scanPairs, partialScans, trainingRuns, trainingDuration, notifications, goroutines)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		cacheLatency:     cacheLatency,
		cacheWrite:       cacheWrite,
		cacheHitRatio:    cacheHitRatio,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
		dbQueryDuration:  dbQueryDuration,
		predictions:      predictions,
		fallbacks:        fallbacks,
		scanDuration:     scanDuration,
		scanPairs:        scanPairs,
		partialScans:     partialScans,
		trainingRuns:     trainingRuns,
		trainingDuration: trainingDuration,
		notifications:    notifications,
		sourceCounts:     make(map[models.PredictionSource]uint64),
	}
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

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
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

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
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
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
	atomic.AddUint64(&m.dbQueryCount, 1)
	atomic.AddUint64(&m.dbQueryDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordPrediction counts a persisted prediction.
func (m *MetricsService) RecordPrediction(source models.PredictionSource, level models.PerformanceLevel) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(string(source), string(level)).Inc()
	m.sourceMu.Lock()
	m.sourceCounts[source]++
	m.sourceMu.Unlock()
}

// RecordFallback counts a strategy that failed and handed over to the next one.
func (m *MetricsService) RecordFallback(source models.PredictionSource, reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(string(source), reason).Inc()
	atomic.AddUint64(&m.fallbackCount, 1)
}

// ObserveRiskScan records the outcome of a bulk scan.
func (m *MetricsService) ObserveRiskScan(duration time.Duration, scanned, skipped int, partial bool) {
	if m == nil {
		return
	}
	m.scanDuration.Observe(duration.Seconds())
	m.scanPairs.WithLabelValues("scanned").Add(float64(scanned))
	m.scanPairs.WithLabelValues("skipped").Add(float64(skipped))
	if partial {
		m.partialScans.Inc()
		atomic.AddUint64(&m.partialScanCount, 1)
	}
}

// RecordTraining counts a single model fit. scope is "general" or "subject".
func (m *MetricsService) RecordTraining(scope, outcome string) {
	if m == nil {
		return
	}
	m.trainingRuns.WithLabelValues(scope, outcome).Inc()
}

// ObserveTrainingPass records the duration of a full training pass.
func (m *MetricsService) ObserveTrainingPass(duration time.Duration) {
	if m == nil {
		return
	}
	m.trainingDuration.Observe(duration.Seconds())
}

// RecordNotifications counts generated drafts.
func (m *MetricsService) RecordNotifications(role models.UserRole, drafts []models.NotificationDraft) {
	if m == nil {
		return
	}
	for _, d := range drafts {
		m.notifications.WithLabelValues(string(role), string(d.Type)).Inc()
	}
}

// Snapshot returns aggregated metrics suitable for the metrics endpoint.
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
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}
	var avgDBMs float64
	if dbCount > 0 {
		avgDBMs = float64(dbDuration) / float64(dbCount) / float64(time.Millisecond)
	}

	bySource := make(map[string]uint64)
	m.sourceMu.Lock()
	for source, count := range m.sourceCounts {
		bySource[string(source)] = count
	}
	m.sourceMu.Unlock()

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		DBQueryCount:             dbCount,
		AverageDBQueryDurationMs: avgDBMs,
		PredictionsBySource:      bySource,
		PredictorFallbacks:       atomic.LoadUint64(&m.fallbackCount),
		PartialScans:             atomic.LoadUint64(&m.partialScanCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
