package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/campus-leave-api/internal/models"
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
	refreshTotal    *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	droppedRecords  prometheus.Counter
	recordGauge     prometheus.Gauge
	sessionGauge    prometheus.Gauge
	streamGauge     prometheus.Gauge
	slipJobs        *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	refreshApplied       uint64
	refreshStale         uint64
	refreshFailed        uint64
	droppedCount         uint64
	records              int64
	sessions             int64
	streamClients        int64
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

	refreshTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leave_refresh_total",
		Help: "Record store refreshes by source and outcome",
	}, []string{"source", "outcome"})

	refreshDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "leave_refresh_duration_seconds",
		Help:    "Duration of record source fetches",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	droppedRecords := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "leave_records_dropped_total",
		Help: "Malformed leave records rejected during refresh",
	})

	recordGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "leave_records",
		Help: "Records held by the current snapshot",
	})

	sessionGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "leave_view_sessions",
		Help: "Active dashboard view sessions",
	})

	streamGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "leave_stream_clients",
		Help: "Connected websocket subscribers",
	})

	slipJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leave_slip_jobs_total",
		Help: "Leave slip jobs by final status",
	}, []string{"status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		refreshTotal, refreshDuration, droppedRecords, recordGauge, sessionGauge, streamGauge, slipJobs, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		refreshTotal:    refreshTotal,
		refreshDuration: refreshDuration,
		droppedRecords:  droppedRecords,
		recordGauge:     recordGauge,
		sessionGauge:    sessionGauge,
		streamGauge:     streamGauge,
		slipJobs:        slipJobs,
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
	total := hits + misses
	if total > 0 {
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

// ObserveRefresh records one refresh attempt against a record source.
func (m *MetricsService) ObserveRefresh(source, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(source, outcome).Inc()
	m.refreshDuration.WithLabelValues(source).Observe(duration.Seconds())
	switch outcome {
	case models.RefreshApplied:
		atomic.AddUint64(&m.refreshApplied, 1)
	case models.RefreshStale:
		atomic.AddUint64(&m.refreshStale, 1)
	default:
		atomic.AddUint64(&m.refreshFailed, 1)
	}
}

// RecordDropped counts malformed records rejected by a refresh.
func (m *MetricsService) RecordDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.droppedRecords.Add(float64(n))
	atomic.AddUint64(&m.droppedCount, uint64(n))
}

// SetRecordCount publishes the size of the current snapshot.
func (m *MetricsService) SetRecordCount(n int) {
	if m == nil {
		return
	}
	m.recordGauge.Set(float64(n))
	atomic.StoreInt64(&m.records, int64(n))
}

// SetSessionCount publishes the number of live view sessions.
func (m *MetricsService) SetSessionCount(n int) {
	if m == nil {
		return
	}
	m.sessionGauge.Set(float64(n))
	atomic.StoreInt64(&m.sessions, int64(n))
}

// AddStreamClients adjusts the websocket subscriber gauge by delta.
func (m *MetricsService) AddStreamClients(delta int) {
	if m == nil {
		return
	}
	m.streamGauge.Add(float64(delta))
	atomic.AddInt64(&m.streamClients, int64(delta))
}

// RecordSlipJob counts a leave slip job reaching a terminal status.
func (m *MetricsService) RecordSlipJob(status models.SlipStatus) {
	if m == nil {
		return
	}
	m.slipJobs.WithLabelValues(string(status)).Inc()
}

// Snapshot returns aggregated metrics for the summary endpoint.
func (m *MetricsService) Snapshot() models.ServiceMetrics {
	if m == nil {
		return models.ServiceMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.ServiceMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		RefreshesApplied:         atomic.LoadUint64(&m.refreshApplied),
		RefreshesStale:           atomic.LoadUint64(&m.refreshStale),
		RefreshesFailed:          atomic.LoadUint64(&m.refreshFailed),
		RecordsDropped:           atomic.LoadUint64(&m.droppedCount),
		Records:                  atomic.LoadInt64(&m.records),
		ActiveSessions:           atomic.LoadInt64(&m.sessions),
		StreamClients:            atomic.LoadInt64(&m.streamClients),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
