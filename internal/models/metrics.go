package models

import "time"

// ServiceMetrics is a point-in-time summary of the service's instrumentation.
type ServiceMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	RefreshesApplied         uint64    `json:"refreshes_applied"`
	RefreshesStale           uint64    `json:"refreshes_stale"`
	RefreshesFailed          uint64    `json:"refreshes_failed"`
	RecordsDropped           uint64    `json:"records_dropped"`
	Records                  int64     `json:"records"`
	ActiveSessions           int64     `json:"active_sessions"`
	StreamClients            int64     `json:"stream_clients"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
