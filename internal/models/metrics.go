package models

import "time"

// SystemMetrics is the point-in-time ops snapshot served by the stats
// endpoint. Aggregates mirror the Prometheus collectors in a shape that is
// cheap to render as JSON.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	RunsFinished             uint64    `json:"runs_finished"`
	RunsFailed               uint64    `json:"runs_failed"`
	RunsRequeued             uint64    `json:"runs_requeued"`
	AverageRunDurationMs     float64   `json:"average_run_duration_ms"`
	LastRunGenerations       int       `json:"last_run_generations"`
	LastRunBestFitness       float64   `json:"last_run_best_fitness"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
