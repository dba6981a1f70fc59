// Package stats provides a unified interface for collecting metrics.
package stats

// Metric names used throughout the module.
const (
	// Store operations.
	MetricWrites     = "memory_crystal_writes_total"
	MetricRetrievals = "memory_crystal_retrievals_total"
	MetricSearches   = "memory_crystal_searches_total"
	MetricDeletes    = "memory_crystal_deletes_total"
	MetricErrors     = "memory_crystal_storage_errors_total"
	MetricLatency    = "memory_crystal_response_time_seconds"

	// Cache performance.
	MetricCacheHits   = "memory_crystal_cache_hits_total"
	MetricCacheMisses = "memory_crystal_cache_misses_total"

	// Derived gauges refreshed by the estimator and the monitor.
	MetricEfficiency   = "memory_crystal_efficiency_score"
	MetricActiveCount  = "memory_crystal_active_count"
	MetricStorageBytes = "memory_crystal_storage_usage_bytes"

	// Reward gate.
	MetricRewards      = "memory_crystal_broskie_rewards_total"
	MetricAchievements = "memory_crystal_achievements_total"
)

// Collector defines the interface for collecting metrics.
type Collector interface {
	// IncCounter increments a counter metric by delta.
	IncCounter(name string, delta int64)

	// SetGauge sets a gauge metric to value.
	SetGauge(name string, value float64)

	// ObserveHistogram records a value in a histogram metric.
	ObserveHistogram(name string, value float64)
}
