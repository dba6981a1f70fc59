// Package prometheus provides a Prometheus-based stats collector.
package prometheus

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/legendaryobs/crystal/internal/stats"
)

// help holds descriptions for the metrics this module emits. Unknown names
// fall back to the metric name.
var help = map[string]string{
	stats.MetricWrites:       "Total crystal store operations",
	stats.MetricRetrievals:   "Total successful crystal retrievals",
	stats.MetricSearches:     "Total crystal searches",
	stats.MetricDeletes:      "Total crystal deletions",
	stats.MetricErrors:       "Total backend failures surfaced to callers",
	stats.MetricLatency:      "Crystal operation response time",
	stats.MetricCacheHits:    "Cache hit counter",
	stats.MetricCacheMisses:  "Cache miss counter",
	stats.MetricEfficiency:   "Crystal efficiency percentage",
	stats.MetricActiveCount:  "Number of active memory crystals",
	stats.MetricStorageBytes: "Crystal storage usage in bytes",
	stats.MetricRewards:      "BROski$ from crystal operations",
	stats.MetricAchievements: "Achievements unlocked",
}

func helpFor(name string) string {
	if h, ok := help[name]; ok {
		return h
	}
	return name
}

// Collector implements stats.Collector using Prometheus metrics.
// Metrics are created and registered lazily on first use.
type Collector struct {
	registry prometheus.Registerer

	mu         sync.RWMutex
	counters   map[string]prometheus.Counter
	gauges     map[string]prometheus.Gauge
	histograms map[string]prometheus.Histogram
}

// Compile-time check that Collector implements stats.Collector.
var _ stats.Collector = (*Collector)(nil)

// New creates a new Prometheus collector.
// If registry is nil, prometheus.DefaultRegisterer is used.
func New(registry prometheus.Registerer) *Collector {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	return &Collector{
		registry:   registry,
		counters:   make(map[string]prometheus.Counter),
		gauges:     make(map[string]prometheus.Gauge),
		histograms: make(map[string]prometheus.Histogram),
	}
}

// IncCounter increments a counter metric.
func (c *Collector) IncCounter(name string, delta int64) {
	counter := lookup(c, c.counters, name, func(name string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: helpFor(name)})
	})
	counter.Add(float64(delta))
}

// SetGauge sets a gauge metric.
func (c *Collector) SetGauge(name string, value float64) {
	gauge := lookup(c, c.gauges, name, func(name string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: helpFor(name)})
	})
	gauge.Set(value)
}

// ObserveHistogram records a value in a histogram.
func (c *Collector) ObserveHistogram(name string, value float64) {
	histogram := lookup(c, c.histograms, name, func(name string) prometheus.Histogram {
		return prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    name,
			Help:    helpFor(name),
			Buckets: prometheus.DefBuckets,
		})
	})
	histogram.Observe(value)
}

// lookup returns the metric registered under name, creating and registering
// it on first use. A metric already present in the registry is reused.
func lookup[M prometheus.Collector](c *Collector, metrics map[string]M, name string, build func(string) M) M {
	c.mu.RLock()
	m, ok := metrics[name]
	c.mu.RUnlock()
	if ok {
		return m
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok = metrics[name]; ok {
		return m
	}

	m = build(name)
	if err := c.registry.Register(m); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(M); ok {
				m = existing
			}
		}
		// Otherwise keep the unregistered metric; it still counts.
	}
	metrics[name] = m
	return m
}
