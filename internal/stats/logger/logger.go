// Package logger provides a zap-based stats collector that logs metrics.
package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/legendaryobs/crystal/internal/stats"
)

// metricPrefix is trimmed from metric names to form the log message.
const metricPrefix = "memory_crystal_"

// Collector implements stats.Collector by logging metrics at debug level.
// Counters are logged with their running total so a log tail shows the
// store's cumulative writes, hits and misses.
type Collector struct {
	logger *zap.Logger

	mu     sync.Mutex
	totals map[string]int64
}

// Compile-time check that Collector implements stats.Collector.
var _ stats.Collector = (*Collector)(nil)

// New creates a logger-based collector.
// If logger is nil, a no-op logger is used.
func New(logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{logger: logger, totals: make(map[string]int64)}
}

// IncCounter logs a counter increment and the counter's running total.
func (c *Collector) IncCounter(name string, delta int64) {
	c.mu.Lock()
	c.totals[name] += delta
	total := c.totals[name]
	c.mu.Unlock()

	c.logger.Debug(shortName(name),
		zap.String("kind", "counter"),
		zap.Int64("delta", delta),
		zap.Int64("total", total),
	)
}

// SetGauge logs a gauge value.
func (c *Collector) SetGauge(name string, value float64) {
	c.logger.Debug(shortName(name), zap.String("kind", "gauge"), zap.Float64("value", value))
}

// ObserveHistogram logs a histogram observation.
func (c *Collector) ObserveHistogram(name string, value float64) {
	c.logger.Debug(shortName(name), zap.String("kind", "histogram"), zap.Float64("value", value))
}

func shortName(name string) string {
	return strings.TrimPrefix(name, metricPrefix)
}
