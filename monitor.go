package crystal

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMonitorInterval is the time between monitor ticks.
	DefaultMonitorInterval = 60 * time.Second

	// DefaultMonitorBackoff is the wait after a failed tick.
	DefaultMonitorBackoff = 30 * time.Second
)

// EfficiencyObserver receives each sample taken by a Monitor.
type EfficiencyObserver interface {
	ObserveEfficiency(s Sample)
}

// Monitor periodically measures store efficiency and storage footprint.
type Monitor struct {
	store    *Store
	observer EfficiencyObserver
	interval time.Duration
	backoff  time.Duration
	logger   *zap.Logger
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithMonitorInterval sets the time between ticks.
func WithMonitorInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.interval = d }
}

// WithMonitorBackoff sets the wait after a failed tick.
func WithMonitorBackoff(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.backoff = d }
}

// WithEfficiencyObserver sets the observer fed with each sample.
func WithEfficiencyObserver(o EfficiencyObserver) MonitorOption {
	return func(m *Monitor) { m.observer = o }
}

// WithMonitorLogger sets the logger.
func WithMonitorLogger(l *zap.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = l }
}

// NewMonitor creates a monitor for s.
func NewMonitor(s *Store, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		store:    s,
		interval: DefaultMonitorInterval,
		backoff:  DefaultMonitorBackoff,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run ticks until ctx is cancelled and returns ctx.Err().
// Failed ticks are logged and followed by the backoff instead of the interval.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("efficiency monitor started",
		zap.Duration("interval", m.interval),
		zap.Duration("backoff", m.backoff),
	)

	for {
		wait := m.interval
		if err := m.Tick(ctx); err != nil {
			m.logger.Error("monitor tick failed", zap.Error(err))
			wait = m.backoff
		}

		select {
		case <-ctx.Done():
			m.logger.Info("efficiency monitor stopped")
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Tick takes one sample, feeds the observer and refreshes the storage
// footprint. A panic in the observer is returned as an error.
func (m *Monitor) Tick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("monitor panic: %v", r)
		}
	}()

	sample := m.store.Measure()
	if m.observer != nil {
		m.observer.ObserveEfficiency(sample)
	}

	size, err := m.store.Footprint(ctx)
	if err != nil {
		return err
	}

	m.logger.Debug("efficiency sampled",
		zap.Float64("efficiency", sample.Efficiency),
		zap.Float64("hitRatio", sample.HitRatio),
		zap.Int("active", sample.ActiveRecords),
		zap.Int64("bytes", size),
	)
	return nil
}
