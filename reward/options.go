package reward

import (
	"time"

	"go.uber.org/zap"

	"github.com/legendaryobs/crystal/internal/stats"
)

// DefaultLogSize is the number of achievements kept by default.
const DefaultLogSize = 1000

// Option configures a Gate.
type Option interface {
	apply(*options)
}

type options struct {
	now      func() time.Time
	logger   *zap.Logger
	stats    stats.Collector
	logSize  int
	disabled bool
}

func defaultOptions() options {
	return options{
		now:     time.Now,
		logger:  zap.NewNop(),
		stats:   stats.NewNoop(),
		logSize: DefaultLogSize,
	}
}

type optionFunc func(*options)

var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithClock sets the time source for windows and achievement times.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(o *options) {
		o.now = now
	})
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}

// WithStats sets the stats collector.
func WithStats(c stats.Collector) Option {
	return optionFunc(func(o *options) {
		o.stats = c
	})
}

// WithLogSize caps the number of retained achievements.
func WithLogSize(n int) Option {
	return optionFunc(func(o *options) {
		o.logSize = n
	})
}

// WithDisabled turns the gate into a no-op.
func WithDisabled(disabled bool) Option {
	return optionFunc(func(o *options) {
		o.disabled = disabled
	})
}
