package crystal

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/legendaryobs/crystal/internal/codec"
	"github.com/legendaryobs/crystal/internal/codec/noopcodec"
	"github.com/legendaryobs/crystal/internal/stats"
	"github.com/legendaryobs/crystal/internal/store"
	"github.com/legendaryobs/crystal/internal/store/badgerstore"
	"github.com/legendaryobs/crystal/internal/store/redisstore"
	"github.com/legendaryobs/crystal/internal/tracker"
)

const (
	// DefaultTTL is how long a durable record lives after its last write.
	DefaultTTL = 30 * 24 * time.Hour

	// DefaultOperationTimeout bounds every backend call.
	DefaultOperationTimeout = 5 * time.Second

	// DefaultHistorySize is the number of efficiency samples kept.
	DefaultHistorySize = 100
)

// Dialer opens a durable backend. The store pings the result before use.
type Dialer func(ctx context.Context) (store.Store, error)

// Option configures a Store.
type Option interface {
	apply(*options)
}

// options holds the store configuration.
type options struct {
	backend        store.Store
	dialer         Dialer
	requireDurable bool
	codec          codec.Codec
	stats          stats.Collector
	logger         *zap.Logger
	observer       Observer
	now            func() time.Time
	ttl            time.Duration
	opTimeout      time.Duration
	trackerSize    int
	historySize    int
}

// defaultOptions returns the default configuration.
func defaultOptions() options {
	return options{
		codec:       noopcodec.New(),
		stats:       stats.NewNoop(),
		logger:      zap.NewNop(),
		observer:    noopObserver{},
		now:         time.Now,
		ttl:         DefaultTTL,
		opTimeout:   DefaultOperationTimeout,
		trackerSize: tracker.DefaultCapacity,
		historySize: DefaultHistorySize,
	}
}

// optionFunc wraps a function to implement Option.
type optionFunc func(*options)

// Compile-time check that optionFunc implements Option.
var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithBackend sets the backend to use as is, skipping durable selection.
func WithBackend(s store.Store) Option {
	return optionFunc(func(o *options) {
		o.backend = s
	})
}

// WithDurable sets the dialer for the durable backend. If dialing or the
// first ping fails, the store falls back to in-process storage.
func WithDurable(d Dialer) Option {
	return optionFunc(func(o *options) {
		o.dialer = d
	})
}

// WithRedis uses a Redis server as the durable backend.
func WithRedis(addr, password string, db int) Option {
	return WithDurable(func(ctx context.Context) (store.Store, error) {
		return redisstore.New(redisstore.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}), nil
	})
}

// WithBadger uses an embedded Badger database in dir as the durable backend.
func WithBadger(dir string) Option {
	return WithDurable(func(ctx context.Context) (store.Store, error) {
		return badgerstore.New(badgerstore.Options{Dir: dir})
	})
}

// WithRequireDurable makes New fail with ErrBackendUnavailable instead of
// falling back to in-process storage.
func WithRequireDurable() Option {
	return optionFunc(func(o *options) {
		o.requireDurable = true
	})
}

// WithCodec sets the value codec. Default stores JSON uncompressed.
func WithCodec(c codec.Codec) Option {
	return optionFunc(func(o *options) {
		o.codec = c
	})
}

// WithStats sets the stats collector.
// If not set, a no-op collector is used.
func WithStats(c stats.Collector) Option {
	return optionFunc(func(o *options) {
		o.stats = c
	})
}

// WithLogger sets the logger.
// If not set, a no-op logger is used.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}

// WithObserver sets the observer notified of writes and searches.
func WithObserver(obs Observer) Option {
	return optionFunc(func(o *options) {
		o.observer = obs
	})
}

// WithClock sets the time source for record timestamps and samples.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(o *options) {
		o.now = now
	})
}

// WithTTL sets the expiration of durable records. Default is 30 days.
func WithTTL(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.ttl = d
	})
}

// WithOperationTimeout bounds each backend call. Default is 5s.
func WithOperationTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.opTimeout = d
	})
}

// WithTrackerSize sets how many distinct accessed ids are remembered.
func WithTrackerSize(n int) Option {
	return optionFunc(func(o *options) {
		o.trackerSize = n
	})
}

// WithHistorySize sets how many efficiency samples are kept. Default is 100.
func WithHistorySize(n int) Option {
	return optionFunc(func(o *options) {
		o.historySize = n
	})
}
