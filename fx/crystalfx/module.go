// Package crystalfx provides an fx module for a configured crystal store.
//
// The module builds the store, the reward gate and the efficiency monitor
// from a config.Config, restores the configured snapshot on start, and on
// stop saves the snapshot and closes the store.
package crystalfx

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/legendaryobs/crystal"
	"github.com/legendaryobs/crystal/internal/codec"
	_ "github.com/legendaryobs/crystal/internal/codec/gzipcodec"
	_ "github.com/legendaryobs/crystal/internal/codec/noopcodec"
	_ "github.com/legendaryobs/crystal/internal/codec/zstdcodec"
	"github.com/legendaryobs/crystal/internal/config"
	"github.com/legendaryobs/crystal/internal/snapshot"
	"github.com/legendaryobs/crystal/internal/snapshot/disksink"
	"github.com/legendaryobs/crystal/internal/snapshot/gcssink"
	"github.com/legendaryobs/crystal/internal/snapshot/s3sink"
	"github.com/legendaryobs/crystal/internal/stats"
	"github.com/legendaryobs/crystal/internal/stats/logger"
	promstats "github.com/legendaryobs/crystal/internal/stats/prometheus"
	"github.com/legendaryobs/crystal/internal/store"
	"github.com/legendaryobs/crystal/internal/store/badgerstore"
	"github.com/legendaryobs/crystal/internal/store/redisstore"
	"github.com/legendaryobs/crystal/reward"
)

// Module provides a configured crystal store.
// Requires a config.Config and a *zap.Logger to be provided.
var Module = fx.Module("crystal",
	fx.Provide(
		newStatsCollector,
		newCodec,
		newGate,
		newStore,
		newMonitor,
		newSnapshotter,
	),
	fx.Invoke(register),
)

// CollectorParams holds dependencies for the stats collector.
type CollectorParams struct {
	fx.In

	Config     config.Config
	Logger     *zap.Logger
	Registerer prometheus.Registerer `optional:"true"`
}

func newStatsCollector(p CollectorParams) stats.Collector {
	return NewCollector(p.Config.Metrics, p.Logger, p.Registerer)
}

// NewCollector builds the stats collector selected by cfg.
// A nil registerer selects the default Prometheus registry.
func NewCollector(cfg config.MetricsConfig, log *zap.Logger, reg prometheus.Registerer) stats.Collector {
	switch cfg.Collector {
	case "log":
		return logger.New(log.Named("crystal.stats"))
	case "prometheus":
		return promstats.New(reg)
	default:
		return stats.NewNoop()
	}
}

func newCodec(cfg config.Config) (codec.Codec, error) {
	return codec.ByName(cfg.Store.Codec)
}

func newGate(cfg config.Config, log *zap.Logger, collector stats.Collector) *reward.Gate {
	return reward.New(
		reward.WithDisabled(!cfg.Rewards.Enabled),
		reward.WithLogSize(cfg.Rewards.LogSize),
		reward.WithLogger(log.Named("crystal.reward")),
		reward.WithStats(collector),
	)
}

// StoreParams holds dependencies for creating the store.
type StoreParams struct {
	fx.In

	Config    config.Config
	Logger    *zap.Logger
	Collector stats.Collector
	Codec     codec.Codec
	Gate      *reward.Gate
}

func newStore(p StoreParams) (*crystal.Store, error) {
	// Dialing is bounded by the store's operation timeout.
	return crystal.New(context.Background(), StoreOptions(p.Config, p.Logger, p.Collector, p.Codec, p.Gate)...)
}

// StoreOptions translates the configuration into store options.
// A nil observer leaves the store unobserved.
func StoreOptions(cfg config.Config, log *zap.Logger, collector stats.Collector, c codec.Codec, obs crystal.Observer) []crystal.Option {
	opts := []crystal.Option{
		crystal.WithLogger(log.Named("crystal")),
		crystal.WithStats(collector),
		crystal.WithCodec(c),
		crystal.WithTTL(cfg.Store.TTL),
		crystal.WithOperationTimeout(cfg.Store.OperationTimeout),
		crystal.WithTrackerSize(cfg.Store.TrackerSize),
		crystal.WithHistorySize(cfg.Store.HistorySize),
	}
	if obs != nil {
		opts = append(opts, crystal.WithObserver(obs))
	}
	if d := Dialer(cfg.Backend); d != nil {
		opts = append(opts, crystal.WithDurable(d))
	}
	if cfg.Backend.Require {
		opts = append(opts, crystal.WithRequireDurable())
	}
	return opts
}

// Dialer returns the durable dialer for cfg, or nil for the memory driver.
func Dialer(cfg config.BackendConfig) crystal.Dialer {
	switch cfg.Driver {
	case "redis":
		return func(ctx context.Context) (store.Store, error) {
			return redisstore.New(redisstore.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			}), nil
		}
	case "badger":
		return func(ctx context.Context) (store.Store, error) {
			return badgerstore.New(badgerstore.Options{
				Dir:        cfg.Badger.Dir,
				SyncWrites: cfg.Badger.SyncWrites,
			})
		}
	default:
		return nil
	}
}

func newMonitor(cfg config.Config, s *crystal.Store, gate *reward.Gate, log *zap.Logger) *crystal.Monitor {
	return crystal.NewMonitor(s,
		crystal.WithMonitorInterval(cfg.Monitor.Interval),
		crystal.WithMonitorBackoff(cfg.Monitor.Backoff),
		crystal.WithEfficiencyObserver(gate),
		crystal.WithMonitorLogger(log.Named("crystal.monitor")),
	)
}

// SnapshotResult holds the optional snapshotter.
type SnapshotResult struct {
	fx.Out

	// Snapshotter is nil when no sink is configured.
	Snapshotter *snapshot.Snapshotter
}

func newSnapshotter(cfg config.Config, c codec.Codec, log *zap.Logger) (SnapshotResult, error) {
	snap, err := NewSnapshotter(context.Background(), cfg.Snapshot, c, log)
	if err != nil {
		return SnapshotResult{}, err
	}
	return SnapshotResult{Snapshotter: snap}, nil
}

// NewSnapshotter builds the snapshotter selected by cfg. It returns nil when
// the sink is "none".
func NewSnapshotter(ctx context.Context, cfg config.SnapshotConfig, c codec.Codec, log *zap.Logger) (*snapshot.Snapshotter, error) {
	var (
		sink snapshot.Sink
		err  error
	)
	switch cfg.Sink {
	case "disk":
		sink, err = disksink.New(cfg.Dir)
	case "s3":
		opts := []s3sink.Option{s3sink.WithPrefix(cfg.Prefix)}
		if cfg.Region != "" {
			opts = append(opts, s3sink.WithRegion(cfg.Region))
		}
		if cfg.Endpoint != "" {
			opts = append(opts, s3sink.WithEndpoint(cfg.Endpoint))
		}
		sink, err = s3sink.New(ctx, cfg.Bucket, opts...)
	case "gcs":
		sink, err = gcssink.New(ctx, cfg.Bucket, gcssink.WithPrefix(cfg.Prefix))
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s snapshot sink: %w", cfg.Sink, err)
	}

	return snapshot.New(sink, c,
		snapshot.WithName(cfg.Name),
		snapshot.WithLogger(log.Named("crystal.snapshot")),
	), nil
}

// LifecycleParams holds dependencies for the lifecycle hooks.
type LifecycleParams struct {
	fx.In

	Config      config.Config
	Logger      *zap.Logger
	Store       *crystal.Store
	Monitor     *crystal.Monitor
	Snapshotter *snapshot.Snapshotter `optional:"true"`
	Lifecycle   fx.Lifecycle
}

func register(p LifecycleParams) {
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if p.Snapshotter != nil && p.Config.Snapshot.RestoreOnStart {
				_, err := p.Snapshotter.Import(ctx, p.Store)
				switch {
				case errors.Is(err, snapshot.ErrNotFound):
					p.Logger.Info("no snapshot to restore")
				case err != nil:
					return fmt.Errorf("restoring snapshot: %w", err)
				}
			}

			if p.Config.Monitor.Enabled {
				var runCtx context.Context
				runCtx, cancel = context.WithCancel(context.Background())
				done = make(chan struct{})
				go func() {
					defer close(done)
					p.Monitor.Run(runCtx)
				}()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
				select {
				case <-done:
				case <-ctx.Done():
				}
			}

			var errs []error
			if p.Snapshotter != nil {
				if p.Config.Snapshot.SaveOnStop {
					if _, err := p.Snapshotter.Export(ctx, p.Store); err != nil {
						errs = append(errs, fmt.Errorf("saving snapshot: %w", err))
					}
				}
				if err := p.Snapshotter.Close(); err != nil {
					errs = append(errs, fmt.Errorf("closing snapshot sink: %w", err))
				}
			}
			if err := p.Store.Close(); err != nil {
				errs = append(errs, err)
			}
			return errors.Join(errs...)
		},
	})
}
