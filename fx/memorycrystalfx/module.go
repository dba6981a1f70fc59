// Package memorycrystalfx provides an fx module for an in-memory crystal store.
// Useful for testing.
package memorycrystalfx

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/legendaryobs/crystal"
	"github.com/legendaryobs/crystal/internal/stats"
	"github.com/legendaryobs/crystal/internal/stats/logger"
	"github.com/legendaryobs/crystal/internal/store/memstore"
	"github.com/legendaryobs/crystal/reward"
)

// Module provides an in-memory crystal store for testing.
// Requires a *zap.Logger to be provided.
var Module = fx.Module("memorycrystal",
	fx.Provide(
		newStatsCollector,
		newMemStore,
		newGate,
		newStore,
	),
)

func newStatsCollector(log *zap.Logger) stats.Collector {
	return logger.New(log.Named("crystal.stats"))
}

func newMemStore() *memstore.Store {
	return memstore.New()
}

func newGate(log *zap.Logger, collector stats.Collector) *reward.Gate {
	return reward.New(
		reward.WithLogger(log.Named("crystal.reward")),
		reward.WithStats(collector),
	)
}

// Params holds dependencies for creating the store.
type Params struct {
	fx.In

	Logger    *zap.Logger
	Collector stats.Collector
	Backend   *memstore.Store
	Gate      *reward.Gate
	Lifecycle fx.Lifecycle
}

// Result holds the provided store and its backend.
type Result struct {
	fx.Out

	Store   *crystal.Store
	Backend *memstore.Store `name:"backend"` // Exposed for test setup
}

func newStore(p Params) (Result, error) {
	s, err := crystal.New(context.Background(),
		crystal.WithBackend(p.Backend),
		crystal.WithStats(p.Collector),
		crystal.WithObserver(p.Gate),
		crystal.WithLogger(p.Logger.Named("crystal")),
	)
	if err != nil {
		return Result{}, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return s.Close()
		},
	})

	return Result{
		Store:   s,
		Backend: p.Backend,
	}, nil
}
