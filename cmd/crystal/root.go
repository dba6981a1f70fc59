package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/legendaryobs/crystal"
	"github.com/legendaryobs/crystal/fx/crystalfx"
	"github.com/legendaryobs/crystal/internal/codec"
	"github.com/legendaryobs/crystal/internal/config"
	"github.com/legendaryobs/crystal/internal/stats"
)

var (
	// Global flags.
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "crystal",
	Short: "Content-addressed pattern store",
	Long: `Crystal stores small structured patterns under a fingerprint of their
category and content, tracks how often each one is read, and scores the
store's overall efficiency.

Configuration is read from --config, then overridden by CRYSTAL_ environment
variables (for example CRYSTAL_BACKEND_DRIVER=badger).

Examples:
  # Store a pattern
  crystal put workflow '{"steps":["plan","build","ship"]}'

  # Read it back
  crystal get 3f2a9c81d04e

  # Search workflow crystals mentioning "ship"
  crystal search --category workflow --pattern ship

  # Run the efficiency monitor
  crystal monitor --metrics-addr :9090`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the process logger from cfg. Logs go to stderr so command
// output on stdout stays machine-readable.
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	return zc.Build()
}

// session is a store opened for a single command.
type session struct {
	cfg   *config.Config
	log   *zap.Logger
	codec codec.Codec
	store *crystal.Store
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	c, err := codec.ByName(cfg.Store.Codec)
	if err != nil {
		return nil, err
	}

	// One-shot commands have no registry to export to.
	collector := stats.Collector(stats.NewNoop())
	if cfg.Metrics.Collector == "log" {
		collector = crystalfx.NewCollector(cfg.Metrics, log, nil)
	}

	s, err := crystal.New(ctx, crystalfx.StoreOptions(*cfg, log, collector, c, nil)...)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if st := s.Status(); st.Degraded {
		log.Warn("records will not outlive this command", zap.String("driver", cfg.Backend.Driver))
	}

	return &session{cfg: cfg, log: log, codec: c, store: s}, nil
}

func (s *session) Close() error {
	defer s.log.Sync()
	return s.store.Close()
}
