// Package config loads process configuration for the crystal service and CLI.
//
// Values come from defaults, an optional config file and environment
// variables prefixed with CRYSTAL_ (for example CRYSTAL_BACKEND_REDIS_ADDR),
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "CRYSTAL"

// Config is the top-level configuration.
type Config struct {
	Backend  BackendConfig  `mapstructure:"backend"`
	Store    StoreConfig    `mapstructure:"store"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Rewards  RewardsConfig  `mapstructure:"rewards"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

// BackendConfig selects the durable backend.
type BackendConfig struct {
	// Driver is one of memory, redis or badger.
	Driver string `mapstructure:"driver"`

	// Require makes start-up fail instead of falling back to memory.
	Require bool `mapstructure:"require"`

	Redis  RedisConfig  `mapstructure:"redis"`
	Badger BadgerConfig `mapstructure:"badger"`
}

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BadgerConfig configures the embedded database.
type BadgerConfig struct {
	Dir        string `mapstructure:"dir"`
	SyncWrites bool   `mapstructure:"sync_writes"`
}

// StoreConfig tunes the crystal store.
type StoreConfig struct {
	TTL              time.Duration `mapstructure:"ttl"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	Codec            string        `mapstructure:"codec"`
	TrackerSize      int           `mapstructure:"tracker_size"`
	HistorySize      int           `mapstructure:"history_size"`
}

// MonitorConfig tunes the background efficiency monitor.
type MonitorConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Backoff  time.Duration `mapstructure:"backoff"`
}

// RewardsConfig tunes the achievement gate.
type RewardsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	LogSize int  `mapstructure:"log_size"`
}

// SnapshotConfig selects where snapshots are kept.
type SnapshotConfig struct {
	// Sink is one of none, disk, s3 or gcs.
	Sink     string `mapstructure:"sink"`
	Name     string `mapstructure:"name"`
	Dir      string `mapstructure:"dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`

	// RestoreOnStart imports the snapshot when the service starts.
	RestoreOnStart bool `mapstructure:"restore_on_start"`

	// SaveOnStop exports a snapshot when the service stops.
	SaveOnStop bool `mapstructure:"save_on_stop"`
}

// MetricsConfig selects the stats collector.
type MetricsConfig struct {
	// Collector is one of noop, log or prometheus.
	Collector string `mapstructure:"collector"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("backend.driver", "redis")
	v.SetDefault("backend.require", false)
	v.SetDefault("backend.redis.addr", "redis:6379")
	v.SetDefault("backend.redis.db", 0)
	v.SetDefault("backend.badger.dir", "./data/badger")

	v.SetDefault("store.ttl", 30*24*time.Hour)
	v.SetDefault("store.operation_timeout", 5*time.Second)
	v.SetDefault("store.codec", "none")
	v.SetDefault("store.tracker_size", 10000)
	v.SetDefault("store.history_size", 100)

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.interval", 60*time.Second)
	v.SetDefault("monitor.backoff", 30*time.Second)

	v.SetDefault("rewards.enabled", true)
	v.SetDefault("rewards.log_size", 1000)

	v.SetDefault("snapshot.sink", "none")
	v.SetDefault("snapshot.name", "crystals.jsonl")
	v.SetDefault("snapshot.dir", "./data/snapshots")

	v.SetDefault("metrics.collector", "prometheus")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// SetupEnv binds CRYSTAL_ environment variables to configuration keys.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults only) with
// environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors.
// It returns every problem found rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateBackend()...)
	errs = append(errs, c.validateStore()...)
	errs = append(errs, c.validateMonitor()...)
	errs = append(errs, c.validateSnapshot()...)
	errs = append(errs, oneOf("metrics.collector", c.Metrics.Collector, "noop", "log", "prometheus")...)
	errs = append(errs, oneOf("log.level", c.Log.Level, "debug", "info", "warn", "error")...)
	errs = append(errs, oneOf("log.format", c.Log.Format, "json", "console")...)

	return errs
}

func (c *Config) validateBackend() []error {
	errs := oneOf("backend.driver", c.Backend.Driver, "memory", "redis", "badger")

	switch c.Backend.Driver {
	case "redis":
		if c.Backend.Redis.Addr == "" {
			errs = append(errs, errors.New("config: backend.redis.addr must not be empty"))
		}
		if c.Backend.Redis.DB < 0 {
			errs = append(errs, fmt.Errorf("config: backend.redis.db must be >= 0, got %d", c.Backend.Redis.DB))
		}
	case "badger":
		if c.Backend.Badger.Dir == "" {
			errs = append(errs, errors.New("config: backend.badger.dir must not be empty"))
		}
	}

	return errs
}

func (c *Config) validateStore() []error {
	var errs []error

	if c.Store.TTL <= 0 {
		errs = append(errs, fmt.Errorf("config: store.ttl must be positive, got %s", c.Store.TTL))
	}
	if c.Store.OperationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("config: store.operation_timeout must be positive, got %s", c.Store.OperationTimeout))
	}
	if c.Store.TrackerSize <= 0 {
		errs = append(errs, fmt.Errorf("config: store.tracker_size must be positive, got %d", c.Store.TrackerSize))
	}
	if c.Store.HistorySize <= 0 {
		errs = append(errs, fmt.Errorf("config: store.history_size must be positive, got %d", c.Store.HistorySize))
	}
	errs = append(errs, oneOf("store.codec", c.Store.Codec, "none", "gzip", "zstd")...)

	return errs
}

func (c *Config) validateMonitor() []error {
	if !c.Monitor.Enabled {
		return nil
	}

	var errs []error
	if c.Monitor.Interval <= 0 {
		errs = append(errs, fmt.Errorf("config: monitor.interval must be positive, got %s", c.Monitor.Interval))
	}
	if c.Monitor.Backoff <= 0 {
		errs = append(errs, fmt.Errorf("config: monitor.backoff must be positive, got %s", c.Monitor.Backoff))
	}
	return errs
}

func (c *Config) validateSnapshot() []error {
	errs := oneOf("snapshot.sink", c.Snapshot.Sink, "none", "disk", "s3", "gcs")

	switch c.Snapshot.Sink {
	case "disk":
		if c.Snapshot.Dir == "" {
			errs = append(errs, errors.New("config: snapshot.dir must not be empty for the disk sink"))
		}
	case "s3", "gcs":
		if c.Snapshot.Bucket == "" {
			errs = append(errs, fmt.Errorf("config: snapshot.bucket must not be empty for the %s sink", c.Snapshot.Sink))
		}
	}
	if c.Snapshot.Sink != "none" && c.Snapshot.Name == "" {
		errs = append(errs, errors.New("config: snapshot.name must not be empty"))
	}

	return errs
}

func oneOf(key, value string, allowed ...string) []error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return []error{fmt.Errorf("config: %s must be one of [%s], got %q", key, strings.Join(allowed, ", "), value)}
}
