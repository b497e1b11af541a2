package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dayplan/plancache/errors"
)

// Duration wraps time.Duration so YAML values can be written as strings
// like "24h", "5m" or "500ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the complete engine configuration.
type Config struct {
	Version      string             `yaml:"version"`
	Remote       RemoteConfig       `yaml:"remote"`
	Cache        CacheConfig        `yaml:"cache"`
	Queue        QueueConfig        `yaml:"queue"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// RemoteConfig configures the backend REST client.
type RemoteConfig struct {
	BaseURL        string   `yaml:"base_url"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

// CacheConfig configures the bounded entry store and the per-collection
// TTL table. Collections absent from the table have no TTL mapping and
// reads against them fail fast.
type CacheConfig struct {
	MaxEntries  int                 `yaml:"max_entries"`
	Collections map[string]Duration `yaml:"collections"`
}

// QueueConfig configures the offline sync queue.
type QueueConfig struct {
	MaxAttempts  int         `yaml:"max_attempts"`
	DrainWorkers int         `yaml:"drain_workers"`
	StoragePath  string      `yaml:"storage_path"`
	InMemory     bool        `yaml:"in_memory"`
	Retry        RetryConfig `yaml:"retry"`
}

// RetryConfig configures backoff between replay attempts.
type RetryConfig struct {
	InitialDelay Duration `yaml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
	Multiplier   float64  `yaml:"multiplier"`
}

// ConnectivityConfig configures the online/offline monitor.
type ConnectivityConfig struct {
	ProbeInterval    Duration `yaml:"probe_interval"`
	ProbePath        string   `yaml:"probe_path"`
	HeartbeatURL     string   `yaml:"heartbeat_url"` // optional websocket heartbeat
	FailureThreshold int      `yaml:"failure_threshold"`
	SuccessThreshold int      `yaml:"success_threshold"`
}

// MetricsConfig configures the diagnostics HTTP server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures slog output in cmd.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultCollectionTTLs is the stock TTL table for the Daily Planner
// collections. Aggregates that change often (habit logs, time blocks) stay
// fresh for minutes; slow-moving reference data keeps for hours.
func DefaultCollectionTTLs() map[string]Duration {
	return map[string]Duration{
		"goals":       Duration(24 * time.Hour),
		"habits":      Duration(12 * time.Hour),
		"habitLogs":   Duration(5 * time.Minute),
		"timeBlocks":  Duration(5 * time.Minute),
		"categories":  Duration(24 * time.Hour),
		"monthlyData": Duration(30 * time.Minute),
		"actionPlans": Duration(30 * time.Minute),
	}
}

// Default returns the default engine configuration.
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		Remote: RemoteConfig{
			RequestTimeout: Duration(10 * time.Second),
		},
		Cache: CacheConfig{
			MaxEntries:  500,
			Collections: DefaultCollectionTTLs(),
		},
		Queue: QueueConfig{
			MaxAttempts:  5,
			DrainWorkers: 4,
			StoragePath:  "plancache-queue",
			Retry: RetryConfig{
				InitialDelay: Duration(500 * time.Millisecond),
				MaxDelay:     Duration(30 * time.Second),
				Multiplier:   2.0,
			},
		},
		Connectivity: ConnectivityConfig{
			ProbeInterval:    Duration(15 * time.Second),
			ProbePath:        "/health",
			FailureThreshold: 2,
			SuccessThreshold: 1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a YAML config file, applies defaults for unset fields and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "read config file")
	}

	cfg := Default()
	// An explicit collections table replaces the stock one entirely; decoding
	// into the pre-filled map would merge instead.
	cfg.Cache.Collections = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "parse YAML")
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero values that yaml.Unmarshal may have cleared.
func (c *Config) applyDefaults() {
	def := Default()

	if c.Remote.RequestTimeout <= 0 {
		c.Remote.RequestTimeout = def.Remote.RequestTimeout
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = def.Cache.MaxEntries
	}
	if c.Cache.Collections == nil {
		c.Cache.Collections = DefaultCollectionTTLs()
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = def.Queue.MaxAttempts
	}
	if c.Queue.DrainWorkers == 0 {
		c.Queue.DrainWorkers = def.Queue.DrainWorkers
	}
	if c.Queue.StoragePath == "" {
		c.Queue.StoragePath = def.Queue.StoragePath
	}
	if c.Queue.Retry.InitialDelay <= 0 {
		c.Queue.Retry.InitialDelay = def.Queue.Retry.InitialDelay
	}
	if c.Queue.Retry.MaxDelay <= 0 {
		c.Queue.Retry.MaxDelay = def.Queue.Retry.MaxDelay
	}
	if c.Queue.Retry.Multiplier == 0 {
		c.Queue.Retry.Multiplier = def.Queue.Retry.Multiplier
	}
	if c.Connectivity.ProbeInterval <= 0 {
		c.Connectivity.ProbeInterval = def.Connectivity.ProbeInterval
	}
	if c.Connectivity.ProbePath == "" {
		c.Connectivity.ProbePath = def.Connectivity.ProbePath
	}
	if c.Connectivity.FailureThreshold == 0 {
		c.Connectivity.FailureThreshold = def.Connectivity.FailureThreshold
	}
	if c.Connectivity.SuccessThreshold == 0 {
		c.Connectivity.SuccessThreshold = def.Connectivity.SuccessThreshold
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = def.Metrics.Port
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = def.Metrics.Path
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
}

// Validate checks the configuration for values that are present but wrong.
// A bad value is a ConfigurationError, never silently corrected.
func (c *Config) Validate() error {
	if c.Remote.BaseURL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate",
			"remote.base_url is required")
	}
	if c.Cache.MaxEntries <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("cache.max_entries must be positive, got %d", c.Cache.MaxEntries))
	}
	for name, ttl := range c.Cache.Collections {
		if ttl <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
				fmt.Sprintf("cache.collections.%s TTL must be positive, got %v", name, ttl.Std()))
		}
	}
	if c.Queue.MaxAttempts <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("queue.max_attempts must be positive, got %d", c.Queue.MaxAttempts))
	}
	if c.Queue.DrainWorkers <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("queue.drain_workers must be positive, got %d", c.Queue.DrainWorkers))
	}
	if c.Queue.Retry.MaxDelay < c.Queue.Retry.InitialDelay {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			"queue.retry.max_delay must be >= queue.retry.initial_delay")
	}
	if c.Connectivity.FailureThreshold < 1 || c.Connectivity.SuccessThreshold < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			"connectivity thresholds must be at least 1")
	}
	return nil
}
