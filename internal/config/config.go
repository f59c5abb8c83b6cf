package config

import (
	"errors"
	"strings"

	"github.com/dshills/typebus/internal/dispatch"
)

// Config holds every typebus runtime setting.
type Config struct {
	Log     LogConfig     `toml:"log" yaml:"log"`
	Pool    PoolConfig    `toml:"pool" yaml:"pool"`
	Bus     BusConfig     `toml:"bus" yaml:"bus"`
	Metrics MetricsConfig `toml:"metrics" yaml:"metrics"`
	Script  ScriptConfig  `toml:"script" yaml:"script"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `toml:"level" yaml:"level"`
	// Format is text or json.
	Format string `toml:"format" yaml:"format"`
}

// PoolConfig configures the worker pool used by pooled callbacks.
type PoolConfig struct {
	// Workers is the number of worker goroutines. Zero means GOMAXPROCS.
	Workers int `toml:"workers" yaml:"workers"`
	// QueueSize is the capacity of the task queue.
	QueueSize int `toml:"queue_size" yaml:"queue_size"`
}

// BusConfig configures bus behavior.
type BusConfig struct {
	// DefaultStrategy is used by subscriptions that do not choose one.
	DefaultStrategy string `toml:"default_strategy" yaml:"default_strategy"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Addr    string `toml:"addr" yaml:"addr"`
	Path    string `toml:"path" yaml:"path"`
}

// ScriptConfig configures the Lua bridge.
type ScriptConfig struct {
	// Path is a Lua script run against the bus at startup.
	Path string `toml:"path" yaml:"path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Pool: PoolConfig{
			QueueSize: 1000,
		},
		Bus: BusConfig{
			DefaultStrategy: "inline",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
			Path: "/metrics",
		},
	}
}

// Strategy returns the parsed default strategy.
func (c Config) Strategy() (dispatch.Strategy, error) {
	return dispatch.ParseStrategy(c.Bus.DefaultStrategy)
}

// Validate checks every setting and returns all failures joined.
func (c Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, &ValidationError{Path: "log.level", Value: c.Log.Level, Message: "must be debug, info, warn or error"})
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, &ValidationError{Path: "log.format", Value: c.Log.Format, Message: "must be text or json"})
	}

	if c.Pool.Workers < 0 {
		errs = append(errs, &ValidationError{Path: "pool.workers", Value: c.Pool.Workers, Message: "must not be negative"})
	}
	if c.Pool.QueueSize <= 0 {
		errs = append(errs, &ValidationError{Path: "pool.queue_size", Value: c.Pool.QueueSize, Message: "must be positive"})
	}

	if _, err := c.Strategy(); err != nil {
		errs = append(errs, &ValidationError{Path: "bus.default_strategy", Value: c.Bus.DefaultStrategy, Message: err.Error()})
	}

	if c.Metrics.Enabled {
		if c.Metrics.Addr == "" {
			errs = append(errs, &ValidationError{Path: "metrics.addr", Value: c.Metrics.Addr, Message: "required when metrics are enabled"})
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			errs = append(errs, &ValidationError{Path: "metrics.path", Value: c.Metrics.Path, Message: "must start with /"})
		}
	}

	return errors.Join(errs...)
}
