// Package config loads the settings that turn context propagation on and
// size the executors: a YAML file, overridden by FUTUREZ_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation and parse failure.
var ErrInvalidConfig = errors.New("invalid config")

// Environment variables read by Load and FromEnv.
const (
	EnvPropagationEnabled = "FUTUREZ_PROPAGATION_ENABLED"
	EnvPoolWorkers        = "FUTUREZ_POOL_WORKERS"
	EnvPoolQueueSize      = "FUTUREZ_POOL_QUEUE_SIZE"
	EnvLogLevel           = "FUTUREZ_LOG_LEVEL"
)

// Config is the full configuration.
type Config struct {
	Propagation PropagationConfig `yaml:"propagation"`
	Pool        PoolConfig        `yaml:"pool"`
	Retry       RetryConfig       `yaml:"retry"`
	Log         LogConfig         `yaml:"log"`
}

// PropagationConfig holds the propagation switch. Absent means off.
type PropagationConfig struct {
	Enabled bool `yaml:"enabled"`
}

// PoolConfig sizes the default pool.
type PoolConfig struct {
	Workers     int  `yaml:"workers"`
	QueueSize   int  `yaml:"queue_size"`
	WorkerSpans bool `yaml:"worker_spans"`
}

// RetryConfig controls re-invocation of failed bodies. MaxRetries 0 disables retries.
type RetryConfig struct {
	MaxRetries      uint64        `yaml:"max_retries"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Pool: PoolConfig{
			Workers:   4,
			QueueSize: 64,
		},
		Retry: RetryConfig{
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path on top of Default, applies environment overrides and
// validates. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default without consulting the environment.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv is Load without a file.
func FromEnv() (Config, error) {
	return Load("")
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv(EnvPropagationEnabled); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvPropagationEnabled, err)
		}
		cfg.Propagation.Enabled = b
	}
	if v, ok := os.LookupEnv(EnvPoolWorkers); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvPoolWorkers, err)
		}
		cfg.Pool.Workers = n
	}
	if v, ok := os.LookupEnv(EnvPoolQueueSize); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvPoolQueueSize, err)
		}
		cfg.Pool.QueueSize = n
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		cfg.Log.Level = v
	}
	return nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	if c.Pool.Workers <= 0 {
		return fmt.Errorf("%w: pool.workers must be > 0, got %d", ErrInvalidConfig, c.Pool.Workers)
	}
	if c.Pool.QueueSize < 0 {
		return fmt.Errorf("%w: pool.queue_size must be >= 0, got %d", ErrInvalidConfig, c.Pool.QueueSize)
	}
	if c.Retry.InitialInterval < 0 || c.Retry.MaxInterval < 0 {
		return fmt.Errorf("%w: retry intervals must not be negative", ErrInvalidConfig)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("%w: log.format must be json or text, got %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, s)
	}
}

// NewLogger builds a logger writing to w. A nil w writes to stderr.
func NewLogger(cfg LogConfig, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
