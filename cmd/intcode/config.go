package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/raskyld/intcode"
	"gopkg.in/yaml.v3"
)

// Config is the content of the optional YAML configuration file. Flags
// take precedence over it.
type Config struct {
	Log     LogConfig     `yaml:"log" json:"log"`
	Network NetworkConfig `yaml:"network" json:"network"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

type LogConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level" json:"level"`
	// Format is text or json.
	Format string `yaml:"format" json:"format"`
}

type NetworkConfig struct {
	Scheduling  string `yaml:"scheduling" json:"scheduling"`
	Seed        int64  `yaml:"seed" json:"seed"`
	Parallelism int    `yaml:"parallelism" json:"parallelism"`
	Trace       bool   `yaml:"trace" json:"trace"`
	// Timeout bounds a whole command, feedback-free programs scheduled
	// sequentially would otherwise wait forever.
	Timeout string `yaml:"timeout" json:"timeout"`
}

type MetricsConfig struct {
	// Listen is where the Prometheus endpoint is served, disabled if
	// empty.
	Listen string `yaml:"listen" json:"listen"`
	Path   string `yaml:"path" json:"path"`
}

func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Network: NetworkConfig{
			Scheduling:  intcode.Concurrent.String(),
			Parallelism: 1,
			Timeout:     "1m",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
	}
}

// LoadConfig reads path on top of the defaults. An empty path returns the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read the config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	if _, err := intcode.ParseScheduling(c.Network.Scheduling); err != nil {
		errs = append(errs, fmt.Errorf("network.scheduling: %w", err))
	}
	if c.Network.Parallelism < 0 {
		errs = append(errs, fmt.Errorf("network.parallelism: must be positive, got %d", c.Network.Parallelism))
	}
	if c.Metrics.Listen != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path: %q must start with /", c.Metrics.Path))
	}
	return errors.Join(errs...)
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return level, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

func (l LogConfig) Handler() slog.Handler {
	level, _ := l.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.NewTextHandler(os.Stderr, opts)
}

// NetworkOptions turns the configuration into options for
// `intcode.NewNetwork`.
func (c Config) NetworkOptions() ([]intcode.Option, error) {
	s, err := intcode.ParseScheduling(c.Network.Scheduling)
	if err != nil {
		return nil, err
	}
	return []intcode.Option{
		intcode.WithLog(c.Log.Handler()),
		intcode.WithScheduling(s),
		intcode.WithSeed(c.Network.Seed),
		intcode.WithParallelism(c.Network.Parallelism),
		intcode.WithTracing(c.Network.Trace),
	}, nil
}
