// Package config loads controller configuration: compiled-in defaults,
// overridden by an optional YAML file, overridden by WAYSIDE_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/trackworks/wayside/internal/fault"
	"github.com/trackworks/wayside/internal/track"
)

// Duration wraps time.Duration so "5s" parses from both YAML and
// environment values.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// FaultTuning overrides the fault detector's windows and limits. Zero values
// keep the detector defaults.
type FaultTuning struct {
	BrokenRailWindow   Duration `yaml:"broken_rail_window" env:"WAYSIDE_BROKEN_RAIL_WINDOW"`
	TrackCircuitWindow Duration `yaml:"track_circuit_window" env:"WAYSIDE_TRACK_CIRCUIT_WINDOW"`
	CommandTimeout     Duration `yaml:"command_timeout" env:"WAYSIDE_COMMAND_TIMEOUT"`
	MaxAttempts        int      `yaml:"max_attempts" env:"WAYSIDE_FAULT_MAX_ATTEMPTS"`
	HistoryLimit       int      `yaml:"history_limit" env:"WAYSIDE_FAULT_HISTORY_LIMIT"`
}

// Config is the full controller configuration.
type Config struct {
	Line              string      `yaml:"line" env:"WAYSIDE_LINE"`
	Program           string      `yaml:"program" env:"WAYSIDE_PROGRAM"`
	PollInterval      Duration    `yaml:"poll_interval" env:"WAYSIDE_POLL_INTERVAL"`
	GuardPollInterval Duration    `yaml:"guard_poll_interval" env:"WAYSIDE_GUARD_POLL_INTERVAL"`
	LogLevel          string      `yaml:"log_level" env:"WAYSIDE_LOG_LEVEL"`
	Fault             FaultTuning `yaml:"fault"`
}

// Default returns the stock configuration: the Green Line at 1 Hz with the
// block-ahead program loaded.
func Default() Config {
	return Config{
		Line:         "Green Line",
		Program:      "block-ahead",
		PollInterval: Duration(time.Second),
		LogLevel:     "info",
	}
}

// Load builds the configuration. path may be empty; when set, the file must
// exist and parse. Environment variables win over the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the controller cannot run with.
func (c Config) Validate() error {
	if track.LineByName(c.Line) == nil {
		return fmt.Errorf("unknown line %q", c.Line)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval.Std())
	}
	if c.GuardPollInterval < 0 {
		return fmt.Errorf("guard_poll_interval must not be negative, got %s", c.GuardPollInterval.Std())
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

// Topology resolves the configured line.
func (c Config) Topology() *track.Topology {
	return track.LineByName(c.Line)
}

// FaultConfig converts the tuning overrides to the detector's config. Unset
// fields stay zero and fall back to the detector defaults.
func (c Config) FaultConfig() fault.Config {
	return fault.Config{
		BrokenRailWindow:   c.Fault.BrokenRailWindow.Std(),
		TrackCircuitWindow: c.Fault.TrackCircuitWindow.Std(),
		CommandTimeout:     c.Fault.CommandTimeout.Std(),
		MaxAttempts:        c.Fault.MaxAttempts,
		HistoryLimit:       c.Fault.HistoryLimit,
	}
}
