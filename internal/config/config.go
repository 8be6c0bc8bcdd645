// Package config provides unified configuration loading for cogloop.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/cogloop/internal/system"
)

// CogloopConfig contains all cogloop configuration settings.
type CogloopConfig struct {
	// Scheduler contains settings for the event loop.
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`

	// Choice contains settings for stochastic selection.
	Choice ChoiceConfig `json:"choice" yaml:"choice"`

	// Accumulator contains settings for evidence accumulation.
	Accumulator AccumulatorConfig `json:"accumulator" yaml:"accumulator"`

	// Trace contains settings for the SQLite event trace.
	Trace TraceConfig `json:"trace" yaml:"trace"`

	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SchedulerConfig configures the simulation event loop.
type SchedulerConfig struct {
	// TimeLimit stops runs at this simulated time. Zero means no limit.
	TimeLimit time.Duration `json:"time_limit" yaml:"time_limit"`

	// CascadeLimit caps the events processed at a single simulated instant.
	// Zero disables the check.
	CascadeLimit int `json:"cascade_limit" yaml:"cascade_limit"`

	// Settle suppresses updates that would not change a site by more
	// than Epsilon.
	Settle  bool    `json:"settle" yaml:"settle"`
	Epsilon float64 `json:"epsilon" yaml:"epsilon"`

	// Seed seeds the shared random source.
	Seed uint64 `json:"seed" yaml:"seed"`
}

// ChoiceConfig configures stochastic selection.
type ChoiceConfig struct {
	// SD is the standard deviation of the selection noise.
	SD float64 `json:"sd" yaml:"sd"`
}

// AccumulatorConfig configures evidence accumulation.
type AccumulatorConfig struct {
	// Threshold is the accumulated evidence that triggers a decision.
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// TraceConfig configures the event trace store.
type TraceConfig struct {
	// Enabled records every run to the trace database.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Path is the SQLite database file. Supports ${VAR} syntax.
	Path string `json:"path" yaml:"path"`
}

// LoggingConfig configures cogloop's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables decision logging to .cogloop/decisions.jsonl.
	// "trace" additionally logs every applied update.
	Level string `json:"level" yaml:"level"`
}

// Default returns a CogloopConfig with sensible defaults.
func Default() *CogloopConfig {
	return &CogloopConfig{
		Scheduler: SchedulerConfig{
			CascadeLimit: 10000,
			Epsilon:      1e-9,
			Seed:         1,
		},
		Choice: ChoiceConfig{
			SD: 1,
		},
		Accumulator: AccumulatorConfig{
			Threshold: 1,
		},
		Trace: TraceConfig{
			Path: filepath.Join(".cogloop", "trace.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.cogloop/config.yaml -> environment variables
func Load() (*CogloopConfig, error) {
	config := Default()

	homeDir, err := os.UserHomeDir()
	if err == nil {
		configPath := filepath.Join(homeDir, ".cogloop", "config.yaml")
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*CogloopConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Trace.Path = expandEnvVars(config.Trace.Path)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *CogloopConfig) Validate() error {
	if c.Scheduler.TimeLimit < 0 {
		return fmt.Errorf("time_limit must be non-negative, got %v", c.Scheduler.TimeLimit)
	}

	if c.Scheduler.CascadeLimit < 0 {
		return fmt.Errorf("cascade_limit must be non-negative, got %d", c.Scheduler.CascadeLimit)
	}

	if c.Scheduler.Epsilon < 0 {
		return fmt.Errorf("epsilon must be non-negative, got %g", c.Scheduler.Epsilon)
	}

	if c.Choice.SD < 0 {
		return fmt.Errorf("choice sd must be non-negative, got %g", c.Choice.SD)
	}

	if !(c.Accumulator.Threshold > 0) {
		return fmt.Errorf("accumulator threshold must be positive, got %g", c.Accumulator.Threshold)
	}

	if c.Trace.Enabled && c.Trace.Path == "" {
		return fmt.Errorf("trace path is required when tracing is enabled")
	}

	validLevels := map[string]bool{"warn": true, "info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: warn, info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// SystemOptions returns the scheduler settings as system options.
func (c *CogloopConfig) SystemOptions() system.Options {
	return system.Options{
		TimeLimit:    c.Scheduler.TimeLimit,
		CascadeLimit: c.Scheduler.CascadeLimit,
		Settle:       c.Scheduler.Settle,
		Epsilon:      c.Scheduler.Epsilon,
		Seed:         c.Scheduler.Seed,
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *CogloopConfig) {
	if v := os.Getenv("COGLOOP_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("COGLOOP_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Scheduler.Seed = n
		}
	}

	if v := os.Getenv("COGLOOP_CASCADE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Scheduler.CascadeLimit = n
		}
	}

	if v := os.Getenv("COGLOOP_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Accumulator.Threshold = f
		}
	}

	if v := os.Getenv("COGLOOP_CHOICE_SD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Choice.SD = f
		}
	}

	if v := os.Getenv("COGLOOP_TRACE"); v != "" {
		config.Trace.Enabled = v == "true" || v == "1"
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
