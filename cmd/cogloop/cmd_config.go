package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/cogloop/internal/config"
)

// configKeys lists the settable keys in display order.
var configKeys = []string{
	"scheduler.time_limit",
	"scheduler.cascade_limit",
	"scheduler.settle",
	"scheduler.epsilon",
	"scheduler.seed",
	"choice.sd",
	"accumulator.threshold",
	"trace.enabled",
	"trace.path",
	"logging.level",
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage cogloop configuration",
		Long: `View and modify cogloop configuration settings.

Configuration is stored in ~/.cogloop/config.yaml. Environment variables
(COGLOOP_SEED, COGLOOP_THRESHOLD, ...) override the file.

Examples:
  cogloop config list                          # Show all settings
  cogloop config get accumulator.threshold     # Get a specific setting
  cogloop config set scheduler.seed 42         # Set a setting
  cogloop config set trace.enabled true`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(cfg)
			}
			fmt.Fprintln(out, "Configuration (~/.cogloop/config.yaml):")
			fmt.Fprintln(out)
			for _, key := range configKeys {
				value, _ := getConfigValue(cfg, key)
				fmt.Fprintf(out, "  %-26s %v\n", key+":", value)
			}
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			out := cmd.OutOrStdout()
			value, found := getConfigValue(cfg, key)
			if !found {
				if jsonOut {
					json.NewEncoder(out).Encode(map[string]interface{}{
						"error": "key not found",
						"key":   key,
					})
				} else {
					fmt.Fprintf(out, "Unknown configuration key: %s\n", key)
				}
				return nil
			}

			if jsonOut {
				json.NewEncoder(out).Encode(map[string]interface{}{
					"key":   key,
					"value": value,
				})
			} else {
				fmt.Fprintf(out, "%s = %v\n", key, value)
			}
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key, value := args[0], args[1]

			cfg, err := loadFileConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := setConfigValue(cfg, key, value); err != nil {
				if jsonOut {
					json.NewEncoder(out).Encode(map[string]interface{}{
						"error": err.Error(),
						"key":   key,
					})
				} else {
					fmt.Fprintf(out, "Error: %v\n", err)
				}
				return nil
			}

			if err := saveConfig(cfg); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if jsonOut {
				json.NewEncoder(out).Encode(map[string]interface{}{
					"status": "updated",
					"key":    key,
					"value":  value,
				})
			} else {
				fmt.Fprintf(out, "Set %s = %s\n", key, value)
			}
			return nil
		},
	}
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.CogloopConfig, key string) (interface{}, bool) {
	switch key {
	case "scheduler.time_limit":
		return cfg.Scheduler.TimeLimit.String(), true
	case "scheduler.cascade_limit":
		return cfg.Scheduler.CascadeLimit, true
	case "scheduler.settle":
		return cfg.Scheduler.Settle, true
	case "scheduler.epsilon":
		return cfg.Scheduler.Epsilon, true
	case "scheduler.seed":
		return cfg.Scheduler.Seed, true
	case "choice.sd":
		return cfg.Choice.SD, true
	case "accumulator.threshold":
		return cfg.Accumulator.Threshold, true
	case "trace.enabled":
		return cfg.Trace.Enabled, true
	case "trace.path":
		return cfg.Trace.Path, true
	case "logging.level":
		return cfg.Logging.Level, true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key and
// validates the result.
func setConfigValue(cfg *config.CogloopConfig, key, value string) error {
	switch key {
	case "scheduler.time_limit":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.Scheduler.TimeLimit = d
	case "scheduler.cascade_limit":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid cascade limit: %s (must be an integer)", value)
		}
		cfg.Scheduler.CascadeLimit = n
	case "scheduler.settle":
		cfg.Scheduler.Settle = value == "true" || value == "1"
	case "scheduler.epsilon":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid epsilon: %s", value)
		}
		cfg.Scheduler.Epsilon = f
	case "scheduler.seed":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid seed: %s (must be a non-negative integer)", value)
		}
		cfg.Scheduler.Seed = n
	case "choice.sd":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid sd: %s", value)
		}
		cfg.Choice.SD = f
	case "accumulator.threshold":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid threshold: %s", value)
		}
		cfg.Accumulator.Threshold = f
	case "trace.enabled":
		cfg.Trace.Enabled = value == "true" || value == "1"
	case "trace.path":
		cfg.Trace.Path = value
	case "logging.level":
		cfg.Logging.Level = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return cfg.Validate()
}

func configPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".cogloop", "config.yaml"), nil
}

// loadFileConfig loads ~/.cogloop/config.yaml without environment
// overrides, so that set does not persist them.
func loadFileConfig() (*config.CogloopConfig, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.LoadFromFile(path)
}

// saveConfig writes the configuration to ~/.cogloop/config.yaml.
func saveConfig(cfg *config.CogloopConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create .cogloop directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
