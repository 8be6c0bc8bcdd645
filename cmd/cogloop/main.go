package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nvandessel/cogloop/internal/config"
	"github.com/nvandessel/cogloop/internal/pathutil"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cogloop",
		Short: "Discrete-event simulation of evidence accumulation and choice",
		Long: `cogloop runs scenarios through an event-driven network of chunks,
evidence accumulators and stochastic choice processes.

Scenarios are YAML files naming the feature dimensions, the chunks that
link features to responses, and the trials to present.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newValidateCmd(),
		newTraceCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}

// loadSettings loads the user configuration and validates it.
func loadSettings() (*config.CogloopConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// tracePath resolves the configured trace database against root.
func tracePath(root string, cfg *config.CogloopConfig) string {
	return pathutil.Resolve(root, cfg.Trace.Path)
}

// interruptContext returns a context cancelled on Ctrl+C.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}
