package main

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/nvandessel/cogloop/internal/logging"
	"github.com/nvandessel/cogloop/internal/simulation"
	"github.com/nvandessel/cogloop/internal/trace"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run every trial of a scenario",
		Long: `Build the network described by a scenario and run its trials in order.

Each trial sends its evidence once per step until the accumulator crosses
threshold and a response is chosen, or the steps run out.

Examples:
  cogloop run scenario.yaml                 # Run with configured settings
  cogloop run scenario.yaml --seed 7        # Override the random seed
  cogloop run scenario.yaml --repeat 100    # Present the trial list 100 times
  cogloop run scenario.yaml --trace --json  # Record to the trace database`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			repeat, _ := cmd.Flags().GetInt("repeat")

			cfg, err := loadSettings()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				cfg.Scheduler.Seed, _ = cmd.Flags().GetUint64("seed")
			}
			if cmd.Flags().Changed("trace") {
				cfg.Trace.Enabled, _ = cmd.Flags().GetBool("trace")
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Logging.Level, _ = cmd.Flags().GetString("log-level")
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid flags: %w", err)
			}

			sc, err := simulation.LoadScenario(args[0])
			if err != nil {
				return err
			}
			if repeat > 1 {
				trials := sc.Trials
				for range repeat - 1 {
					sc.Trials = append(sc.Trials, trials...)
				}
			}

			logger := logging.NewLogger(cfg.Logging.Level, os.Stderr)
			model, err := simulation.Build(cfg, sc, logger)
			if err != nil {
				return fmt.Errorf("failed to build scenario: %w", err)
			}

			ctx, stop := interruptContext()
			defer stop()

			opts := simulation.RunOptions{
				Decisions: logging.NewDecisionLogger(filepath.Join(root, ".cogloop"), cfg.Logging.Level),
			}
			defer opts.Decisions.Close()

			if cfg.Trace.Enabled {
				store, err := trace.Open(tracePath(root, cfg))
				if err != nil {
					return fmt.Errorf("failed to open trace: %w", err)
				}
				defer store.Close()
				if opts.Recorder, err = store.BeginRun(ctx, sc.Name, cfg.Scheduler.Seed); err != nil {
					return fmt.Errorf("failed to begin trace run: %w", err)
				}
			}

			res, runErr := model.Run(ctx, opts)
			if opts.Recorder != nil {
				// the run context may already be cancelled
				if err := opts.Recorder.Finish(context.Background(), runErr); err != nil && runErr == nil {
					runErr = err
				}
			}
			if runErr != nil {
				return fmt.Errorf("run failed: %w", runErr)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(res)
			}
			fmt.Fprint(out, res.Summary())
			if counts := res.Counts(); len(counts) > 0 && len(res.Trials) > 1 {
				fmt.Fprintln(out, "choices:")
				for _, v := range slices.Sorted(maps.Keys(counts)) {
					fmt.Fprintf(out, "  %s: %d\n", v, counts[v])
				}
			}
			if res.RunID != "" {
				fmt.Fprintf(out, "trace run: %s\n", res.RunID)
			}
			return nil
		},
	}

	cmd.Flags().Uint64("seed", 0, "Random seed (overrides config)")
	cmd.Flags().Bool("trace", false, "Record the run to the trace database")
	cmd.Flags().Int("repeat", 1, "Number of times to present the trial list")
	cmd.Flags().String("log-level", "", "Log level: warn, info, debug or trace (overrides config)")

	return cmd
}
