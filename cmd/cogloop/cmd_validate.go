package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/cogloop/internal/logging"
	"github.com/nvandessel/cogloop/internal/simulation"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenario.yaml>",
		Short: "Check a scenario and compile its chunks without running trials",
		Long: `Validate a scenario file.

This command checks for:
  - Unknown response dimensions and feature references
  - Chunks without a valid response value
  - Trials without evidence or with unknown features

It then builds the network and compiles every chunk, which catches
wiring errors before a run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadSettings()
			if err != nil {
				return err
			}
			sc, err := simulation.LoadScenario(args[0])
			if err != nil {
				return err
			}
			model, err := simulation.Build(cfg, sc, logging.Discard())
			if err != nil {
				return fmt.Errorf("failed to build scenario: %w", err)
			}

			procs := model.System().Processes()
			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]interface{}{
					"valid":      true,
					"scenario":   sc.Name,
					"dimensions": len(sc.Dimensions),
					"chunks":     len(sc.Chunks),
					"trials":     len(sc.Trials),
					"processes":  len(procs),
					"threshold":  model.Accumulator().Threshold(),
					"sd":         model.Choice().SD(),
				})
			}
			fmt.Fprintf(out, "Scenario %s is valid\n", sc.Name)
			fmt.Fprintf(out, "  dimensions: %d\n", len(sc.Dimensions))
			fmt.Fprintf(out, "  chunks:     %d\n", len(sc.Chunks))
			fmt.Fprintf(out, "  trials:     %d\n", len(sc.Trials))
			fmt.Fprintf(out, "  processes:  %d\n", len(procs))
			fmt.Fprintf(out, "  threshold:  %g\n", model.Accumulator().Threshold())
			fmt.Fprintf(out, "  sd:         %g\n", model.Choice().SD())
			return nil
		},
	}
}
