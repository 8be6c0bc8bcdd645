package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/cogloop/internal/pathutil"
	"github.com/nvandessel/cogloop/internal/trace"
)

func newTraceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded runs",
		Long: `Inspect runs recorded with 'cogloop run --trace'.

The trace database lives at trace.path (default .cogloop/trace.db under
the project root).

Examples:
  cogloop trace runs                 # List recorded runs, newest first
  cogloop trace show <run-id>        # Show the decisions of a run
  cogloop trace show <run-id> --events
  cogloop trace export <run-id>      # Write .cogloop/exports/<scenario>-<id>.trace.gz
  cogloop trace verify <file>        # Check an export's checksum`,
	}

	cmd.AddCommand(
		newTraceRunsCmd(),
		newTraceShowCmd(),
		newTraceExportCmd(),
		newTraceVerifyCmd(),
	)

	return cmd
}

// openTraceStore opens an existing trace database. It does not create one.
func openTraceStore(cmd *cobra.Command) (*trace.Store, error) {
	root, _ := cmd.Flags().GetString("root")
	cfg, err := loadSettings()
	if err != nil {
		return nil, err
	}
	path := tracePath(root, cfg)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("no trace database at %s. Run 'cogloop run --trace' first", path)
	}
	return trace.Open(path)
}

func newTraceRunsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			store, err := openTraceStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Runs(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]interface{}{
					"runs":  runs,
					"count": len(runs),
				})
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(out, "%s  %-10s %-20s seed=%d  %s\n",
					r.ID, r.Status, r.Scenario, r.Seed, r.StartedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func newTraceShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the decisions (and optionally events) of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			withEvents, _ := cmd.Flags().GetBool("events")

			store, err := openTraceStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			run, err := store.GetRun(ctx, args[0])
			if err != nil {
				return fmt.Errorf("run %s: %w", args[0], err)
			}
			decisions, err := store.Decisions(ctx, run.ID)
			if err != nil {
				return err
			}
			var events []trace.EventRow
			if withEvents {
				if events, err = store.Events(ctx, run.ID); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				result := map[string]interface{}{
					"run":       run,
					"decisions": decisions,
				}
				if withEvents {
					result["events"] = events
				}
				return json.NewEncoder(out).Encode(result)
			}

			fmt.Fprintf(out, "Run %s\n", run.ID)
			fmt.Fprintf(out, "  scenario: %s\n", run.Scenario)
			fmt.Fprintf(out, "  seed:     %d\n", run.Seed)
			fmt.Fprintf(out, "  status:   %s\n", run.Status)
			fmt.Fprintf(out, "\nDecisions (%d):\n", len(decisions))
			for _, d := range decisions {
				fmt.Fprintf(out, "  trial %-4d %-10v %s (evidence=%.4f)\n", d.Trial, d.SimTime, d.Choice, d.Evidence)
			}
			if withEvents {
				fmt.Fprintf(out, "\nEvents (%d):\n", len(events))
				for _, e := range events {
					fmt.Fprintf(out, "  %-6d %-10v %-24s updates=%d\n", e.Seq, e.SimTime, e.Source, e.Updates)
				}
			}
			return nil
		},
	}

	cmd.Flags().Bool("events", false, "Include every processed event")

	return cmd
}

func newTraceExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Export a run to a compressed, checksummed file",
		Long: `Export a run with all its events and decisions.

The file is a JSON header line followed by a gzip payload. Output must be
under <root>/.cogloop/exports or ~/.cogloop/exports.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			outPath, _ := cmd.Flags().GetString("out")

			store, err := openTraceStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			e, err := store.Export(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("run %s: %w", args[0], err)
			}

			allowed, err := pathutil.ExportDirs(root)
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = filepath.Join(allowed[0], trace.ExportFileName(e.Run))
			}
			if err := pathutil.ValidatePath(outPath, allowed); err != nil {
				return err
			}

			header, err := trace.WriteExport(outPath, e)
			if err != nil {
				return fmt.Errorf("failed to write export: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]interface{}{
					"path":   outPath,
					"header": header,
				})
			}
			fmt.Fprintf(out, "Exported run %s to %s\n", header.RunID, outPath)
			fmt.Fprintf(out, "  events: %d  decisions: %d\n", header.EventCount, header.DecisionCount)
			return nil
		},
	}

	cmd.Flags().String("out", "", "Output file (default: <root>/.cogloop/exports/<scenario>-<id>.trace.gz)")

	return cmd
}

func newTraceVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Verify the checksum of a run export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			header, err := trace.VerifyExport(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", pathutil.RedactPath(args[0]), err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(header)
			}
			fmt.Fprintf(out, "OK %s\n", header.Checksum)
			fmt.Fprintf(out, "  run:      %s\n", header.RunID)
			fmt.Fprintf(out, "  scenario: %s\n", header.Scenario)
			fmt.Fprintf(out, "  created:  %s\n", header.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}
