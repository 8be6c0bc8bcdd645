package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/cogloop/internal/logging"
	"github.com/nvandessel/cogloop/internal/mcp"
	"github.com/nvandessel/cogloop/internal/simulation"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server <scenario.yaml>",
		Short: "Serve a scenario over MCP (stdio)",
		Long: `Run an MCP server over stdio that drives one scenario interactively.

Tools:
  cogloop_send    schedule evidence
  cogloop_run     advance until a choice lands
  cogloop_poll    read the current selection
  cogloop_clear   drop pending events and reset evidence
  cogloop_status  report time, queue and accumulator state

Logs go to stderr; stdout carries the protocol.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")

			cfg, err := loadSettings()
			if err != nil {
				return err
			}
			sc, err := simulation.LoadScenario(args[0])
			if err != nil {
				return err
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:     "cogloop",
				Version:  version,
				Root:     root,
				Scenario: sc,
				Settings: cfg,
				Logger:   logging.NewLogger(cfg.Logging.Level, os.Stderr),
			})
			if err != nil {
				return fmt.Errorf("failed to start MCP server: %w", err)
			}
			return server.Run(context.Background())
		},
	}
}
