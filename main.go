// Package main provides the CLI entry point for the conversation simulator.
//
// Start the control API:
//
//	simulator serve
//
// Run one test from the catalog and stream its events to stdout:
//
//	simulator run --test greeting --api-key $OPENAI_API_KEY
//
// Configuration comes from the environment, overlaid by the YAML file named
// in SIMULATOR_CONFIG or --config.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "simulator",
		Short:        "Simulate users talking to a conversational agent",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				return os.Setenv(configEnv, configPath)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")

	rootCmd.AddCommand(
		buildServeCmd(),
		buildRunCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "simulator %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
