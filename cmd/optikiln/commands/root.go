package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "optikiln",
		Short: "Optikiln - Real-Time Plant Optimization Service",
		Long: `Optikiln executes optimization strategies against live plant data.

A strategy declares typed process variables and a pipeline of skills
(formulas, constraints, inference models, solvers) over them. Each cycle
the service snapshots the newest plant values, runs the pipeline, checks
the resulting setpoint recommendations against guardrail policies, and
persists the accepted set.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "optikiln.yaml", "service config file path")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newCycleCommand())
	rootCmd.AddCommand(newValidateCommand())

	return rootCmd
}
