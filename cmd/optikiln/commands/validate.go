package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/optikiln/optikiln/pkg/config"
	"github.com/optikiln/optikiln/pkg/service"
	"github.com/optikiln/optikiln/pkg/strategy"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [strategy-file]",
		Short: "Validate a strategy document",
		Long: `Validate a strategy document without running a cycle.

This command checks:
  - YAML syntax and schema conformance
  - Variable and skill cross-references
  - Task and skill wiring, including the pre-calculation task
  - Optimizer bindings (cost skill, cost variable, algorithm)

Model artifacts referenced by inference skills are loaded through the
configured artifact store; an unreachable artifact is reported as a
warning because the skill would run degraded, not fail.`,
		Example: `  # Validate the strategy named in the service config
  optikiln validate

  # Validate a specific document
  optikiln validate ./strategies/kiln.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServiceConfig(configPath)
			if err != nil {
				return err
			}
			path := cfg.StrategyPath
			if len(args) > 0 {
				path = args[0]
			}

			parser, err := config.NewStrategyParser()
			if err != nil {
				return err
			}
			strategyCfg, err := parser.ParseFile(path)
			if err != nil {
				return fmt.Errorf("strategy %s is invalid: %w", path, err)
			}

			store, _, err := service.BuildArtifactStore(cfg.Artifacts, log.Logger)
			if err != nil {
				return err
			}
			strat, err := strategy.New(cmd.Context(), *strategyCfg, strategy.Deps{
				Artifacts: store,
				Logger:    log.Logger,
			})
			if err != nil {
				return fmt.Errorf("strategy %s is invalid: %w", path, err)
			}

			return printValidation(cmd.Context(), path, strategyCfg, strat)
		},
	}

	return cmd
}

func printValidation(_ context.Context, path string, cfg *strategy.Config, strat *strategy.Strategy) error {
	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"strategy":        path,
			"valid":           true,
			"variables":       len(cfg.Variables),
			"skills":          len(cfg.Skills),
			"tasks":           len(cfg.Tasks),
			"required_inputs": strat.RequiredInputs(),
			"optimizable":     strat.Optimizable(),
		})
	}

	fmt.Printf("Strategy %s is valid\n", path)
	fmt.Printf("  variables: %d  skills: %d  tasks: %d\n",
		len(cfg.Variables), len(cfg.Skills), len(cfg.Tasks))
	fmt.Printf("  required inputs: %v\n", strat.RequiredInputs())
	fmt.Printf("  optimizable:     %v\n", strat.Optimizable())
	return nil
}
