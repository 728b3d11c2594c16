package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/optikiln/optikiln/pkg/config"
	"github.com/optikiln/optikiln/pkg/service"
	"github.com/optikiln/optikiln/pkg/strategy"
	"github.com/optikiln/optikiln/pkg/telemetry"
)

func newCycleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Run a single optimization cycle",
		Long: `Execute one optimization cycle and print the result.

The cycle reads the newest plant data from the database, runs the
configured strategy, checks guardrails, and persists the recommendations
exactly as the service loop would. Useful for commissioning a strategy or
inspecting what the service would recommend right now.`,
		Example: `  # Run one cycle and print the recommendations
  optikiln cycle

  # Machine-readable output
  optikiln cycle --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.LoadServiceConfig(configPath)
			if err != nil {
				return err
			}

			tel, err := telemetry.New(cfg.Telemetry)
			if err != nil {
				return err
			}
			defer shutdownTelemetry(tel)

			svc, err := service.New(ctx, cfg, tel)
			if err != nil {
				return err
			}
			defer svc.Close()

			report, err := svc.RunOnce(ctx)
			if err != nil {
				if strategy.IsInput(err) {
					fmt.Printf("Cycle skipped: no recent data for %v\n", strategy.MissingVariables(err))
					return nil
				}
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(report)
			}
			printReport(report)
			return nil
		},
	}

	return cmd
}

func printReport(report *service.Report) {
	fmt.Printf("Cycle %d completed in %s\n", report.Cycle, report.Duration.Round(time.Millisecond))
	if len(report.Recommendations) == 0 {
		fmt.Println("No recommendations produced")
		return
	}
	for _, r := range report.Recommendations {
		fmt.Printf("  %-24s current=%.4f recommended=%.4f delta=%+.4f\n",
			r.VariableID, r.Current, r.Recommended, r.Delta)
	}
	if report.Blocked {
		fmt.Println("BLOCKED by guardrails, recommendations were not persisted:")
		for _, v := range report.Violations {
			fmt.Printf("  [%s] %s: %s\n", v.Severity, v.Policy, v.Message)
		}
	}
}
