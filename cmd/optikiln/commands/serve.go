package commands

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/optikiln/optikiln/pkg/config"
	"github.com/optikiln/optikiln/pkg/service"
	"github.com/optikiln/optikiln/pkg/telemetry"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the optimization service",
		Long: `Run the optimization service until interrupted.

The service executes one optimization cycle per configured interval,
watches the strategy document for changes and hot-reloads it, and serves
the read-only HTTP API when enabled.`,
		Example: `  # Run with the default config file
  optikiln serve

  # Run with an explicit config file
  optikiln serve --config /etc/optikiln/optikiln.yaml`,
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

			tel.Logger.Info().
				Str("strategy", cfg.StrategyPath).
				Dur("interval", cfg.CycleInterval.Std()).
				Msg("service starting")

			if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			tel.Logger.Info().Msg("service stopped")
			return nil
		},
	}

	return cmd
}

func shutdownTelemetry(tel *telemetry.Telemetry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("telemetry shutdown failed")
	}
}
