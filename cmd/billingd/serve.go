package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tbeaudouin05/billing-reconciler/api/bootstrap"
	"github.com/tbeaudouin05/billing-reconciler/api/config"
	"github.com/tbeaudouin05/billing-reconciler/api/database"
	"github.com/tbeaudouin05/billing-reconciler/api/logging"
)

func newServeCmd() *cobra.Command {
	var skipMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and gRPC health servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			logger := logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "billingd"})

			if !skipMigrate {
				if err := database.Migrate(cfg.DatabaseURL); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				logger.Info().Msg("schema up to date")
			}

			app, err := bootstrap.New(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			logger.Info().
				Str("version", Version).
				Str("http_port", cfg.HTTPPort).
				Str("grpc_port", cfg.GRPCPort).
				Int("plans", len(cfg.PlanIDs())).
				Msg("starting billingd")
			return app.Server().Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply pending migrations on startup")
	return cmd
}
