package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tbeaudouin05/billing-reconciler/api/config"
	"github.com/tbeaudouin05/billing-reconciler/api/database"
)

func newMigrateCmd() *cobra.Command {
	var (
		databaseURL string
		force       bool
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if databaseURL != "" {
				return nil
			}
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			databaseURL = os.Getenv("DATABASE_URL")
			if databaseURL == "" {
				return errors.New("missing database URL: pass --database-url or set DATABASE_URL")
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "database URL (defaults to DATABASE_URL)")

	withMigrator := func(fn func(cmd *cobra.Command, m *database.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			m, err := database.NewMigrator(databaseURL)
			if err != nil {
				return err
			}
			defer m.Close()
			return fn(cmd, m)
		}
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			if force {
				return nil
			}
			return config.CheckNotProdDB(databaseURL)
		},
		RunE: withMigrator(func(cmd *cobra.Command, m *database.Migrator) error {
			if err := m.Down(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "rolled back one migration")
			return nil
		}),
	}
	down.Flags().BoolVar(&force, "force", false, "allow rolling back a production database")

	cmd.AddCommand(
		down,
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(cmd *cobra.Command, m *database.Migrator) error {
				changed, err := m.Up()
				if err != nil {
					return err
				}
				if changed {
					fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "no change")
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(cmd *cobra.Command, m *database.Migrator) error {
				version, dirty, ok, err := m.Version()
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", version, dirty)
				return nil
			}),
		},
	)
	return cmd
}
