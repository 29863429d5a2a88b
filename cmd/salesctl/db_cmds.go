package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/salesimport/internal/admin"
	"github.com/JonMunkholm/salesimport/internal/database"
)

func newLoadConfigsCmd(c *cli) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "load-configs",
		Short: "Validate a platform config document and upsert it into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = c.cfg.Import.PlatformConfigPath
			}
			pool, err := database.Connect(cmd.Context(), c.cfg.Database)
			if err != nil {
				return withCode(exitDB, err)
			}
			defer pool.Close()
			return loadConfigs(cmd.Context(), pool, path, c.cfg.Import.DefaultBatchSize)
		},
	}

	cmd.Flags().StringVar(&path, "file", "", "Platform config document (default: IMPORT_PLATFORM_CONFIG)")
	return cmd
}

func newMigrateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withCode(exitDB, database.MigrateUp(c.cfg.Database.URL))
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withCode(exitDB, database.MigrateDown(c.cfg.Database.URL))
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				version, dirty, err := database.MigrationVersion(c.cfg.Database.URL)
				if err != nil {
					return withCode(exitDB, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %v)\n", version, dirty)
				return nil
			},
		},
	)
	return cmd
}

func newResetCmd(c *cli) *cobra.Command {
	var (
		history bool
		yes     bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all imported sales data (platform configs are kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return withCode(exitUsage, errors.New("refusing to reset without --yes"))
			}
			pool, err := database.Connect(cmd.Context(), c.cfg.Database)
			if err != nil {
				return withCode(exitDB, err)
			}
			defer pool.Close()

			if err := admin.Reset(cmd.Context(), pool, admin.ResetOptions{History: history}); err != nil {
				return withCode(exitDB, err)
			}
			fmt.Fprintln(os.Stderr, "database reset")
			return nil
		},
	}

	cmd.Flags().BoolVar(&history, "history", false, "Also clear the import run history")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")
	return cmd
}
