package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pi-escrow-ledger/internal/platform/persistence"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending PostgreSQL migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statusOnly, err := cmd.Flags().GetBool("status")
			if err != nil {
				return err
			}

			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if !statusOnly {
				if err := persistence.RunMigrations(cfg.Postgres.URL, cfg.Postgres.MigrationsPath); err != nil {
					return err
				}
			}

			status, err := persistence.CurrentMigration(cfg.Postgres.URL, cfg.Postgres.MigrationsPath)
			if err != nil {
				return err
			}
			printMigrationStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}

	cmd.Flags().Bool("status", false, "only print the applied version")

	return cmd
}

func printMigrationStatus(out io.Writer, status persistence.MigrationStatus) {
	if status.Version == 0 {
		fmt.Fprintln(out, "schema version: none")
		return
	}
	if status.Dirty {
		fmt.Fprintf(out, "schema version: %d (dirty)\n", status.Version)
		return
	}
	fmt.Fprintf(out, "schema version: %d\n", status.Version)
}
