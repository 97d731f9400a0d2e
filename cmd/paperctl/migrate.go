package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"paperpedia/api/internal/store"
)

func newMigrateCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := store.MigrateUp(cfg.DatabaseURL); err != nil {
				return err
			}
			return printVersion(cmd, cfg.DatabaseURL)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [n]",
		Short: "Roll back n migrations (all when n is omitted)",
		Long: `Roll back applied migrations.

Examples:
  paperctl migrate down 1   # roll back the latest migration
  paperctl migrate down     # roll back everything`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 0
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("n must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := store.MigrateDown(cfg.DatabaseURL, steps); err != nil {
				return err
			}
			return printVersion(cmd, cfg.DatabaseURL)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return printVersion(cmd, cfg.DatabaseURL)
		},
	})
	return cmd
}

func printVersion(cmd *cobra.Command, databaseURL string) error {
	version, dirty, err := store.MigrationVersion(databaseURL)
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", version, state)
	return nil
}
