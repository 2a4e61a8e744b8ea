package cli

import (
	"fmt"

	"github.com/ledger-sync/internal/storage"
	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var action, path string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run ledger database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, rootOpts, action, path)
		},
	}

	cmd.Flags().StringVar(&action, "action", "up", "migration action: up, down, version")
	cmd.Flags().StringVar(&path, "path", "", "migrations directory (default: migrations embedded in the binary)")

	return cmd
}

func runMigrate(cmd *cobra.Command, opts *RootOptions, action, path string) error {
	app, err := NewApp(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	databaseURL := app.Config.Database.Postgres.URL()
	out := cmd.OutOrStdout()

	switch action {
	case "up":
		app.Logger.Info("Running Postgres migrations...")
		if err := storage.RunMigrations(databaseURL, path); err != nil {
			return WrapExitError(ExitFailure, "migration failed", err)
		}
		fmt.Fprintln(out, "Postgres migrations completed successfully")

	case "down":
		app.Logger.Info("Rolling back Postgres migration...")
		if err := storage.RollbackMigrations(databaseURL, path); err != nil {
			return WrapExitError(ExitFailure, "rollback failed", err)
		}
		fmt.Fprintln(out, "Postgres migration rolled back successfully")

	case "version":
		version, dirty, err := storage.MigrationVersion(databaseURL, path)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read migration version", err)
		}
		fmt.Fprintf(out, "Current Postgres migration version: %d (dirty: %v)\n", version, dirty)

	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown action: %s", action))
	}

	return nil
}
