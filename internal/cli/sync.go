package cli

import (
	"fmt"
	"io"

	apperrors "github.com/ledger-sync/internal/errors"
	"github.com/ledger-sync/internal/service"
	"github.com/ledger-sync/internal/source"
	"github.com/ledger-sync/internal/types"
	"github.com/spf13/cobra"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	var jobName string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one snapshot-diff cycle for a notify job",
		Long: `Run a single sync cycle for a notify_transactions job: fetch every record
visible in the window, store it as a new snapshot, and notify only records
that were not in the previous snapshot.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rootOpts, jobName)
		},
	}

	cmd.Flags().StringVar(&jobName, "job", "", "job name from the jobs file")
	_ = cmd.MarkFlagRequired("job")

	return cmd
}

func runSync(cmd *cobra.Command, opts *RootOptions, jobName string) error {
	app, err := NewApp(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer app.Close()

	jc, err := app.Job(jobName)
	if err != nil {
		return err
	}
	if jc.Type != types.JobNotifyTransactions {
		return NewExitError(ExitCommandError, fmt.Sprintf("job %s is a %s job, not %s", jc.Name, jc.Type, types.JobNotifyTransactions))
	}

	registry := source.NewRegistry()
	if !registry.Supports(jc.Source.Kind) {
		return WrapExitError(ExitCommandError, "cannot run job", apperrors.NewUnsupportedSourceError(jc.Source.Kind))
	}
	src, err := registry.Build(jc.Source, app.NewClient(jc.Source))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid source", err)
	}

	svc, err := app.SyncService()
	if err != nil {
		return WrapExitError(ExitFailure, "snapshot store unavailable", err)
	}

	result, err := svc.RunCycle(cmd.Context(), src, jc.Recipient)
	if result != nil {
		if werr := writeResult(cmd.OutOrStdout(), opts.Format, result, func(w io.Writer) { printCycle(w, result) }); werr != nil {
			return werr
		}
	}
	if err != nil {
		return WrapExitError(ExitFailure, "sync cycle failed", err)
	}
	return nil
}

func printCycle(w io.Writer, result *service.CycleResult) {
	fmt.Fprintf(w, "run %s (%s): %d new of %d records\n", result.RunID, result.Source, result.New, result.Current)
	fmt.Fprintf(w, "snapshot %s\n", result.SnapshotKey)
	for _, group := range result.Accounts {
		fmt.Fprintf(w, "  %s: %d new\n", group.AccountID, len(group.Records))
	}
}
