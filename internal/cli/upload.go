package cli

import (
	"fmt"
	"io"

	"github.com/ledger-sync/internal/service"
	"github.com/ledger-sync/internal/types"
	"github.com/spf13/cobra"
)

// NewUploadCommand creates the upload command.
func NewUploadCommand(rootOpts *RootOptions) *cobra.Command {
	var jobName string

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Download statements and post them to every import target of a job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, rootOpts, jobName)
		},
	}

	cmd.Flags().StringVar(&jobName, "job", "", "job name from the jobs file")
	_ = cmd.MarkFlagRequired("job")

	return cmd
}

func runUpload(cmd *cobra.Command, opts *RootOptions, jobName string) error {
	app, err := NewApp(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer app.Close()

	jc, err := app.Job(jobName)
	if err != nil {
		return err
	}
	if jc.Type != types.JobUploadStatement {
		return NewExitError(ExitCommandError, fmt.Sprintf("job %s is a %s job, not %s", jc.Name, jc.Type, types.JobUploadStatement))
	}

	report, err := app.FanoutService().Upload(cmd.Context(), app.NewClient(jc.Source), jc.Source.AccountIDs, jc.Targets)
	if err != nil {
		return WrapExitError(ExitFailure, "statement download failed", err)
	}

	if err := writeResult(cmd.OutOrStdout(), opts.Format, report, func(w io.Writer) { printUpload(w, report) }); err != nil {
		return err
	}
	if n := report.Failures(); n > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d statement uploads failed", n))
	}
	return nil
}

func printUpload(w io.Writer, report *service.UploadReport) {
	for _, target := range report.Targets {
		fmt.Fprintf(w, "%s: %d uploaded, %d skipped, %d failed\n",
			target.Endpoint, len(target.Uploaded), len(target.Skipped), len(target.Errors))
		for _, msg := range target.Errors {
			fmt.Fprintf(w, "  error: %s\n", msg)
		}
	}
}
