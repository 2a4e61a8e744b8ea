package cli

import (
	"fmt"
	"io"

	"github.com/ledger-sync/internal/adapter"
	"github.com/ledger-sync/internal/service"
	"github.com/spf13/cobra"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	var file, gcsURI string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a statement into the ledger database",
		Long: `Import a JSON statement from a local file or a gs:// object. Accounts and
transactions are keyed by their content, so importing the same statement
twice adds nothing the second time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			location := file
			if gcsURI != "" {
				location = gcsURI
			}
			return runImport(cmd, rootOpts, location)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "statement file path")
	cmd.Flags().StringVar(&gcsURI, "gcs-uri", "", "statement object URI (gs://bucket/object)")
	cmd.MarkFlagsOneRequired("file", "gcs-uri")
	cmd.MarkFlagsMutuallyExclusive("file", "gcs-uri")

	return cmd
}

func runImport(cmd *cobra.Command, opts *RootOptions, location string) error {
	app, err := NewApp(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer app.Close()

	raw, err := adapter.NewStatementReader().Read(cmd.Context(), location)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot read statement", err)
	}

	svc, err := app.ImportService()
	if err != nil {
		return WrapExitError(ExitFailure, "ledger database unavailable", err)
	}

	result, err := svc.ImportRaw(cmd.Context(), raw)
	if err != nil {
		return WrapExitError(ExitFailure, "import failed", err)
	}

	return writeResult(cmd.OutOrStdout(), opts.Format, result, func(w io.Writer) { printImport(w, location, result) })
}

func printImport(w io.Writer, location string, result *service.ImportResult) {
	fmt.Fprintf(w, "imported %s\n", location)
	fmt.Fprintf(w, "  accounts: %d created, %d updated\n", result.AccountsCreated, result.AccountsUpdated)
	fmt.Fprintf(w, "  transactions: %d imported, %d skipped\n", result.TransactionsImported, result.TransactionsSkipped)
}
