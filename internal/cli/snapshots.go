package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/ledger-sync/internal/storage"
	"github.com/spf13/cobra"
)

// NewSnapshotsCommand creates the snapshots command.
func NewSnapshotsCommand(rootOpts *RootOptions) *cobra.Command {
	var prefix string
	var latest bool

	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List the live snapshots of a key prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshots(cmd, rootOpts, prefix, latest)
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "snapshot key prefix, e.g. scrape:tangerine")
	cmd.Flags().BoolVar(&latest, "latest", false, "print the most recent snapshot instead of listing keys")
	_ = cmd.MarkFlagRequired("prefix")

	return cmd
}

func runSnapshots(cmd *cobra.Command, opts *RootOptions, prefix string, latest bool) error {
	app, err := NewApp(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer app.Close()

	store, err := app.SnapshotStore()
	if err != nil {
		return WrapExitError(ExitFailure, "snapshot store unavailable", err)
	}

	out := cmd.OutOrStdout()

	if latest {
		snapshot, err := store.Latest(cmd.Context(), prefix)
		if errors.Is(err, storage.ErrNotFound) {
			return NewExitError(ExitFailure, fmt.Sprintf("no snapshot for %s", prefix))
		}
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read snapshot", err)
		}
		return writeResult(out, opts.Format, snapshot, func(w io.Writer) {
			fmt.Fprintf(w, "%s: %d records, kept for %s\n", snapshot.Key, len(snapshot.Payload), store.TTL())
		})
	}

	keys, err := store.ListKeys(cmd.Context(), prefix)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list snapshots", err)
	}
	return writeResult(out, opts.Format, keys, func(w io.Writer) {
		for _, key := range keys {
			fmt.Fprintln(w, key)
		}
	})
}
