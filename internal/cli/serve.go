package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ledger-sync/internal/api"
	"github.com/ledger-sync/internal/worker"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// NewWorkerCommand creates the worker command.
func NewWorkerCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run every enabled job on its schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd, rootOpts)
		},
	}
}

func runWorker(cmd *cobra.Command, opts *RootOptions) error {
	app, err := NewApp(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer app.Close()

	scheduler, err := app.Scheduler()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build scheduler", err)
	}

	ctx := cmd.Context()
	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	app.Logger.Info("Shutting down worker...")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return scheduler.Stop(stopCtx)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, rootOpts, withWorker)
		},
	}

	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also run the job scheduler in this process")

	return cmd
}

func runServe(cmd *cobra.Command, opts *RootOptions, withWorker bool) error {
	app, err := NewApp(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer app.Close()

	importer, err := app.ImportService()
	if err != nil {
		return WrapExitError(ExitFailure, "ledger database unavailable", err)
	}
	snapshots, err := app.SnapshotStore()
	if err != nil {
		return WrapExitError(ExitFailure, "snapshot store unavailable", err)
	}

	ctx := cmd.Context()

	var scheduler *worker.Scheduler
	var jobs api.JobStatusProvider
	if withWorker {
		scheduler, err = app.Scheduler()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to build scheduler", err)
		}
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		jobs = scheduler
	}

	serverConfig := &api.ServerConfig{
		Host:            app.Config.Server.Host,
		Port:            app.Config.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: shutdownTimeout,
		RequestsPerSec:  app.Config.Server.RequestsPerSec,
		MaxBodyBytes:    app.Config.Server.MaxBodyBytes,
	}
	server := api.NewServer(serverConfig, importer, snapshots, jobs, app.healthChecks(), app.Logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return WrapExitError(ExitFailure, "server failed", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.Logger.WithError(err).Error("Server forced to shutdown")
	}
	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			app.Logger.WithError(err).Warn("Scheduler did not stop cleanly")
		}
	}

	app.Logger.Info("Server exited")
	return nil
}
