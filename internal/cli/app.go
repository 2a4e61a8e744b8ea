package cli

import (
	"fmt"
	"io"

	"github.com/ledger-sync/internal/adapter"
	"github.com/ledger-sync/internal/api"
	"github.com/ledger-sync/internal/config"
	"github.com/ledger-sync/internal/logging"
	"github.com/ledger-sync/internal/notify"
	"github.com/ledger-sync/internal/retry"
	"github.com/ledger-sync/internal/service"
	"github.com/ledger-sync/internal/source"
	"github.com/ledger-sync/internal/statement"
	"github.com/ledger-sync/internal/storage"
	"github.com/ledger-sync/internal/types"
	"github.com/ledger-sync/internal/worker"
)

// App holds the loaded configuration and lazily opened connections shared
// by the commands
type App struct {
	Config *config.Config
	Logger *logging.Logger

	redis    *storage.RedisCache
	postgres *storage.PostgresDB
	secrets  *adapter.SecretOpener
}

// NewApp loads configuration and sets up logging. Logs go to logOut so that
// command output on stdout stays parseable.
func NewApp(opts *RootOptions, logOut io.Writer) (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if opts.JobsFile != "" {
		cfg.JobsFile = opts.JobsFile
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	logger.SetOutput(logOut)

	secrets, err := adapter.NewSecretOpener(cfg.Secrets.KeyringFile, cfg.Secrets.Passphrase)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load secrets keyring", err)
	}

	return &App{Config: cfg, Logger: logger, secrets: secrets}, nil
}

// Redis connects to Redis on first use
func (a *App) Redis() (*storage.RedisCache, error) {
	if a.redis == nil {
		cache, err := storage.NewRedisCache(&a.Config.Database.Redis)
		if err != nil {
			return nil, err
		}
		a.redis = cache
	}
	return a.redis, nil
}

// Postgres connects to Postgres on first use
func (a *App) Postgres() (*storage.PostgresDB, error) {
	if a.postgres == nil {
		db, err := storage.NewPostgresDB(&a.Config.Database.Postgres)
		if err != nil {
			return nil, err
		}
		a.postgres = db
	}
	return a.postgres, nil
}

// Close releases open connections
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.WithError(err).Warn("Failed to close Redis connection")
		}
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
}

// SnapshotStore returns the Redis-backed snapshot store
func (a *App) SnapshotStore() (*storage.SnapshotStore, error) {
	cache, err := a.Redis()
	if err != nil {
		return nil, err
	}
	return storage.NewSnapshotStore(cache, a.Config.Snapshot.TTL), nil
}

// Notifier returns the webhook notifier when configured, else a log notifier
func (a *App) Notifier() notify.Notifier {
	if a.Config.Notify.WebhookURL != "" {
		return notify.NewWebhookNotifier(a.Config.Notify.WebhookURL, a.Config.HTTP.Timeout)
	}
	return notify.NewLogNotifier(a.Logger)
}

// SyncService builds the snapshot-diff service
func (a *App) SyncService() (*service.SyncService, error) {
	store, err := a.SnapshotStore()
	if err != nil {
		return nil, err
	}
	return service.NewSyncService(store, a.Notifier(), a.Logger), nil
}

// ImportService builds the statement importer over Postgres
func (a *App) ImportService() (*service.ImportService, error) {
	db, err := a.Postgres()
	if err != nil {
		return nil, err
	}
	return service.NewImportService(storage.NewLedgerRepository(db), statement.NewJSONParser(), a.Logger), nil
}

// retryConfig is the backoff for outbound HTTP calls
func (a *App) retryConfig() *retry.Config {
	cfg := retry.DefaultConfig()
	if a.Config.HTTP.RetryAttempts > 0 {
		cfg.MaxAttempts = a.Config.HTTP.RetryAttempts
	}
	return cfg
}

// FanoutService builds the statement fan-out service
func (a *App) FanoutService() *service.FanoutService {
	return service.NewFanoutService(a.Config.HTTP.Timeout, a.Logger).WithRetry(a.retryConfig())
}

// NewClient builds the gateway client for a job's source
func (a *App) NewClient(cfg config.SourceConfig) worker.BankClient {
	return adapter.NewBankClient(adapter.BankClientConfig{
		BaseURL:           cfg.Endpoint,
		SecretFile:        cfg.SecretFile,
		Secrets:           a.secrets,
		Timeout:           a.Config.HTTP.Timeout,
		RequestsPerSecond: a.Config.HTTP.RequestsPerSecond,
		Retry:             a.retryConfig(),
	})
}

// Jobs loads the jobs file
func (a *App) Jobs() ([]config.JobConfig, error) {
	jobs, err := config.LoadJobs(a.Config.JobsFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load jobs", err)
	}
	return jobs, nil
}

// Job loads the jobs file and returns the named job
func (a *App) Job(name string) (config.JobConfig, error) {
	jobs, err := a.Jobs()
	if err != nil {
		return config.JobConfig{}, err
	}
	job, err := config.FindJob(jobs, name)
	if err != nil {
		return config.JobConfig{}, WrapExitError(ExitCommandError, "unknown job", err)
	}
	return job, nil
}

// Dependencies assembles what scheduled jobs run against. Redis is only
// required when a notify job is enabled.
func (a *App) Dependencies(jobs []config.JobConfig) (worker.Dependencies, error) {
	deps := worker.Dependencies{
		Fanout:    a.FanoutService(),
		Registry:  source.NewRegistry(),
		NewClient: a.NewClient,
	}

	for _, jc := range jobs {
		if jc.IsEnabled() && jc.Type == types.JobNotifyTransactions {
			svc, err := a.SyncService()
			if err != nil {
				return worker.Dependencies{}, err
			}
			deps.Sync = svc
			break
		}
	}

	return deps, nil
}

// Scheduler builds a scheduler over every enabled job
func (a *App) Scheduler() (*worker.Scheduler, error) {
	jobs, err := a.Jobs()
	if err != nil {
		return nil, err
	}
	deps, err := a.Dependencies(jobs)
	if err != nil {
		return nil, err
	}
	scheduled, err := worker.JobsFromConfig(jobs, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to build jobs: %w", err)
	}
	return worker.NewScheduler(scheduled, a.Logger)
}

// healthChecks pings whichever stores are open
func (a *App) healthChecks() map[string]api.HealthCheck {
	checks := make(map[string]api.HealthCheck)
	if a.redis != nil {
		checks["redis"] = a.redis.Ping
	}
	if a.postgres != nil {
		checks["postgres"] = a.postgres.Ping
	}
	return checks
}
