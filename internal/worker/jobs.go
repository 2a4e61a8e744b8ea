package worker

import (
	"context"
	"fmt"

	"github.com/ledger-sync/internal/config"
	apperrors "github.com/ledger-sync/internal/errors"
	"github.com/ledger-sync/internal/service"
	"github.com/ledger-sync/internal/source"
	"github.com/ledger-sync/internal/types"
)

// BankClient is a gateway client that can both fetch records and download
// statements
type BankClient interface {
	source.Client
	service.StatementSource
}

// ClientFactory builds the gateway client for a job's source
type ClientFactory func(cfg config.SourceConfig) BankClient

// Dependencies are the services jobs run against
type Dependencies struct {
	Sync      *service.SyncService
	Fanout    *service.FanoutService
	Registry  *source.Registry
	NewClient ClientFactory
}

// JobFromConfig turns a configured job into a schedulable Job. Unknown
// source kinds are rejected here, before any I/O.
func JobFromConfig(jc config.JobConfig, deps Dependencies) (Job, error) {
	if deps.Registry == nil || deps.NewClient == nil {
		return Job{}, fmt.Errorf("job %s: registry and client factory are required", jc.Name)
	}
	if !deps.Registry.Supports(jc.Source.Kind) {
		return Job{}, apperrors.NewUnsupportedSourceError(jc.Source.Kind)
	}

	schedule, err := jc.CronSchedule()
	if err != nil {
		return Job{}, err
	}

	client := deps.NewClient(jc.Source)
	job := Job{Name: jc.Name, Schedule: schedule, Spec: jc.ScheduleSpec(), RunOnStart: true}

	switch jc.Type {
	case types.JobNotifyTransactions:
		if deps.Sync == nil {
			return Job{}, fmt.Errorf("job %s: sync service is required", jc.Name)
		}
		src, err := deps.Registry.Build(jc.Source, client)
		if err != nil {
			return Job{}, fmt.Errorf("job %s: %w", jc.Name, err)
		}
		job.Run = func(ctx context.Context) error {
			_, err := deps.Sync.RunCycle(ctx, src, jc.Recipient)
			return err
		}

	case types.JobUploadStatement:
		if deps.Fanout == nil {
			return Job{}, fmt.Errorf("job %s: fan-out service is required", jc.Name)
		}
		job.Run = func(ctx context.Context) error {
			report, err := deps.Fanout.Upload(ctx, client, jc.Source.AccountIDs, jc.Targets)
			if err != nil {
				return err
			}
			if n := report.Failures(); n > 0 {
				return fmt.Errorf("%d statement uploads failed", n)
			}
			return nil
		}

	default:
		return Job{}, fmt.Errorf("job %s: unknown job type %q", jc.Name, jc.Type)
	}

	return job, nil
}

// JobsFromConfig builds every enabled job
func JobsFromConfig(jobs []config.JobConfig, deps Dependencies) ([]Job, error) {
	out := make([]Job, 0, len(jobs))
	for _, jc := range jobs {
		if !jc.IsEnabled() {
			continue
		}
		job, err := JobFromConfig(jc, deps)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}
