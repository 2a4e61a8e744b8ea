package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ledger-sync/internal/types"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// JobsFile is the top-level document of the jobs YAML file
type JobsFile struct {
	Jobs []JobConfig `yaml:"jobs"`
}

// JobConfig describes one scheduled job
type JobConfig struct {
	Name      string         `yaml:"name"`
	Type      types.JobType  `yaml:"type"`
	Enabled   *bool          `yaml:"enabled"`
	Schedule  string         `yaml:"schedule"` // standard cron spec or descriptor, evaluated in UTC
	Interval  time.Duration  `yaml:"interval"` // used when schedule is empty
	Recipient string         `yaml:"recipient"`
	Source    SourceConfig   `yaml:"source"`
	Targets   []ImportTarget `yaml:"targets"`
}

// IsEnabled reports whether the job should be scheduled; jobs are enabled
// unless explicitly disabled.
func (j JobConfig) IsEnabled() bool {
	return j.Enabled == nil || *j.Enabled
}

// CronSchedule returns the job's schedule. An empty schedule runs the job
// every Interval.
func (j JobConfig) CronSchedule() (cron.Schedule, error) {
	if j.Schedule == "" {
		if j.Interval <= 0 {
			return nil, fmt.Errorf("job %s: interval must be positive", j.Name)
		}
		return cron.Every(j.Interval), nil
	}
	schedule, err := cron.ParseStandard(j.Schedule)
	if err != nil {
		return nil, fmt.Errorf("job %s: invalid schedule %q: %w", j.Name, j.Schedule, err)
	}
	return schedule, nil
}

// ScheduleSpec describes the schedule for status output
func (j JobConfig) ScheduleSpec() string {
	if j.Schedule != "" {
		return j.Schedule
	}
	return "@every " + j.Interval.String()
}

// SourceConfig selects and configures a source variant
type SourceConfig struct {
	Kind       string   `yaml:"kind"` // multi_account, single_account (or a bank alias)
	Name       string   `yaml:"name"`
	KeyPrefix  string   `yaml:"key_prefix"`
	Endpoint   string   `yaml:"endpoint"`
	SecretFile string   `yaml:"secret_file"`
	AccountIDs []string `yaml:"account_ids"`
	GroupField string   `yaml:"group_field"`
	DateField  string   `yaml:"date_field"`
}

// ImportTarget is one downstream ledger service receiving raw statements
type ImportTarget struct {
	Endpoint         string            `yaml:"endpoint" json:"endpoint"`
	UserID           string            `yaml:"user_id" json:"userId,omitempty"`
	AccountIDMapping map[string]string `yaml:"account_id_mapping" json:"accountIdMapping"`
}

// LoadJobs reads and validates the jobs file at path
func LoadJobs(path string) ([]JobConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read jobs file: %w", err)
	}
	return ParseJobs(data)
}

// ParseJobs decodes and validates a jobs document
func ParseJobs(data []byte) ([]JobConfig, error) {
	var doc JobsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse jobs file: %w", err)
	}

	seen := make(map[string]bool, len(doc.Jobs))
	for i := range doc.Jobs {
		job := &doc.Jobs[i]
		if job.Name == "" {
			return nil, fmt.Errorf("job %d: name is required", i)
		}
		if seen[job.Name] {
			return nil, fmt.Errorf("job %s: duplicate name", job.Name)
		}
		seen[job.Name] = true

		switch job.Type {
		case types.JobNotifyTransactions:
			if job.Recipient == "" {
				return nil, fmt.Errorf("job %s: recipient is required", job.Name)
			}
		case types.JobUploadStatement:
			if len(job.Targets) == 0 {
				return nil, fmt.Errorf("job %s: at least one target is required", job.Name)
			}
			for _, target := range job.Targets {
				if target.Endpoint == "" {
					return nil, fmt.Errorf("job %s: target endpoint is required", job.Name)
				}
			}
		default:
			return nil, fmt.Errorf("job %s: unknown job type %q", job.Name, job.Type)
		}

		if job.Schedule == "" && job.Interval == 0 {
			job.Interval = time.Hour
		}
		if _, err := job.CronSchedule(); err != nil {
			return nil, err
		}
		if job.Source.Name == "" {
			job.Source.Name = job.Source.Kind
		}
	}

	return doc.Jobs, nil
}

// FindJob returns the job named name
func FindJob(jobs []JobConfig, name string) (JobConfig, error) {
	for _, job := range jobs {
		if job.Name == name {
			return job, nil
		}
	}
	return JobConfig{}, fmt.Errorf("job not found: %s", name)
}
