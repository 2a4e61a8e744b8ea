// Package worker schedules configured jobs on cron schedules.
package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ledger-sync/internal/logging"
	"github.com/robfig/cron/v3"
)

// JobFunc runs one cycle of a job
type JobFunc func(ctx context.Context) error

// Job is a named function run on a schedule
type Job struct {
	Name       string
	Schedule   cron.Schedule
	Spec       string // human readable form of Schedule
	RunOnStart bool
	Run        JobFunc
}

// JobStatus is a point-in-time view of one scheduled job
type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Running   bool      `json:"running"`
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
	LastRun   time.Time `json:"lastRun,omitempty"`
	NextRun   time.Time `json:"nextRun,omitempty"`
	LastError string    `json:"lastError,omitempty"`
}

// Scheduler runs jobs on a cron scheduler in UTC. Cycles of one job never
// overlap; a tick that arrives while a cycle is running is skipped. A failed
// cycle is logged and the job waits for its next tick.
type Scheduler struct {
	jobs   []Job
	logger *logging.Logger

	mu      sync.RWMutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	running bool
	status  map[string]*JobStatus
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler for jobs
func NewScheduler(jobs []Job, logger *logging.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	status := make(map[string]*JobStatus, len(jobs))
	for _, job := range jobs {
		if job.Name == "" || job.Run == nil {
			return nil, fmt.Errorf("job requires a name and a run function")
		}
		if job.Schedule == nil {
			return nil, fmt.Errorf("job %s: schedule is required", job.Name)
		}
		if _, ok := status[job.Name]; ok {
			return nil, fmt.Errorf("job %s: duplicate name", job.Name)
		}
		status[job.Name] = &JobStatus{Name: job.Name, Schedule: job.Spec}
	}

	return &Scheduler{jobs: jobs, logger: logger, status: status}, nil
}

// Start registers every job with a fresh cron scheduler and starts it.
// Jobs marked RunOnStart also run once immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}

	cronLog := cronLogger{logger: s.logger}
	c := cron.New(cron.WithLocation(time.UTC), cron.WithLogger(cronLog))
	chain := cron.NewChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog))

	entries := make(map[string]cron.EntryID, len(s.jobs))
	starters := make([]cron.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		job := job
		wrapped := chain.Then(cron.FuncJob(func() {
			s.runOnce(ctx, job)
		}))
		entries[job.Name] = c.Schedule(job.Schedule, wrapped)
		if job.RunOnStart {
			starters = append(starters, wrapped)
		}
	}

	s.cron = c
	s.entries = entries
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.logger.WithField("jobs", len(s.jobs)).Info("Starting scheduler")

	c.Start()
	for _, starter := range starters {
		s.wg.Add(1)
		go func(j cron.Job) {
			defer s.wg.Done()
			j.Run()
		}(starter)
	}

	// A cancelled context stops further ticks; Stop still waits for cycles.
	go func() {
		select {
		case <-ctx.Done():
			c.Stop()
		case <-stopCh:
		}
	}()

	return nil
}

// Stop halts the schedule and waits for in-flight cycles to finish
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	close(s.stopCh)
	c := s.cron
	s.mu.Unlock()

	cronDone := c.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	return nil
}

// Status returns the status of every job, sorted by name
func (s *Scheduler) Status() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.status))
	for name, st := range s.status {
		view := *st
		if s.running {
			if id, ok := s.entries[name]; ok {
				view.NextRun = s.cron.Entry(id).Next
			}
		}
		out = append(out, view)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	logger := s.logger.WithField("job", job.Name)

	s.mu.Lock()
	st := s.status[job.Name]
	st.Running = true
	st.LastRun = time.Now().UTC()
	s.mu.Unlock()

	err := job.Run(logging.WithLogger(ctx, logger))

	s.mu.Lock()
	st.Running = false
	st.Runs++
	if err != nil {
		st.Failures++
		st.LastError = err.Error()
	} else {
		st.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		logger.WithError(err).Error("Job cycle failed")
		return
	}
	logger.Debug("Job cycle completed")
}

// cronLogger routes the cron library's logs through the service logger
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func kvFields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
