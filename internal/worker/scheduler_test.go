package worker

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ledger-sync/internal/logging"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logging.Logger {
	return logging.NewLoggerWithWriter(logging.LevelDebug, logging.FormatJSON, &bytes.Buffer{})
}

// every is a sub-second schedule; cron.Every rounds up to whole seconds
type every time.Duration

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

func TestNewScheduler_Validation(t *testing.T) {
	noop := func(context.Context) error { return nil }

	_, err := NewScheduler([]Job{{Name: "a", Run: noop}}, testLogger())
	assert.Error(t, err)

	_, err = NewScheduler([]Job{{Name: "", Schedule: every(time.Second), Run: noop}}, testLogger())
	assert.Error(t, err)

	_, err = NewScheduler([]Job{
		{Name: "a", Schedule: every(time.Second), Run: noop},
		{Name: "a", Schedule: every(time.Second), Run: noop},
	}, testLogger())
	assert.Error(t, err)
}

func TestScheduler_RunsJobsWithoutOverlap(t *testing.T) {
	var runs, inFlight, maxInFlight int32
	slow := func(context.Context) error {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		atomic.AddInt32(&runs, 1)
		return nil
	}

	s, err := NewScheduler([]Job{{Name: "slow", Schedule: every(5 * time.Millisecond), RunOnStart: true, Run: slow}}, testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	assert.Error(t, s.Start(ctx))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 3 }, 2*time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	assert.Error(t, s.Stop(stopCtx))

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
}

func TestScheduler_RecordsFailures(t *testing.T) {
	var calls int32
	failing := func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("gateway down")
	}
	ok := func(context.Context) error { return nil }

	s, err := NewScheduler([]Job{
		{Name: "b-failing", Schedule: every(5 * time.Millisecond), RunOnStart: true, Run: failing},
		{Name: "a-ok", Schedule: cron.Every(time.Hour), Spec: "@every 1h0m0s", RunOnStart: true, Run: ok},
	}, testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 2 }, 2*time.Second, 5*time.Millisecond)

	running := s.Status()
	require.Len(t, running, 2)
	assert.Equal(t, "@every 1h0m0s", running[0].Schedule)
	assert.WithinDuration(t, time.Now().Add(time.Hour), running[0].NextRun, time.Minute)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))

	status := s.Status()
	require.Len(t, status, 2)
	assert.Equal(t, "a-ok", status[0].Name)
	assert.Equal(t, 1, status[0].Runs)
	assert.Equal(t, 0, status[0].Failures)

	assert.Equal(t, "b-failing", status[1].Name)
	assert.GreaterOrEqual(t, status[1].Failures, 2)
	assert.Equal(t, status[1].Runs, status[1].Failures)
	assert.Equal(t, "gateway down", status[1].LastError)
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	s, err := NewScheduler([]Job{{Name: "a", Schedule: every(time.Millisecond), Run: func(context.Context) error { return nil }}}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, s.Stop(stopCtx))
}

func TestScheduler_CronSchedule(t *testing.T) {
	schedule, err := cron.ParseStandard("*/5 * * * *")
	require.NoError(t, err)

	var calls int32
	s, err := NewScheduler([]Job{{
		Name:     "quarter",
		Schedule: schedule,
		Spec:     "*/5 * * * *",
		Run: func(context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	}}, testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	status := s.Status()
	require.Len(t, status, 1)
	next := status[0].NextRun
	assert.Equal(t, time.UTC, next.Location())
	assert.Zero(t, next.Minute()%5)
	assert.Zero(t, next.Second())
	assert.True(t, next.After(time.Now().Add(-time.Second)))

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))

	// Without RunOnStart nothing runs before the first tick.
	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(1))
}
