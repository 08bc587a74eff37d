package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Execute(ctx context.Context, job *Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

type executorFunc func(ctx context.Context, job *Job) error

func (f executorFunc) Execute(ctx context.Context, job *Job) error { return f(ctx, job) }

func testConfig(channels ...integration.ChannelKey) Config {
	return Config{
		Enabled:           true,
		Channels:          channels,
		MaxConcurrentJobs: 2,
		JobTimeout:        5 * time.Second,
		RetryDelay:        10 * time.Millisecond,
	}
}

func startScheduler(t *testing.T, cfg Config, exec JobExecutor) *Scheduler {
	t.Helper()
	s, err := NewScheduler(cfg, exec, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func TestJob_Lifecycle(t *testing.T) {
	job := NewJob(JobKindSync, "tienda", 1)
	assert.Equal(t, JobStatusPending, job.Status)

	job.Start()
	assert.Equal(t, JobStatusRunning, job.Status)
	assert.NotNil(t, job.StartedAt)

	job.Fail("channel down")
	assert.True(t, job.ShouldRetry())

	job.ScheduleRetry(time.Minute)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.Empty(t, job.Error)
	require.NotNil(t, job.NextRetryAt)

	job.Start()
	job.Fail("channel down")
	assert.False(t, job.ShouldRetry())
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MaxConcurrentJobs = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.JobTimeout = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.SyncInterval = -time.Second
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	_, err := NewScheduler(cfg, &mockExecutor{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestScheduler_SubmitBeforeStart(t *testing.T) {
	s, err := NewScheduler(testConfig("tienda"), &mockExecutor{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	err = s.SubmitJob(NewJob(JobKindSync, "tienda", 0))
	assert.ErrorIs(t, err, ErrSchedulerNotRunning)
}

func TestScheduler_Disabled(t *testing.T) {
	cfg := testConfig("tienda")
	cfg.Enabled = false
	cfg.RunOnStart = true
	exec := &mockExecutor{}

	s, err := NewScheduler(cfg, exec, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	assert.False(t, s.IsRunning())
	exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestScheduler_RunOnStart(t *testing.T) {
	cfg := testConfig("tienda", "mayorista")
	cfg.RunOnStart = true

	exec := &mockExecutor{}
	exec.On("Execute", mock.Anything, mock.MatchedBy(func(j *Job) bool {
		return j.Kind == JobKindSync
	})).Return(nil).Twice()

	s := startScheduler(t, cfg, exec)

	require.Eventually(t, func() bool { return len(s.GetJobHistory(0)) == 2 }, 2*time.Second, 5*time.Millisecond)
	channels := map[integration.ChannelKey]bool{}
	for _, j := range s.GetJobHistory(0) {
		assert.Equal(t, JobStatusSuccess, j.Status)
		channels[j.Channel] = true
	}
	assert.Equal(t, map[integration.ChannelKey]bool{"tienda": true, "mayorista": true}, channels)
	exec.AssertExpectations(t)
}

func TestScheduler_OneJobPerKindAndChannel(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	exec := executorFunc(func(ctx context.Context, job *Job) error {
		started <- struct{}{}
		<-release
		return nil
	})
	s := startScheduler(t, testConfig("tienda"), exec)

	_, err := s.Trigger(JobKindSync, "tienda")
	require.NoError(t, err)
	<-started

	_, err = s.Trigger(JobKindSync, "tienda")
	assert.ErrorIs(t, err, ErrJobAlreadyInProgress)

	// A different kind on the same channel is independent
	_, err = s.Trigger(JobKindReconcile, "tienda")
	require.NoError(t, err)

	close(release)
	require.Eventually(t, func() bool { return len(s.GetJobHistory(0)) == 2 }, 2*time.Second, 5*time.Millisecond)

	// The slot is free again
	_, err = s.Trigger(JobKindSync, "tienda")
	assert.NoError(t, err)
}

func TestScheduler_TriggerUnknownChannel(t *testing.T) {
	s := startScheduler(t, testConfig("tienda"), &mockExecutor{})

	_, err := s.Trigger(JobKindSync, "otro")
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestScheduler_RetriesFailedJob(t *testing.T) {
	var calls atomic.Int32
	exec := executorFunc(func(ctx context.Context, job *Job) error {
		if calls.Add(1) == 1 {
			return errors.New("channel unavailable")
		}
		return nil
	})
	cfg := testConfig("tienda")
	cfg.RetryAttempts = 2
	s := startScheduler(t, cfg, exec)

	_, err := s.Trigger(JobKindSync, "tienda")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(s.GetJobHistory(0)) == 1 }, 2*time.Second, 5*time.Millisecond)
	job := s.GetJobHistory(1)[0]
	assert.Equal(t, JobStatusSuccess, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.EqualValues(t, 2, calls.Load())
}

func TestScheduler_RetriesExhausted(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("Execute", mock.Anything, mock.Anything).Return(errors.New("boom")).Times(2)

	cfg := testConfig("tienda")
	cfg.RetryAttempts = 1
	s := startScheduler(t, cfg, exec)

	_, err := s.Trigger(JobKindReconcile, "tienda")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(s.GetJobHistory(0)) == 1 }, 2*time.Second, 5*time.Millisecond)
	job := s.GetJobHistory(1)[0]
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "boom", job.Error)
	assert.Equal(t, 1, job.RetryCount)
	exec.AssertExpectations(t)
}

func TestScheduler_IntervalTrigger(t *testing.T) {
	var syncs, reconciles atomic.Int32
	exec := executorFunc(func(ctx context.Context, job *Job) error {
		switch job.Kind {
		case JobKindSync:
			syncs.Add(1)
		case JobKindReconcile:
			reconciles.Add(1)
		}
		return nil
	})
	cfg := testConfig("tienda")
	cfg.SyncInterval = 10 * time.Millisecond
	cfg.ReconcileInterval = 15 * time.Millisecond
	startScheduler(t, cfg, exec)

	assert.Eventually(t, func() bool {
		return syncs.Load() >= 2 && reconciles.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_StopCancelsRunningJob(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	exec := executorFunc(func(ctx context.Context, job *Job) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})
	cfg := testConfig("tienda")
	cfg.RetryAttempts = 3
	s, err := NewScheduler(cfg, exec, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	_, err = s.Trigger(JobKindSync, "tienda")
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	<-cancelled

	assert.False(t, s.IsRunning())
	history := s.GetJobHistory(0)
	require.Len(t, history, 1)
	assert.Equal(t, JobStatusFailed, history[0].Status)
	assert.Zero(t, history[0].RetryCount)
}

func TestScheduler_JobTimeout(t *testing.T) {
	exec := executorFunc(func(ctx context.Context, job *Job) error {
		<-ctx.Done()
		return ctx.Err()
	})
	cfg := testConfig("tienda")
	cfg.JobTimeout = 20 * time.Millisecond
	s := startScheduler(t, cfg, exec)

	_, err := s.Trigger(JobKindSync, "tienda")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(s.GetJobHistory(0)) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, context.DeadlineExceeded.Error(), s.GetJobHistory(1)[0].Error)
}

func TestScheduler_HistoryIsBounded(t *testing.T) {
	cfg := testConfig("tienda")
	cfg.MaxHistory = 3
	s := startScheduler(t, cfg, executorFunc(func(context.Context, *Job) error { return nil }))

	var last Job
	for i := 0; i < 5; i++ {
		job, err := s.Trigger(JobKindSync, "tienda")
		require.NoError(t, err)
		last = job
		require.Eventually(t, func() bool {
			h := s.GetJobHistory(1)
			return len(h) == 1 && h[0].ID == job.ID
		}, 2*time.Second, 5*time.Millisecond)
	}

	history := s.GetJobHistory(0)
	assert.Len(t, history, 3)
	assert.Equal(t, last.ID, history[0].ID)
	assert.Len(t, s.GetJobHistory(1), 1)
}
