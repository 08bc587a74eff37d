package scheduler

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobStatus represents the status of a scheduled job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// JobKind is the kind of run a job performs
type JobKind string

const (
	// JobKindSync runs a full sync of one channel
	JobKindSync JobKind = "SYNC"
	// JobKindReconcile runs a report-only duplicate scan of one channel
	JobKindReconcile JobKind = "RECONCILE"
)

// Job represents one scheduled run against a channel
type Job struct {
	ID          uuid.UUID
	Kind        JobKind
	Channel     integration.ChannelKey
	Status      JobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time
}

// NewJob creates a pending job
func NewJob(kind JobKind, channel integration.ChannelKey, maxRetries int) *Job {
	return &Job{
		ID:         uuid.New(),
		Kind:       kind,
		Channel:    channel,
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
	}
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete marks the job as successful
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
}

// Fail marks the job as failed
func (j *Job) Fail(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry returns true if the job should be retried
func (j *Job) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry schedules the job for retry
func (j *Job) ScheduleRetry(delay time.Duration) {
	j.RetryCount++
	j.Status = JobStatusPending
	nextRetry := time.Now().Add(delay)
	j.NextRetryAt = &nextRetry
	j.Error = ""
}

func (j *Job) slot() string {
	return fmt.Sprintf("%s/%s", j.Kind, j.Channel)
}

// JobExecutor runs jobs. An error fails the job and may trigger a retry.
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// Config holds scheduler configuration
type Config struct {
	Enabled           bool
	Channels          []integration.ChannelKey
	SyncInterval      time.Duration // 0 disables periodic syncs
	ReconcileInterval time.Duration // 0 disables periodic reconciliation
	RunOnStart        bool
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
	MaxHistory        int
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		SyncInterval:      time.Hour,
		ReconcileInterval: 24 * time.Hour,
		MaxConcurrentJobs: 2,
		JobTimeout:        30 * time.Minute,
		RetryAttempts:     2,
		RetryDelay:        5 * time.Minute,
		MaxHistory:        100,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("%w: max concurrent jobs must be positive", ErrInvalidConfig)
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("%w: job timeout must be positive", ErrInvalidConfig)
	}
	if c.SyncInterval < 0 || c.ReconcileInterval < 0 {
		return fmt.Errorf("%w: intervals must not be negative", ErrInvalidConfig)
	}
	if c.RetryAttempts < 0 || c.RetryDelay < 0 {
		return fmt.Errorf("%w: retry settings must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Scheduler runs sync and reconcile jobs on a worker pool and submits them per
// channel at fixed intervals. At most one job per kind and channel is queued or
// running at a time.
type Scheduler struct {
	config   Config
	executor JobExecutor
	logger   *zap.Logger

	jobs      chan *Job
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	inFlight  map[string]struct{}
	history   []Job
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config Config, executor JobExecutor, logger *zap.Logger) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.MaxHistory <= 0 {
		config.MaxHistory = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		config:   config,
		executor: executor,
		logger:   logger,
		jobs:     make(chan *Job, 100),
		inFlight: make(map[string]struct{}),
	}, nil
}

// Start starts the worker pool and the interval triggers
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Scheduler is disabled")
		return nil
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	if s.config.RunOnStart {
		s.submitAll(JobKindSync)
	}
	if s.config.SyncInterval > 0 {
		s.wg.Add(1)
		go s.runLoop(ctx, JobKindSync, s.config.SyncInterval)
	}
	if s.config.ReconcileInterval > 0 {
		s.wg.Add(1)
		go s.runLoop(ctx, JobKindReconcile, s.config.ReconcileInterval)
	}

	s.logger.Info("Scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Int("channels", len(s.config.Channels)),
		zap.Duration("sync_interval", s.config.SyncInterval),
		zap.Duration("reconcile_interval", s.config.ReconcileInterval),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running jobs and waits for the workers to finish
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	close(s.jobs)
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// SubmitJob queues a job. It fails when a job of the same kind and channel is
// already queued or running.
func (s *Scheduler) SubmitJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}
	if _, busy := s.inFlight[job.slot()]; busy {
		return ErrJobAlreadyInProgress
	}

	select {
	case s.jobs <- job:
		s.inFlight[job.slot()] = struct{}{}
		s.logger.Debug("Job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("kind", string(job.Kind)),
			zap.String("channel", job.Channel.String()),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

// Trigger submits a job of the given kind for a channel now and returns a snapshot
// of the queued job
func (s *Scheduler) Trigger(kind JobKind, channel integration.ChannelKey) (Job, error) {
	if !slices.Contains(s.config.Channels, channel) {
		return Job{}, fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
	job := NewJob(kind, channel, s.config.RetryAttempts)
	snapshot := *job
	if err := s.SubmitJob(job); err != nil {
		return Job{}, err
	}
	return snapshot, nil
}

// GetJobHistory returns finished jobs, most recent first
func (s *Scheduler) GetJobHistory(limit int) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]Job, 0, limit)
	for i := len(s.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.history[i])
	}
	return out
}

// ---------------------------------------------------------------------------
// Triggers
// ---------------------------------------------------------------------------

func (s *Scheduler) runLoop(ctx context.Context, kind JobKind, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.submitAll(kind)
		}
	}
}

func (s *Scheduler) submitAll(kind JobKind) {
	for _, ch := range s.config.Channels {
		err := s.SubmitJob(NewJob(kind, ch, s.config.RetryAttempts))
		switch err {
		case nil:
		case ErrJobAlreadyInProgress:
			s.logger.Info("Skipping scheduled run, previous one still active",
				zap.String("kind", string(kind)),
				zap.String("channel", ch.String()),
			)
		default:
			s.logger.Warn("Failed to submit scheduled run",
				zap.String("kind", string(kind)),
				zap.String("channel", ch.String()),
				zap.Error(err),
			)
		}
	}
}

// ---------------------------------------------------------------------------
// Workers
// ---------------------------------------------------------------------------

func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	s.logger.Debug("Worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Worker stopping", zap.Int("worker_id", workerID))
			return
		case job, ok := <-s.jobs:
			if !ok {
				s.logger.Debug("Job channel closed", zap.Int("worker_id", workerID))
				return
			}
			s.processJob(ctx, job, workerID)
		}
	}
}

func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	job.Start()
	log := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(job.Kind)),
		zap.String("channel", job.Channel.String()),
	)
	log.Info("Processing job", zap.Int("retry_count", job.RetryCount))

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	err := s.executor.Execute(jobCtx, job)
	if err == nil {
		job.Complete()
		log.Info("Job completed successfully")
		s.finish(job)
		return
	}

	job.Fail(err.Error())
	log.Error("Job failed", zap.Error(err))

	if ctx.Err() == nil && job.ShouldRetry() {
		job.ScheduleRetry(s.config.RetryDelay)
		log.Info("Job scheduled for retry",
			zap.Int("retry_count", job.RetryCount),
			zap.Int("max_retries", job.MaxRetries),
			zap.Time("next_retry_at", *job.NextRetryAt),
		)
		time.AfterFunc(s.config.RetryDelay, func() { s.requeue(job) })
		return
	}
	s.finish(job)
}

// requeue puts a retried job back on the queue, keeping its slot
func (s *Scheduler) requeue(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		select {
		case s.jobs <- job:
			return
		default:
			s.logger.Warn("Failed to re-queue job for retry",
				zap.String("job_id", job.ID.String()),
			)
		}
	}
	job.Fail("dropped before retry")
	s.record(job)
}

func (s *Scheduler) finish(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(job)
}

// record frees the job's slot and appends it to the bounded history. Callers hold mu.
func (s *Scheduler) record(job *Job) {
	delete(s.inFlight, job.slot())
	s.history = append(s.history, *job)
	if len(s.history) > s.config.MaxHistory {
		s.history = s.history[len(s.history)-s.config.MaxHistory:]
	}
}
