package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when trying to submit a job to a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrJobQueueFull is returned when the job queue is full
	ErrJobQueueFull = errors.New("job queue is full")

	// ErrJobAlreadyInProgress is returned when a job of the same kind is already
	// queued or running for the channel
	ErrJobAlreadyInProgress = errors.New("job already in progress for this channel")

	// ErrUnknownChannel is returned when triggering a channel the scheduler does not serve
	ErrUnknownChannel = errors.New("unknown channel")

	// ErrUnknownJobKind is returned by executors for job kinds they cannot run
	ErrUnknownJobKind = errors.New("unknown job kind")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
)
