package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/RezaEskandarii/hostfire/custom_errors"
	"github.com/RezaEskandarii/hostfire/internal/constants"
	"github.com/RezaEskandarii/hostfire/internal/cronexpr"
	"github.com/RezaEskandarii/hostfire/internal/message_broaker"
	"github.com/RezaEskandarii/hostfire/internal/retry"
	"github.com/RezaEskandarii/hostfire/internal/store"
	"github.com/RezaEskandarii/hostfire/types"
	"github.com/RezaEskandarii/hostfire/types/config"
)

// RecurringJobOptions customise a recurring job registration.
type RecurringJobOptions struct {
	// TimeZone the cron expression is evaluated in (IANA name). Empty means UTC.
	TimeZone string
	// Queue the triggered jobs are placed on. Empty means "default".
	Queue string
}

// JobManager is the client API for creating and managing background jobs.
// It only writes to storage (or the broker); processing happens in a
// BackgroundJobServer, possibly in another process.
type JobManager struct {
	EnqueuedJobStore  store.EnqueuedJobStore
	RecurringJobStore store.RecurringJobStore
	MBroker           message_broaker.MessageBroker
	JobHandler        *config.JobHandler
	writeJobsToQueue  bool
	maxAttempts       int
}

func NewJobManager(enqueuedStore store.EnqueuedJobStore, recurringStore store.RecurringJobStore, jobHandler *config.JobHandler, messageBroker message_broaker.MessageBroker, writeJobsToQueue bool, retryAttempts int) *JobManager {
	return &JobManager{
		EnqueuedJobStore:  enqueuedStore,
		RecurringJobStore: recurringStore,
		JobHandler:        jobHandler,
		MBroker:           messageBroker,
		writeJobsToQueue:  writeJobsToQueue,
		maxAttempts:       retry.MaxAttempts(retryAttempts),
	}
}

// Enqueue creates a fire-and-forget job on the default queue.
func (jm *JobManager) Enqueue(ctx context.Context, jobName string, args ...any) (int64, error) {
	return jm.enqueueAt(ctx, constants.DefaultQueue, jobName, time.Now(), args...)
}

// EnqueueToQueue creates a fire-and-forget job on the given queue.
func (jm *JobManager) EnqueueToQueue(ctx context.Context, queue, jobName string, args ...any) (int64, error) {
	return jm.enqueueAt(ctx, queue, jobName, time.Now(), args...)
}

// Schedule creates a job that becomes due after delay.
func (jm *JobManager) Schedule(ctx context.Context, jobName string, delay time.Duration, args ...any) (int64, error) {
	return jm.enqueueAt(ctx, constants.DefaultQueue, jobName, time.Now().Add(delay), args...)
}

// ScheduleAt creates a job that becomes due at the given time.
func (jm *JobManager) ScheduleAt(ctx context.Context, jobName string, at time.Time, args ...any) (int64, error) {
	return jm.enqueueAt(ctx, constants.DefaultQueue, jobName, at, args...)
}

// ScheduleToQueue creates a job on the given queue that becomes due at the given time.
func (jm *JobManager) ScheduleToQueue(ctx context.Context, queue, jobName string, at time.Time, args ...any) (int64, error) {
	return jm.enqueueAt(ctx, queue, jobName, at, args...)
}

// enqueueAt either stores the job directly or, in queue writer mode,
// publishes it to the message broker. In queue writer mode the returned
// ID is 0 because the row does not exist yet.
func (jm *JobManager) enqueueAt(ctx context.Context, queue, jobName string, at time.Time, args ...any) (int64, error) {
	if !jm.JobHandler.Exists(jobName) {
		return 0, fmt.Errorf("%w: '%s'", custom_errors.ErrHandlerNotFound, jobName)
	}
	queue = normalizeQueue(queue)

	if !jm.writeJobsToQueue {
		jobID, err := jm.EnqueuedJobStore.Insert(ctx, queue, jobName, at, jm.maxAttempts, args...)
		if err != nil {
			return 0, err
		}
		slog.Debug("job enqueued", "job_id", jobID, "job", jobName, "queue", queue)
		return jobID, nil
	}

	payload, err := json.Marshal(types.Job{
		Queue:       queue,
		Name:        jobName,
		Args:        args,
		ScheduledAt: at.UTC(),
		MaxAttempts: jm.maxAttempts,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", custom_errors.ErrInvalidPayload, err)
	}

	if err := jm.MBroker.Publish(ctx, queue, payload); err != nil {
		return 0, fmt.Errorf("failed to publish job to broker: %w", err)
	}
	return 0, nil
}

// AddOrUpdate registers a recurring job under recurringJobID, or replaces its
// definition. The next occurrence is kept when the schedule is unchanged.
func (jm *JobManager) AddOrUpdate(ctx context.Context, recurringJobID, jobName, expression string, opts RecurringJobOptions, args ...any) error {
	if recurringJobID == "" {
		return errors.New("recurring job id is required")
	}
	if !jm.JobHandler.Exists(jobName) {
		return fmt.Errorf("%w: '%s'", custom_errors.ErrHandlerNotFound, jobName)
	}

	nextRunAt, err := cronexpr.Next(expression, opts.TimeZone, time.Now())
	if err != nil {
		return err
	}

	if args == nil {
		args = []any{}
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: %v", custom_errors.ErrInvalidPayload, err)
	}

	return jm.RecurringJobStore.AddOrUpdate(ctx, types.RecurringJob{
		ID:         recurringJobID,
		JobName:    jobName,
		Queue:      normalizeQueue(opts.Queue),
		Payload:    payload,
		Expression: expression,
		TimeZone:   opts.TimeZone,
		NextRunAt:  nextRunAt,
		IsActive:   true,
	})
}

// RemoveIfExists deletes a recurring job. Jobs it already enqueued are kept.
func (jm *JobManager) RemoveIfExists(ctx context.Context, recurringJobID string) error {
	return jm.RecurringJobStore.Remove(ctx, recurringJobID)
}

// Trigger enqueues a recurring job right away without touching its schedule.
func (jm *JobManager) Trigger(ctx context.Context, recurringJobID string) (int64, error) {
	job, err := jm.RecurringJobStore.Find(ctx, recurringJobID)
	if err != nil {
		return 0, err
	}

	var args []any
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &args); err != nil {
			return 0, fmt.Errorf("%w: %v", custom_errors.ErrInvalidPayload, err)
		}
	}
	return jm.EnqueuedJobStore.Insert(ctx, normalizeQueue(job.Queue), job.JobName, time.Now(), jm.maxAttempts, args...)
}

// ActivateSchedule enables a recurring job and schedules its next occurrence from now.
func (jm *JobManager) ActivateSchedule(ctx context.Context, recurringJobID string) error {
	job, err := jm.RecurringJobStore.Find(ctx, recurringJobID)
	if err != nil {
		return err
	}
	nextRunAt, err := cronexpr.Next(job.Expression, job.TimeZone, time.Now())
	if err != nil {
		return err
	}
	return jm.RecurringJobStore.Activate(ctx, recurringJobID, nextRunAt)
}

// DeActivateSchedule pauses a recurring job.
func (jm *JobManager) DeActivateSchedule(ctx context.Context, recurringJobID string) error {
	return jm.RecurringJobStore.DeActivate(ctx, recurringJobID)
}

// FindEnqueue returns the details of a job by its ID.
func (jm *JobManager) FindEnqueue(ctx context.Context, jobID int64) (*types.EnqueuedJob, error) {
	return jm.EnqueuedJobStore.FindByID(ctx, jobID)
}

// RemoveEnqueue deletes a job using its ID.
func (jm *JobManager) RemoveEnqueue(ctx context.Context, jobID int64) error {
	return jm.EnqueuedJobStore.RemoveByID(ctx, jobID)
}

// Requeue makes a finished or failed job due again with a fresh attempt count.
func (jm *JobManager) Requeue(ctx context.Context, jobID int64) error {
	return jm.EnqueuedJobStore.Requeue(ctx, jobID, time.Now())
}

func normalizeQueue(queue string) string {
	queue = strings.ToLower(strings.TrimSpace(queue))
	if queue == "" {
		return constants.DefaultQueue
	}
	return queue
}
