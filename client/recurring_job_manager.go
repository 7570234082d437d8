package client

import (
	"context"
	"log/slog"
	"time"

	"github.com/RezaEskandarii/hostfire/internal/constants"
	"github.com/RezaEskandarii/hostfire/internal/cronexpr"
	"github.com/RezaEskandarii/hostfire/internal/lock"
	"github.com/RezaEskandarii/hostfire/internal/metrics"
	"github.com/RezaEskandarii/hostfire/internal/store"
	"github.com/RezaEskandarii/hostfire/types/config"
)

// RecurringJobManager turns due recurring job occurrences into background jobs.
type RecurringJobManager struct {
	jobStore      store.RecurringJobStore
	lock          lock.DistributedLockManager
	pollInterval  time.Duration
	batchSize     int
	maxAttempts   int
	useGlobalLock bool
}

func NewRecurringJobManager(recurringStore store.RecurringJobStore, lock lock.DistributedLockManager, pollInterval time.Duration, batchSize, maxAttempts int, useGlobalLock bool) *RecurringJobManager {
	if pollInterval <= 0 {
		pollInterval = config.DefaultSchedulePollInterval
	}
	if batchSize < 1 {
		batchSize = config.DefaultBatchSize
	}
	return &RecurringJobManager{
		jobStore:      recurringStore,
		lock:          lock,
		pollInterval:  pollInterval,
		batchSize:     batchSize,
		maxAttempts:   max(maxAttempts, 1),
		useGlobalLock: useGlobalLock,
	}
}

// Start checks for due occurrences every poll interval until ctx is cancelled.
func (rm *RecurringJobManager) Start(ctx context.Context) error {
	slog.Info("recurring job scheduler started", "poll_interval", rm.pollInterval.String(), "global_lock", rm.useGlobalLock)

	ticker := time.NewTicker(rm.pollInterval)
	defer ticker.Stop()

	for {
		if err := rm.tick(ctx); err != nil && ctx.Err() == nil {
			slog.Error("recurring job scheduling failed", "error", err)
		}

		select {
		case <-ctx.Done():
			slog.Info("recurring job scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// tick triggers every due recurring job once. Missed occurrences collapse
// into a single trigger; the next run is computed from now.
func (rm *RecurringJobManager) tick(ctx context.Context) (err error) {
	if rm.useGlobalLock {
		if err := rm.lock.Acquire(ctx, constants.RecurringLock); err != nil {
			return err
		}
		defer func() {
			if releaseErr := rm.lock.Release(context.WithoutCancel(ctx), constants.RecurringLock); releaseErr != nil && err == nil {
				err = releaseErr
			}
		}()
	}

	now := time.Now().UTC()
	jobs, err := rm.jobStore.FetchDue(ctx, now, rm.batchSize)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		nextRunAt, err := cronexpr.Next(job.Expression, job.TimeZone, now)
		if err != nil {
			slog.Error("recurring job has an invalid schedule, deactivating", "recurring_job", job.ID, "cron", job.Expression, "error", err)
			if markErr := rm.jobStore.MarkError(ctx, job.ID, err.Error()); markErr != nil {
				slog.Error("failed to deactivate recurring job", "recurring_job", job.ID, "error", markErr)
			}
			continue
		}

		jobID, triggered, err := rm.jobStore.TryTrigger(ctx, job, now, nextRunAt, rm.maxAttempts)
		if err != nil {
			slog.Error("failed to trigger recurring job", "recurring_job", job.ID, "error", err)
			continue
		}
		if !triggered {
			slog.Debug("recurring job already triggered by another server", "recurring_job", job.ID)
			continue
		}

		metrics.RecurringTriggered()
		slog.Info("recurring job triggered",
			"recurring_job", job.ID,
			"job", job.JobName,
			"job_id", jobID,
			"next_run_at", nextRunAt)
	}
	return nil
}
