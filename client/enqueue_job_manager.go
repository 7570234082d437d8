package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/RezaEskandarii/hostfire/custom_errors"
	"github.com/RezaEskandarii/hostfire/internal/constants"
	"github.com/RezaEskandarii/hostfire/internal/lock"
	"github.com/RezaEskandarii/hostfire/internal/message_broaker"
	"github.com/RezaEskandarii/hostfire/internal/metrics"
	"github.com/RezaEskandarii/hostfire/internal/retry"
	"github.com/RezaEskandarii/hostfire/internal/state"
	"github.com/RezaEskandarii/hostfire/internal/store"
	"github.com/RezaEskandarii/hostfire/types"
	"github.com/RezaEskandarii/hostfire/types/config"
	"golang.org/x/sync/semaphore"
)

// WorkerOptions tune the job processing loop.
type WorkerOptions struct {
	Queues      []string
	WorkerCount int
	BatchSize   int
	// QueuePollInterval is the sleep after a round that found no work.
	// Zero means continuous polling with a short idle backoff.
	QueuePollInterval time.Duration
	// InvisibilityTimeout is how long a claimed job may go without a
	// keep-alive before other servers may take it over.
	InvisibilityTimeout time.Duration
	// MaxAttempts caps executions per job on this server.
	MaxAttempts        int
	DisableGlobalLocks bool
}

type EnqueueJobsManager struct {
	store      store.EnqueuedJobStore
	serverID   string
	lock       lock.DistributedLockManager
	jobHandler *config.JobHandler
	jobResults chan types.JobResult
	mBroker    message_broaker.MessageBroker
	opts       WorkerOptions
}

func NewEnqueueJobsManager(jobStore store.EnqueuedJobStore, lock lock.DistributedLockManager, jobHandler *config.JobHandler, messageBroker message_broaker.MessageBroker, serverID string, opts WorkerOptions) *EnqueueJobsManager {
	if len(opts.Queues) == 0 {
		opts.Queues = []string{constants.DefaultQueue}
	}
	if opts.WorkerCount < 1 {
		opts.WorkerCount = config.DefaultWorkerCount()
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = config.DefaultBatchSize
	}
	if opts.InvisibilityTimeout <= 0 {
		opts.InvisibilityTimeout = config.DefaultSlidingInvisibilityTimeout
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}

	return &EnqueueJobsManager{
		store:      jobStore,
		serverID:   serverID,
		lock:       lock,
		jobHandler: jobHandler,
		jobResults: make(chan types.JobResult, 1000),
		mBroker:    messageBroker,
		opts:       opts,
	}
}

// Start runs the fetch loop until ctx is cancelled. On cancellation it stops
// fetching, waits for running jobs and records their results before returning.
func (em *EnqueueJobsManager) Start(ctx context.Context) error {
	slog.Info("job processing started",
		"server", em.serverID,
		"queues", em.opts.Queues,
		"workers", em.opts.WorkerCount,
		"poll_interval", em.opts.QueuePollInterval.String())

	resultsDone := em.startResultProcessor(ctx)

	var sweeper sync.WaitGroup
	sweeper.Add(1)
	go func() {
		defer sweeper.Done()
		em.requeueTimedOutJobs(ctx)
	}()

	sem := semaphore.NewWeighted(int64(em.opts.WorkerCount))
	var wg sync.WaitGroup

	idleDelay := em.opts.QueuePollInterval
	if idleDelay <= 0 {
		idleDelay = constants.MinQueuePollInterval
	}

	for ctx.Err() == nil {
		fetched, err := em.processDueJobs(ctx, sem, &wg)
		if err != nil && ctx.Err() == nil {
			slog.Error("failed to fetch due jobs", "server", em.serverID, "error", err)
		}
		if err == nil && fetched >= em.opts.BatchSize {
			continue
		}

		timer := time.NewTimer(idleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	wg.Wait()
	close(em.jobResults)
	<-resultsDone
	sweeper.Wait()

	slog.Info("job processing stopped", "server", em.serverID)
	return nil
}

// processDueJobs claims and starts every due job it can, and returns how
// many jobs storage offered.
func (em *EnqueueJobsManager) processDueJobs(ctx context.Context, sem *semaphore.Weighted, wg *sync.WaitGroup) (int, error) {
	now := time.Now()
	jobs, err := em.store.FetchDueJobs(ctx, em.opts.Queues, em.opts.BatchSize, now, now.Add(-em.opts.InvisibilityTimeout))
	if err != nil {
		return 0, err
	}

	for _, job := range jobs {
		if err := sem.Acquire(ctx, 1); err != nil {
			// ctx cancelled while all workers were busy
			break
		}

		now := time.Now()
		ok, err := em.store.LockJob(ctx, job.ID, em.serverID, now, now.Add(-em.opts.InvisibilityTimeout))
		if err != nil || !ok {
			sem.Release(1)
			if err != nil && ctx.Err() == nil {
				slog.Warn("failed to lock job", "job_id", job.ID, "error", err)
			}
			continue
		}

		job.Attempts++
		wg.Add(1)
		go em.handleJob(ctx, sem, wg, job)
	}

	return len(jobs), nil
}

func (em *EnqueueJobsManager) handleJob(ctx context.Context, sem *semaphore.Weighted, wg *sync.WaitGroup, job types.EnqueuedJob) {
	defer func() {
		sem.Release(1)
		wg.Done()
	}()

	metrics.WorkerStarted()
	defer metrics.WorkerFinished()

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopKeepAlive := em.keepAlive(jobCtx, cancel, job.ID)

	ranAt := time.Now()
	slog.Debug("job started", "job_id", job.ID, "job", job.Name, "queue", job.Queue, "attempt", job.Attempts)

	args, err := job.Args()
	if err != nil {
		err = fmt.Errorf("%w: %v", custom_errors.ErrInvalidPayload, err)
	} else {
		err = em.jobHandler.Execute(jobCtx, job.Name, args...)
	}
	stopKeepAlive()

	em.jobResults <- em.resultFor(ctx, job, err, ranAt)
}

// keepAlive refreshes the job lock until the returned stop function is
// called. Losing the lock cancels the job.
func (em *EnqueueJobsManager) keepAlive(ctx context.Context, cancel context.CancelFunc, jobID int64) func() {
	interval := max(em.opts.InvisibilityTimeout/5, time.Second)
	done := make(chan struct{})
	var stopped sync.WaitGroup
	stopped.Add(1)

	go func() {
		defer stopped.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := em.store.KeepAlive(ctx, jobID, em.serverID, time.Now())
				if err != nil {
					slog.Warn("job keep-alive failed", "job_id", jobID, "error", err)
					continue
				}
				if !ok {
					slog.Warn("job lock lost, cancelling execution", "job_id", jobID, "server", em.serverID)
					cancel()
					return
				}
			}
		}
	}()

	return func() {
		close(done)
		stopped.Wait()
	}
}

// resultFor decides the state a job moves to after an execution.
func (em *EnqueueJobsManager) resultFor(serverCtx context.Context, job types.EnqueuedJob, err error, ranAt time.Time) types.JobResult {
	now := time.Now()
	maxAttempts := em.opts.MaxAttempts
	if job.MaxAttempts > 0 {
		maxAttempts = min(maxAttempts, job.MaxAttempts)
	}

	res := types.JobResult{
		JobID:       job.ID,
		Queue:       job.Queue,
		Name:        job.Name,
		Err:         err,
		Attempts:    job.Attempts,
		MaxAttempts: maxAttempts,
		RanAt:       ranAt,
		FinishedAt:  now,
		RetryAt:     now,
	}

	switch {
	case err == nil:
		res.Status = state.StatusSucceeded
	case serverCtx.Err() != nil:
		// interrupted by shutdown; another server picks it up again
		res.Status = state.StatusQueued
	default:
		res.Status, res.RetryAt = retry.Next(job.Attempts, maxAttempts, now)
	}
	return res
}

// startResultProcessor records job results until jobResults is closed.
// Writes outlive ctx so results of jobs finishing during shutdown are kept.
func (em *EnqueueJobsManager) startResultProcessor(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	storeCtx := context.WithoutCancel(ctx)

	go func() {
		defer close(done)
		for res := range em.jobResults {
			em.applyResult(storeCtx, res)
		}
	}()
	return done
}

func (em *EnqueueJobsManager) applyResult(ctx context.Context, res types.JobResult) {
	if !state.IsValidTransition(state.StatusProcessing, res.Status) {
		slog.Error("invalid job state transition", "job_id", res.JobID, "status", res.Status)
		return
	}
	metrics.JobProcessed(res.Queue, res.Status.String(), res.FinishedAt.Sub(res.RanAt))

	var err error
	switch res.Status {
	case state.StatusSucceeded:
		err = em.store.MarkSuccess(ctx, res.JobID, em.serverID, res.FinishedAt)
		slog.Info("job succeeded", "job_id", res.JobID, "job", res.Name, "duration", res.FinishedAt.Sub(res.RanAt).String())
	default:
		errMsg := "interrupted"
		if res.Err != nil {
			errMsg = res.Err.Error()
		}
		err = em.store.MarkFailure(ctx, res.JobID, em.serverID, errMsg, res.Status, res.RetryAt, res.FinishedAt)
		slog.Warn("job failed",
			"job_id", res.JobID,
			"job", res.Name,
			"status", res.Status,
			"attempt", res.Attempts,
			"max_attempts", res.MaxAttempts,
			"retry_at", res.RetryAt,
			"error", errMsg)
	}

	if errors.Is(err, custom_errors.ErrJobLockLost) {
		slog.Warn("job result discarded, lock taken by another server", "job_id", res.JobID)
	} else if err != nil {
		slog.Error("failed to record job result", "job_id", res.JobID, "status", res.Status, "error", err)
	}
}

// requeueTimedOutJobs periodically releases jobs whose server stopped
// refreshing their lock, so they show as queued again.
func (em *EnqueueJobsManager) requeueTimedOutJobs(ctx context.Context) {
	ticker := time.NewTicker(max(em.opts.InvisibilityTimeout/2, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := em.requeueTimedOutOnce(ctx); err != nil && ctx.Err() == nil {
				slog.Error("failed to requeue timed out jobs", "error", err)
			}
		}
	}
}

func (em *EnqueueJobsManager) requeueTimedOutOnce(ctx context.Context) (err error) {
	if !em.opts.DisableGlobalLocks {
		if err := em.lock.Acquire(ctx, constants.RequeueLock); err != nil {
			return err
		}
		defer func() {
			if releaseErr := em.lock.Release(context.WithoutCancel(ctx), constants.RequeueLock); releaseErr != nil && err == nil {
				err = releaseErr
			}
		}()
	}

	n, err := em.store.RequeueTimedOut(ctx, time.Now().Add(-em.opts.InvisibilityTimeout))
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("requeued timed out jobs", "count", n)
	}
	return nil
}

// StartQueueAndStorageSyncWorker moves jobs published by queue writers into
// storage in batches. It blocks until ctx is cancelled and flushes the
// pending batch before returning.
func (em *EnqueueJobsManager) StartQueueAndStorageSyncWorker(ctx context.Context) error {
	if em.mBroker == nil {
		return nil
	}

	msgCh, err := em.mBroker.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}
	slog.Info("queue writer sync worker started", "server", em.serverID)

	ticker := time.NewTicker(constants.QueueSyncFlushInterval)
	defer ticker.Stop()

	var jobsBatch []types.Job
	flushBatch := func(ctx context.Context) {
		if len(jobsBatch) == 0 {
			return
		}
		if err := em.store.BulkInsert(ctx, jobsBatch); err != nil {
			slog.Error("failed to insert batch jobs", "count", len(jobsBatch), "error", err)
		} else {
			slog.Info("inserted jobs in batch", "count", len(jobsBatch))
		}
		jobsBatch = nil
	}

	for {
		select {
		case <-ctx.Done():
			flushBatch(context.WithoutCancel(ctx))
			return nil

		case msg, ok := <-msgCh:
			if !ok {
				flushBatch(context.WithoutCancel(ctx))
				return nil
			}

			var job types.Job
			if err := json.Unmarshal(msg, &job); err != nil {
				slog.Warn("dropping malformed job message", "error", err)
				continue
			}
			job.Queue = normalizeQueue(job.Queue)
			if job.MaxAttempts < 1 {
				job.MaxAttempts = em.opts.MaxAttempts
			}

			jobsBatch = append(jobsBatch, job)
			if len(jobsBatch) >= constants.QueueSyncBatchSize {
				flushBatch(ctx)
			}

		case <-ticker.C:
			flushBatch(ctx)
		}
	}
}
