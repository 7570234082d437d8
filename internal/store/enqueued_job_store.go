package store

import (
	"context"
	"time"

	"github.com/RezaEskandarii/hostfire/internal/state"
	"github.com/RezaEskandarii/hostfire/types"
)

// EnqueuedJobStore manages background jobs waiting for or undergoing execution.
type EnqueuedJobStore interface {
	// Insert stores a new job due at scheduledAt and returns its ID.
	Insert(ctx context.Context, queue, jobName string, scheduledAt time.Time, maxAttempts int, args ...any) (int64, error)

	// BulkInsert stores many jobs at once; used by the queue writer sync worker.
	BulkInsert(ctx context.Context, jobs []types.Job) error

	FindByID(ctx context.Context, jobID int64) (*types.EnqueuedJob, error)

	RemoveByID(ctx context.Context, jobID int64) error

	// FetchDueJobs returns up to limit jobs from queues that are due at now and
	// either waiting or held by a lock older than staleBefore.
	FetchDueJobs(ctx context.Context, queues []string, limit int, now, staleBefore time.Time) ([]types.EnqueuedJob, error)

	// LockJob claims a fetched job for lockedBy. It reports false when another
	// server claimed it first.
	LockJob(ctx context.Context, jobID int64, lockedBy string, now, staleBefore time.Time) (bool, error)

	// KeepAlive extends the claim held by lockedBy. It reports false when the
	// claim was lost.
	KeepAlive(ctx context.Context, jobID int64, lockedBy string, now time.Time) (bool, error)

	MarkSuccess(ctx context.Context, jobID int64, lockedBy string, finishedAt time.Time) error

	// MarkFailure records a failed execution. status is retrying (due again at
	// retryAt) or failed.
	MarkFailure(ctx context.Context, jobID int64, lockedBy string, errMsg string, status state.JobStatus, retryAt, finishedAt time.Time) error

	// Requeue makes a job due again immediately.
	Requeue(ctx context.Context, jobID int64, now time.Time) error

	// RequeueTimedOut releases processing jobs whose claim is older than staleBefore.
	RequeueTimedOut(ctx context.Context, staleBefore time.Time) (int64, error)

	GetAll(ctx context.Context, page int, pageSize int, status state.JobStatus) (*types.PaginationResult[types.EnqueuedJob], error)

	CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobStatus]int, error)

	// Close closes the database
	Close() error
}
