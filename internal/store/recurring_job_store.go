package store

import (
	"context"
	"time"

	"github.com/RezaEskandarii/hostfire/types"
)

// RecurringJobStore defines the interface for managing recurring jobs in DB.
type RecurringJobStore interface {
	// AddOrUpdate inserts a recurring job or replaces its definition.
	AddOrUpdate(ctx context.Context, job types.RecurringJob) error

	Find(ctx context.Context, id string) (*types.RecurringJob, error)

	// Remove deletes the recurring job; a missing job is not an error.
	Remove(ctx context.Context, id string) error

	// FetchDue returns active recurring jobs whose NextRunAt <= now.
	FetchDue(ctx context.Context, now time.Time, limit int) ([]types.RecurringJob, error)

	// TryTrigger atomically moves job.NextRunAt to nextRunAt and enqueues a
	// background job for it. It reports false when another server already
	// triggered this occurrence.
	TryTrigger(ctx context.Context, job types.RecurringJob, now, nextRunAt time.Time, maxAttempts int) (int64, bool, error)

	// MarkError records why the job cannot be scheduled and deactivates it.
	MarkError(ctx context.Context, id string, errMsg string) error

	GetAll(ctx context.Context, page int, pageSize int) (*types.PaginationResult[types.RecurringJob], error)

	Count(ctx context.Context) (int, error)

	Activate(ctx context.Context, id string, nextRunAt time.Time) error

	DeActivate(ctx context.Context, id string) error

	// Close closes the database
	Close() error
}
