package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/RezaEskandarii/hostfire/custom_errors"
	"github.com/RezaEskandarii/hostfire/internal/state"
	"github.com/RezaEskandarii/hostfire/internal/store"
	"github.com/RezaEskandarii/hostfire/types"
)

const recurringJobColumns = `id, job_name, queue, payload, expression, time_zone,
	next_run_at, last_run_at, last_job_id, last_error, is_active, created_at, updated_at`

type postgresRecurringJobStore struct {
	db   *sql.DB
	opts store.Options
}

// NewPostgresRecurringJobStore creates a RecurringJobStore backed by PostgreSQL.
func NewPostgresRecurringJobStore(db *sql.DB, opts store.Options) store.RecurringJobStore {
	return &postgresRecurringJobStore{db: db, opts: opts}
}

func (s *postgresRecurringJobStore) AddOrUpdate(ctx context.Context, job types.RecurringJob) error {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	payload := string(job.Payload)
	if payload == "" {
		payload = "[]"
	}
	now := time.Now().UTC()

	// next_run_at survives re-registration unless the schedule itself changed.
	query := `
		INSERT INTO hostfire.recurring_jobs (id, job_name, queue, payload, expression, time_zone,
		                                     next_run_at, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $8)
		ON CONFLICT (id) DO UPDATE SET
			job_name = EXCLUDED.job_name,
			queue = EXCLUDED.queue,
			payload = EXCLUDED.payload,
			next_run_at = CASE
				WHEN recurring_jobs.expression <> EXCLUDED.expression
				  OR recurring_jobs.time_zone <> EXCLUDED.time_zone
				  OR NOT recurring_jobs.is_active
				THEN EXCLUDED.next_run_at
				ELSE recurring_jobs.next_run_at
			END,
			expression = EXCLUDED.expression,
			time_zone = EXCLUDED.time_zone,
			is_active = TRUE,
			last_error = NULL,
			updated_at = EXCLUDED.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.JobName,
		job.Queue,
		payload,
		job.Expression,
		job.TimeZone,
		job.NextRunAt.UTC(),
		now,
	)
	if err != nil {
		return fmt.Errorf("add or update recurring job %s: %w", job.ID, err)
	}
	return nil
}

func (s *postgresRecurringJobStore) Find(ctx context.Context, id string) (*types.RecurringJob, error) {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	query := `SELECT ` + recurringJobColumns + ` FROM hostfire.recurring_jobs WHERE id = $1`
	job, err := scanRecurringJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, custom_errors.ErrRecurringJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func (s *postgresRecurringJobStore) Remove(ctx context.Context, id string) error {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `DELETE FROM hostfire.recurring_jobs WHERE id = $1`, id)
	return err
}

func (s *postgresRecurringJobStore) FetchDue(ctx context.Context, now time.Time, limit int) ([]types.RecurringJob, error) {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	query := `SELECT ` + recurringJobColumns + `
		FROM hostfire.recurring_jobs
		WHERE is_active = TRUE AND next_run_at <= $1
		ORDER BY next_run_at ASC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("fetch due recurring jobs: %w", err)
	}
	defer rows.Close()

	return scanRecurringJobs(rows)
}

func (s *postgresRecurringJobStore) TryTrigger(ctx context.Context, job types.RecurringJob, now, nextRunAt time.Time, maxAttempts int) (jobID int64, triggered bool, err error) {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, s.opts.TxOptions())
	if err != nil {
		return 0, false, err
	}
	defer func() {
		if err != nil || !triggered {
			_ = tx.Rollback()
		}
	}()

	// Only the server that moves next_run_at off the observed value enqueues.
	result, err := tx.ExecContext(ctx, `
		UPDATE hostfire.recurring_jobs
		SET next_run_at = $2, last_run_at = $3, updated_at = $3
		WHERE id = $1 AND next_run_at = $4 AND is_active = TRUE`,
		job.ID, nextRunAt.UTC(), now.UTC(), job.NextRunAt.UTC())
	if err != nil {
		return 0, false, fmt.Errorf("advance recurring job %s: %w", job.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if affected == 0 {
		return 0, false, nil
	}

	payload := string(job.Payload)
	if payload == "" {
		payload = "[]"
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO hostfire.enqueued_jobs (queue, name, payload, status, max_attempts, scheduled_at, recurring_job_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $6)
		RETURNING id`,
		job.Queue, job.JobName, payload, state.StatusQueued, maxAttempts, now.UTC(), job.ID,
	).Scan(&jobID)
	if err != nil {
		return 0, false, fmt.Errorf("enqueue recurring job %s: %w", job.ID, err)
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE hostfire.recurring_jobs SET last_job_id = $2, last_error = NULL WHERE id = $1`,
		job.ID, jobID); err != nil {
		return 0, false, err
	}

	if err = tx.Commit(); err != nil {
		return 0, false, err
	}
	return jobID, true, nil
}

func (s *postgresRecurringJobStore) MarkError(ctx context.Context, id string, errMsg string) error {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		UPDATE hostfire.recurring_jobs
		SET last_error = $2, is_active = FALSE, updated_at = $3
		WHERE id = $1`,
		id, errMsg, time.Now().UTC())
	return err
}

func (s *postgresRecurringJobStore) GetAll(ctx context.Context, page int, pageSize int) (*types.PaginationResult[types.RecurringJob], error) {
	totalItems, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	page, offset := types.Offset(page, pageSize)
	rows, err := s.db.QueryContext(ctx, `SELECT `+recurringJobColumns+`
		FROM hostfire.recurring_jobs
		ORDER BY id ASC
		LIMIT $1 OFFSET $2`, pageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs, err := scanRecurringJobs(rows)
	if err != nil {
		return nil, err
	}
	return types.NewPaginationResult(jobs, totalItems, page, pageSize), nil
}

func (s *postgresRecurringJobStore) Count(ctx context.Context) (int, error) {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM hostfire.recurring_jobs`).Scan(&count)
	return count, err
}

func (s *postgresRecurringJobStore) Activate(ctx context.Context, id string, nextRunAt time.Time) error {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		UPDATE hostfire.recurring_jobs
		SET is_active = TRUE, last_error = NULL, next_run_at = $2, updated_at = $3
		WHERE id = $1`,
		id, nextRunAt.UTC(), time.Now().UTC())
	if err != nil {
		return err
	}
	return expectAffected(result, custom_errors.ErrRecurringJobNotFound)
}

func (s *postgresRecurringJobStore) DeActivate(ctx context.Context, id string) error {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		UPDATE hostfire.recurring_jobs SET is_active = FALSE, updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC())
	if err != nil {
		return err
	}
	return expectAffected(result, custom_errors.ErrRecurringJobNotFound)
}

func (s *postgresRecurringJobStore) Close() error {
	return s.db.Close()
}

func scanRecurringJob(row rowScanner) (*types.RecurringJob, error) {
	var job types.RecurringJob
	var payload []byte
	if err := row.Scan(
		&job.ID,
		&job.JobName,
		&job.Queue,
		&payload,
		&job.Expression,
		&job.TimeZone,
		&job.NextRunAt,
		&job.LastRunAt,
		&job.LastJobID,
		&job.LastError,
		&job.IsActive,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Payload = json.RawMessage(payload)
	return &job, nil
}

func scanRecurringJobs(rows *sql.Rows) ([]types.RecurringJob, error) {
	var jobs []types.RecurringJob
	for rows.Next() {
		job, err := scanRecurringJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}
