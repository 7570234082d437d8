package sqlserver

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

type sqlServerRecurringJobStore struct {
	db   *sql.DB
	opts store.Options
}

// NewSQLServerRecurringJobStore creates a RecurringJobStore backed by SQL Server.
func NewSQLServerRecurringJobStore(db *sql.DB, opts store.Options) store.RecurringJobStore {
	return &sqlServerRecurringJobStore{db: db, opts: opts}
}

func (s *sqlServerRecurringJobStore) AddOrUpdate(ctx context.Context, job types.RecurringJob) error {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	payload := string(job.Payload)
	if payload == "" {
		payload = "[]"
	}

	// HOLDLOCK keeps two servers registering the same id from both inserting.
	query := `
		MERGE hostfire.recurring_jobs WITH (HOLDLOCK) AS target
		USING (SELECT @p1 AS id) AS source
		ON target.id = source.id
		WHEN MATCHED THEN UPDATE SET
			job_name = @p2,
			queue = @p3,
			payload = @p4,
			next_run_at = CASE
				WHEN target.expression <> @p5 OR target.time_zone <> @p6 OR target.is_active = 0
				THEN @p7
				ELSE target.next_run_at
			END,
			expression = @p5,
			time_zone = @p6,
			is_active = 1,
			last_error = NULL,
			updated_at = @p8
		WHEN NOT MATCHED THEN
			INSERT (id, job_name, queue, payload, expression, time_zone, next_run_at, is_active, created_at, updated_at)
			VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7, 1, @p8, @p8);`

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.JobName,
		job.Queue,
		payload,
		job.Expression,
		job.TimeZone,
		job.NextRunAt.UTC(),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("add or update recurring job %s: %w", job.ID, err)
	}
	return nil
}

func (s *sqlServerRecurringJobStore) Find(ctx context.Context, id string) (*types.RecurringJob, error) {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	query := `SELECT ` + recurringJobColumns + ` FROM hostfire.recurring_jobs WHERE id = @p1`
	job, err := scanRecurringJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, custom_errors.ErrRecurringJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func (s *sqlServerRecurringJobStore) Remove(ctx context.Context, id string) error {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `DELETE FROM hostfire.recurring_jobs WHERE id = @p1`, id)
	return err
}

func (s *sqlServerRecurringJobStore) FetchDue(ctx context.Context, now time.Time, limit int) ([]types.RecurringJob, error) {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	query := `SELECT TOP (@p2) ` + recurringJobColumns + `
		FROM hostfire.recurring_jobs
		WHERE is_active = 1 AND next_run_at <= @p1
		ORDER BY next_run_at ASC`

	rows, err := s.db.QueryContext(ctx, query, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("fetch due recurring jobs: %w", err)
	}
	defer rows.Close()

	return scanRecurringJobs(rows)
}

func (s *sqlServerRecurringJobStore) TryTrigger(ctx context.Context, job types.RecurringJob, now, nextRunAt time.Time, maxAttempts int) (jobID int64, triggered bool, err error) {
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

	result, err := tx.ExecContext(ctx, `
		UPDATE hostfire.recurring_jobs
		SET next_run_at = @p2, last_run_at = @p3, updated_at = @p3
		WHERE id = @p1 AND next_run_at = @p4 AND is_active = 1`,
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
		OUTPUT INSERTED.id
		VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7, @p6)`,
		job.Queue, job.JobName, payload, state.StatusQueued.String(), maxAttempts, now.UTC(), job.ID,
	).Scan(&jobID)
	if err != nil {
		return 0, false, fmt.Errorf("enqueue recurring job %s: %w", job.ID, err)
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE hostfire.recurring_jobs SET last_job_id = @p2, last_error = NULL WHERE id = @p1`,
		job.ID, jobID); err != nil {
		return 0, false, err
	}

	if err = tx.Commit(); err != nil {
		return 0, false, err
	}
	return jobID, true, nil
}

func (s *sqlServerRecurringJobStore) MarkError(ctx context.Context, id string, errMsg string) error {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		UPDATE hostfire.recurring_jobs
		SET last_error = @p2, is_active = 0, updated_at = @p3
		WHERE id = @p1`,
		id, errMsg, time.Now().UTC())
	return err
}

func (s *sqlServerRecurringJobStore) GetAll(ctx context.Context, page int, pageSize int) (*types.PaginationResult[types.RecurringJob], error) {
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
		OFFSET @p1 ROWS FETCH NEXT @p2 ROWS ONLY`, offset, pageSize)
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

func (s *sqlServerRecurringJobStore) Count(ctx context.Context) (int, error) {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM hostfire.recurring_jobs`).Scan(&count)
	return count, err
}

func (s *sqlServerRecurringJobStore) Activate(ctx context.Context, id string, nextRunAt time.Time) error {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		UPDATE hostfire.recurring_jobs
		SET is_active = 1, last_error = NULL, next_run_at = @p2, updated_at = @p3
		WHERE id = @p1`,
		id, nextRunAt.UTC(), time.Now().UTC())
	if err != nil {
		return err
	}
	return expectAffected(result, custom_errors.ErrRecurringJobNotFound)
}

func (s *sqlServerRecurringJobStore) DeActivate(ctx context.Context, id string) error {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		UPDATE hostfire.recurring_jobs SET is_active = 0, updated_at = @p2 WHERE id = @p1`,
		id, time.Now().UTC())
	if err != nil {
		return err
	}
	return expectAffected(result, custom_errors.ErrRecurringJobNotFound)
}

func (s *sqlServerRecurringJobStore) Close() error {
	return s.db.Close()
}

func scanRecurringJob(row rowScanner) (*types.RecurringJob, error) {
	var job types.RecurringJob
	var payload string
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
