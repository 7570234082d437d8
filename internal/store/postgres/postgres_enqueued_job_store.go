package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RezaEskandarii/hostfire/custom_errors"
	"github.com/RezaEskandarii/hostfire/internal/state"
	"github.com/RezaEskandarii/hostfire/internal/store"
	"github.com/RezaEskandarii/hostfire/types"
	"github.com/lib/pq"
)

const enqueuedJobColumns = `id, queue, name, payload, status, attempts, max_attempts,
	scheduled_at, executed_at, finished_at, last_error, locked_by, locked_at,
	recurring_job_id, created_at`

// A job is due when it waits in queued/retrying state, or when the server
// processing it stopped refreshing its lock.
const dueJobCondition = `((status IN ('queued', 'retrying') AND scheduled_at <= $%d)
	OR (status = 'processing' AND locked_at < $%d))`

type postgresEnqueuedJobStore struct {
	db   *sql.DB
	opts store.Options
}

// NewPostgresEnqueuedJobStore creates an EnqueuedJobStore backed by PostgreSQL.
func NewPostgresEnqueuedJobStore(db *sql.DB, opts store.Options) store.EnqueuedJobStore {
	return &postgresEnqueuedJobStore{db: db, opts: opts}
}

func (s *postgresEnqueuedJobStore) Insert(ctx context.Context, queue, jobName string, scheduledAt time.Time, maxAttempts int, args ...any) (int64, error) {
	payloadJSON, err := marshalArgs(args)
	if err != nil {
		return 0, err
	}

	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO hostfire.enqueued_jobs (queue, name, payload, status, max_attempts, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	var jobID int64
	err = s.db.QueryRowContext(ctx, query,
		queue,
		jobName,
		payloadJSON,
		state.StatusQueued,
		maxAttempts,
		scheduledAt.UTC(),
		time.Now().UTC(),
	).Scan(&jobID)
	if err != nil {
		return 0, fmt.Errorf("insert job %s: %w", jobName, err)
	}

	return jobID, nil
}

func (s *postgresEnqueuedJobStore) BulkInsert(ctx context.Context, jobs []types.Job) (err error) {
	if len(jobs) == 0 {
		return nil
	}

	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, s.opts.TxOptions())
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema("hostfire", "enqueued_jobs",
		"queue", "name", "payload", "status", "max_attempts", "scheduled_at", "created_at"))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}

	now := time.Now().UTC()
	for _, job := range jobs {
		payloadJSON, err := marshalArgs(job.Args)
		if err != nil {
			_ = stmt.Close()
			return err
		}
		scheduledAt := job.ScheduledAt
		if scheduledAt.IsZero() {
			scheduledAt = now
		}
		if _, err := stmt.ExecContext(ctx, job.Queue, job.Name, payloadJSON, state.StatusQueued.String(), job.MaxAttempts, scheduledAt.UTC(), now); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("copy job %s: %w", job.Name, err)
		}
	}

	if _, err = stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	if err = stmt.Close(); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *postgresEnqueuedJobStore) FindByID(ctx context.Context, jobID int64) (*types.EnqueuedJob, error) {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	query := `SELECT ` + enqueuedJobColumns + ` FROM hostfire.enqueued_jobs WHERE id = $1`
	job, err := scanEnqueuedJob(s.db.QueryRowContext(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, custom_errors.ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func (s *postgresEnqueuedJobStore) RemoveByID(ctx context.Context, jobID int64) error {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `DELETE FROM hostfire.enqueued_jobs WHERE id = $1`, jobID)
	if err != nil {
		return err
	}
	return expectAffected(result, custom_errors.ErrJobNotFound)
}

func (s *postgresEnqueuedJobStore) FetchDueJobs(ctx context.Context, queues []string, limit int, now, staleBefore time.Time) ([]types.EnqueuedJob, error) {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	query := `SELECT ` + enqueuedJobColumns + `
		FROM hostfire.enqueued_jobs
		WHERE queue = ANY($1) AND ` + fmt.Sprintf(dueJobCondition, 2, 3) + `
		ORDER BY scheduled_at ASC, id ASC
		LIMIT $4`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(queues), now.UTC(), staleBefore.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("fetch due jobs: %w", err)
	}
	defer rows.Close()

	return scanEnqueuedJobs(rows)
}

func (s *postgresEnqueuedJobStore) LockJob(ctx context.Context, jobID int64, lockedBy string, now, staleBefore time.Time) (bool, error) {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	query := `
		UPDATE hostfire.enqueued_jobs
		SET status = 'processing',
		    locked_by = $2,
		    locked_at = $3,
		    executed_at = $3,
		    attempts = attempts + 1
		WHERE id = $1 AND ` + fmt.Sprintf(dueJobCondition, 3, 4)

	result, err := s.db.ExecContext(ctx, query, jobID, lockedBy, now.UTC(), staleBefore.UTC())
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *postgresEnqueuedJobStore) KeepAlive(ctx context.Context, jobID int64, lockedBy string, now time.Time) (bool, error) {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		UPDATE hostfire.enqueued_jobs
		SET locked_at = $3
		WHERE id = $1 AND locked_by = $2 AND status = 'processing'`,
		jobID, lockedBy, now.UTC())
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *postgresEnqueuedJobStore) MarkSuccess(ctx context.Context, jobID int64, lockedBy string, finishedAt time.Time) error {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		UPDATE hostfire.enqueued_jobs
		SET status = 'succeeded',
		    finished_at = $3,
		    last_error = NULL,
		    locked_by = NULL,
		    locked_at = NULL
		WHERE id = $1 AND locked_by = $2 AND status = 'processing'`,
		jobID, lockedBy, finishedAt.UTC())
	if err != nil {
		return err
	}
	return expectAffected(result, custom_errors.ErrJobLockLost)
}

func (s *postgresEnqueuedJobStore) MarkFailure(ctx context.Context, jobID int64, lockedBy string, errMsg string, status state.JobStatus, retryAt, finishedAt time.Time) error {
	if !state.IsValidTransition(state.StatusProcessing, status) {
		return fmt.Errorf("%w: %s -> %s", custom_errors.ErrInvalidStatus, state.StatusProcessing, status)
	}

	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		UPDATE hostfire.enqueued_jobs
		SET status = $3,
		    last_error = $4,
		    scheduled_at = $5,
		    finished_at = $6,
		    locked_by = NULL,
		    locked_at = NULL
		WHERE id = $1 AND locked_by = $2 AND status = 'processing'`,
		jobID, lockedBy, status, errMsg, retryAt.UTC(), finishedAt.UTC())
	if err != nil {
		return err
	}
	return expectAffected(result, custom_errors.ErrJobLockLost)
}

func (s *postgresEnqueuedJobStore) Requeue(ctx context.Context, jobID int64, now time.Time) error {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		UPDATE hostfire.enqueued_jobs
		SET status = 'queued',
		    attempts = 0,
		    scheduled_at = $2,
		    finished_at = NULL,
		    locked_by = NULL,
		    locked_at = NULL
		WHERE id = $1 AND status IN ('failed', 'succeeded')`,
		jobID, now.UTC())
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return s.requeueRejected(ctx, jobID)
	}
	return nil
}

// requeueRejected explains why Requeue matched no row: the job is gone, or it
// is still queued or running.
func (s *postgresEnqueuedJobStore) requeueRejected(ctx context.Context, jobID int64) error {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM hostfire.enqueued_jobs WHERE id = $1`, jobID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return custom_errors.ErrJobNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: cannot requeue a %s job", custom_errors.ErrInvalidStatus, status)
}

func (s *postgresEnqueuedJobStore) RequeueTimedOut(ctx context.Context, staleBefore time.Time) (int64, error) {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		UPDATE hostfire.enqueued_jobs
		SET status = 'queued',
		    locked_by = NULL,
		    locked_at = NULL
		WHERE status = 'processing' AND locked_at < $1`,
		staleBefore.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *postgresEnqueuedJobStore) GetAll(ctx context.Context, page int, pageSize int, status state.JobStatus) (*types.PaginationResult[types.EnqueuedJob], error) {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	page, offset := types.Offset(page, pageSize)

	where := "TRUE"
	var args []any
	argIndex := 1
	if status != "" {
		where += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, status)
		argIndex++
	}

	var totalItems int
	countQuery := `SELECT COUNT(*) FROM hostfire.enqueued_jobs WHERE ` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalItems); err != nil {
		return nil, err
	}

	selectQuery := `SELECT ` + enqueuedJobColumns + `
		FROM hostfire.enqueued_jobs
		WHERE ` + where + fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, pageSize, offset)

	rows, err := s.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs, err := scanEnqueuedJobs(rows)
	if err != nil {
		return nil, err
	}

	return types.NewPaginationResult(jobs, totalItems, page, pageSize), nil
}

func (s *postgresEnqueuedJobStore) CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobStatus]int, error) {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM hostfire.enqueued_jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[state.JobStatus]int, len(state.AllStatuses))
	for _, status := range state.AllStatuses {
		result[status] = 0
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		result[state.JobStatus(strings.ToLower(status))] = count
	}
	return result, rows.Err()
}

func (s *postgresEnqueuedJobStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnqueuedJob(row rowScanner) (*types.EnqueuedJob, error) {
	var job types.EnqueuedJob
	var payload []byte
	if err := row.Scan(
		&job.ID,
		&job.Queue,
		&job.Name,
		&payload,
		&job.Status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.ScheduledAt,
		&job.ExecutedAt,
		&job.FinishedAt,
		&job.LastError,
		&job.LockedBy,
		&job.LockedAt,
		&job.RecurringJobID,
		&job.CreatedAt,
	); err != nil {
		return nil, err
	}
	job.Payload = json.RawMessage(payload)
	return &job, nil
}

func scanEnqueuedJobs(rows *sql.Rows) ([]types.EnqueuedJob, error) {
	var jobs []types.EnqueuedJob
	for rows.Next() {
		job, err := scanEnqueuedJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func marshalArgs(args []any) (string, error) {
	if args == nil {
		args = []any{}
	}
	payloadJSON, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("%w: %v", custom_errors.ErrInvalidPayload, err)
	}
	return string(payloadJSON), nil
}

func expectAffected(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
