package sqlserver

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
	mssql "github.com/microsoft/go-mssqldb"
)

const enqueuedJobColumns = `id, queue, name, payload, status, attempts, max_attempts,
	scheduled_at, executed_at, finished_at, last_error, locked_by, locked_at,
	recurring_job_id, created_at`

const dueJobCondition = `((status IN (N'queued', N'retrying') AND scheduled_at <= @p%d)
	OR (status = N'processing' AND locked_at < @p%d))`

type sqlServerEnqueuedJobStore struct {
	db   *sql.DB
	opts store.Options
}

// NewSQLServerEnqueuedJobStore creates an EnqueuedJobStore backed by SQL Server.
func NewSQLServerEnqueuedJobStore(db *sql.DB, opts store.Options) store.EnqueuedJobStore {
	return &sqlServerEnqueuedJobStore{db: db, opts: opts}
}

func (s *sqlServerEnqueuedJobStore) Insert(ctx context.Context, queue, jobName string, scheduledAt time.Time, maxAttempts int, args ...any) (int64, error) {
	payloadJSON, err := marshalArgs(args)
	if err != nil {
		return 0, err
	}

	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO hostfire.enqueued_jobs (queue, name, payload, status, max_attempts, scheduled_at, created_at)
		OUTPUT INSERTED.id
		VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7)`

	var jobID int64
	err = s.db.QueryRowContext(ctx, query,
		queue,
		jobName,
		payloadJSON,
		state.StatusQueued.String(),
		maxAttempts,
		scheduledAt.UTC(),
		time.Now().UTC(),
	).Scan(&jobID)
	if err != nil {
		return 0, fmt.Errorf("insert job %s: %w", jobName, err)
	}

	return jobID, nil
}

func (s *sqlServerEnqueuedJobStore) BulkInsert(ctx context.Context, jobs []types.Job) (err error) {
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

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn("hostfire.enqueued_jobs", mssql.BulkOptions{},
		"queue", "name", "payload", "status", "max_attempts", "scheduled_at", "created_at"))
	if err != nil {
		return fmt.Errorf("prepare bulk copy: %w", err)
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
			return fmt.Errorf("bulk copy job %s: %w", job.Name, err)
		}
	}

	if _, err = stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("flush bulk copy: %w", err)
	}
	if err = stmt.Close(); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *sqlServerEnqueuedJobStore) FindByID(ctx context.Context, jobID int64) (*types.EnqueuedJob, error) {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	query := `SELECT ` + enqueuedJobColumns + ` FROM hostfire.enqueued_jobs WHERE id = @p1`
	job, err := scanEnqueuedJob(s.db.QueryRowContext(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, custom_errors.ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func (s *sqlServerEnqueuedJobStore) RemoveByID(ctx context.Context, jobID int64) error {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `DELETE FROM hostfire.enqueued_jobs WHERE id = @p1`, jobID)
	if err != nil {
		return err
	}
	return expectAffected(result, custom_errors.ErrJobNotFound)
}

func (s *sqlServerEnqueuedJobStore) FetchDueJobs(ctx context.Context, queues []string, limit int, now, staleBefore time.Time) ([]types.EnqueuedJob, error) {
	if len(queues) == 0 {
		return nil, nil
	}

	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	args := []any{limit, now.UTC(), staleBefore.UTC()}
	inClause, args := placeholders(args, queues)

	// READPAST skips rows another server is claiming right now.
	query := `SELECT TOP (@p1) ` + enqueuedJobColumns + `
		FROM hostfire.enqueued_jobs WITH (READPAST)
		WHERE queue IN (` + inClause + `) AND ` + fmt.Sprintf(dueJobCondition, 2, 3) + `
		ORDER BY scheduled_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch due jobs: %w", err)
	}
	defer rows.Close()

	return scanEnqueuedJobs(rows)
}

func (s *sqlServerEnqueuedJobStore) LockJob(ctx context.Context, jobID int64, lockedBy string, now, staleBefore time.Time) (bool, error) {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	query := `
		UPDATE hostfire.enqueued_jobs
		SET status = N'processing',
		    locked_by = @p2,
		    locked_at = @p3,
		    executed_at = @p3,
		    attempts = attempts + 1
		WHERE id = @p1 AND ` + fmt.Sprintf(dueJobCondition, 3, 4)

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

func (s *sqlServerEnqueuedJobStore) KeepAlive(ctx context.Context, jobID int64, lockedBy string, now time.Time) (bool, error) {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		UPDATE hostfire.enqueued_jobs
		SET locked_at = @p3
		WHERE id = @p1 AND locked_by = @p2 AND status = N'processing'`,
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

func (s *sqlServerEnqueuedJobStore) MarkSuccess(ctx context.Context, jobID int64, lockedBy string, finishedAt time.Time) error {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		UPDATE hostfire.enqueued_jobs
		SET status = N'succeeded',
		    finished_at = @p3,
		    last_error = NULL,
		    locked_by = NULL,
		    locked_at = NULL
		WHERE id = @p1 AND locked_by = @p2 AND status = N'processing'`,
		jobID, lockedBy, finishedAt.UTC())
	if err != nil {
		return err
	}
	return expectAffected(result, custom_errors.ErrJobLockLost)
}

func (s *sqlServerEnqueuedJobStore) MarkFailure(ctx context.Context, jobID int64, lockedBy string, errMsg string, status state.JobStatus, retryAt, finishedAt time.Time) error {
	if !state.IsValidTransition(state.StatusProcessing, status) {
		return fmt.Errorf("%w: %s -> %s", custom_errors.ErrInvalidStatus, state.StatusProcessing, status)
	}

	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		UPDATE hostfire.enqueued_jobs
		SET status = @p3,
		    last_error = @p4,
		    scheduled_at = @p5,
		    finished_at = @p6,
		    locked_by = NULL,
		    locked_at = NULL
		WHERE id = @p1 AND locked_by = @p2 AND status = N'processing'`,
		jobID, lockedBy, status.String(), errMsg, retryAt.UTC(), finishedAt.UTC())
	if err != nil {
		return err
	}
	return expectAffected(result, custom_errors.ErrJobLockLost)
}

func (s *sqlServerEnqueuedJobStore) Requeue(ctx context.Context, jobID int64, now time.Time) error {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		UPDATE hostfire.enqueued_jobs
		SET status = N'queued',
		    attempts = 0,
		    scheduled_at = @p2,
		    finished_at = NULL,
		    locked_by = NULL,
		    locked_at = NULL
		WHERE id = @p1 AND status IN (N'failed', N'succeeded')`,
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
func (s *sqlServerEnqueuedJobStore) requeueRejected(ctx context.Context, jobID int64) error {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM hostfire.enqueued_jobs WHERE id = @p1`, jobID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return custom_errors.ErrJobNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: cannot requeue a %s job", custom_errors.ErrInvalidStatus, status)
}

func (s *sqlServerEnqueuedJobStore) RequeueTimedOut(ctx context.Context, staleBefore time.Time) (int64, error) {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		UPDATE hostfire.enqueued_jobs
		SET status = N'queued',
		    locked_by = NULL,
		    locked_at = NULL
		WHERE status = N'processing' AND locked_at < @p1`,
		staleBefore.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *sqlServerEnqueuedJobStore) GetAll(ctx context.Context, page int, pageSize int, status state.JobStatus) (*types.PaginationResult[types.EnqueuedJob], error) {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	page, offset := types.Offset(page, pageSize)

	where := "1 = 1"
	var args []any
	argIndex := 1
	if status != "" {
		where += fmt.Sprintf(" AND status = @p%d", argIndex)
		args = append(args, status.String())
		argIndex++
	}

	var totalItems int
	countQuery := `SELECT COUNT(*) FROM hostfire.enqueued_jobs WHERE ` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalItems); err != nil {
		return nil, err
	}

	selectQuery := `SELECT ` + enqueuedJobColumns + `
		FROM hostfire.enqueued_jobs
		WHERE ` + where + fmt.Sprintf(" ORDER BY created_at DESC, id DESC OFFSET @p%d ROWS FETCH NEXT @p%d ROWS ONLY", argIndex, argIndex+1)
	args = append(args, offset, pageSize)

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

func (s *sqlServerEnqueuedJobStore) CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobStatus]int, error) {
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

func (s *sqlServerEnqueuedJobStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// payload is NVARCHAR(MAX); the driver hands it back as a string.
func scanEnqueuedJob(row rowScanner) (*types.EnqueuedJob, error) {
	var job types.EnqueuedJob
	var payload string
	var status string
	if err := row.Scan(
		&job.ID,
		&job.Queue,
		&job.Name,
		&payload,
		&status,
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
	job.Status = state.JobStatus(status)
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

// placeholders appends values to args and returns "@pN, @pN+1, ..." for them.
func placeholders(args []any, values []string) (string, []any) {
	names := make([]string, len(values))
	for i, v := range values {
		args = append(args, v)
		names[i] = fmt.Sprintf("@p%d", len(args))
	}
	return strings.Join(names, ", "), args
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
