package sqlserver

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RezaEskandarii/hostfire/custom_errors"
	"github.com/RezaEskandarii/hostfire/internal/state"
	"github.com/RezaEskandarii/hostfire/internal/store"
	"github.com/RezaEskandarii/hostfire/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jobColumns = []string{"id", "queue", "name", "payload", "status", "attempts", "max_attempts",
	"scheduled_at", "executed_at", "finished_at", "last_error", "locked_by", "locked_at",
	"recurring_job_id", "created_at"}

func newJobStore(t *testing.T) (store.EnqueuedJobStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLServerEnqueuedJobStore(db, store.Options{CommandTimeout: 5 * time.Minute}), mock
}

func TestSQLServerEnqueuedJobStore_Insert(t *testing.T) {
	jobStore, mock := newJobStore(t)
	scheduledAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO hostfire.enqueued_jobs (.+) OUTPUT INSERTED.id").
		WithArgs("default", "Console.WriteLine", `["Hello world from Hangfire!"]`, "queued", 1, scheduledAt, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	jobID, err := jobStore.Insert(context.Background(), "default", "Console.WriteLine", scheduledAt, 1, "Hello world from Hangfire!")
	require.NoError(t, err)
	assert.Equal(t, int64(1), jobID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLServerEnqueuedJobStore_BulkInsert(t *testing.T) {
	jobStore, mock := newJobStore(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERTBULK")
	prep.ExpectExec().WithArgs("default", "A", "[]", "queued", 1, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := jobStore.BulkInsert(context.Background(), []types.Job{{Queue: "default", Name: "A", MaxAttempts: 1}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLServerEnqueuedJobStore_FetchDueJobs(t *testing.T) {
	jobStore, mock := newJobStore(t)
	now := time.Now().UTC()
	staleBefore := now.Add(-5 * time.Minute)

	mock.ExpectQuery("SELECT TOP \\(@p1\\) (.+) WITH \\(READPAST\\)\\s+WHERE queue IN \\(@p4, @p5\\)").
		WithArgs(20, now, staleBefore, "critical", "default").
		WillReturnRows(sqlmock.NewRows(jobColumns).
			AddRow(9, "critical", "A", `[1,"x"]`, "retrying", 1, 3, now, now, now, "boom", nil, nil, nil, now))

	jobs, err := jobStore.FetchDueJobs(context.Background(), []string{"critical", "default"}, 20, now, staleBefore)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, state.StatusRetrying, jobs[0].Status)

	args, err := jobs[0].Args()
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), "x"}, args)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLServerEnqueuedJobStore_FetchDueJobs_NoQueues(t *testing.T) {
	jobStore, mock := newJobStore(t)

	jobs, err := jobStore.FetchDueJobs(context.Background(), nil, 20, time.Now(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLServerEnqueuedJobStore_LockJob(t *testing.T) {
	jobStore, mock := newJobStore(t)
	now := time.Now().UTC()

	mock.ExpectExec("SET status = N'processing'").
		WithArgs(int64(9), "host:1", now, now.Add(-time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := jobStore.LockJob(context.Background(), 9, "host:1", now, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLServerEnqueuedJobStore_MarkFailure_LockLost(t *testing.T) {
	jobStore, mock := newJobStore(t)
	now := time.Now().UTC()

	mock.ExpectExec("SET status = @p3").
		WithArgs(int64(9), "host:1", "failed", "boom", now, now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := jobStore.MarkFailure(context.Background(), 9, "host:1", "boom", state.StatusFailed, now, now)
	assert.ErrorIs(t, err, custom_errors.ErrJobLockLost)
}

func TestSQLServerEnqueuedJobStore_Requeue(t *testing.T) {
	jobStore, mock := newJobStore(t)
	now := time.Now().UTC()

	mock.ExpectExec("WHERE id = @p1 AND status IN \\(N'failed', N'succeeded'\\)").
		WithArgs(int64(7), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, jobStore.Requeue(context.Background(), 7, now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLServerEnqueuedJobStore_Requeue_ProcessingJobRejected(t *testing.T) {
	jobStore, mock := newJobStore(t)
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE hostfire.enqueued_jobs").
		WithArgs(int64(7), now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM hostfire.enqueued_jobs WHERE id = @p1").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("processing"))

	assert.ErrorIs(t, jobStore.Requeue(context.Background(), 7, now), custom_errors.ErrInvalidStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLServerEnqueuedJobStore_GetAll(t *testing.T) {
	jobStore, mock := newJobStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM hostfire.enqueued_jobs WHERE 1 = 1$").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("OFFSET @p1 ROWS FETCH NEXT @p2 ROWS ONLY").
		WithArgs(0, 10).
		WillReturnRows(sqlmock.NewRows(jobColumns).
			AddRow(1, "default", "A", `[]`, "succeeded", 1, 1, now, now, now, nil, nil, nil, nil, now))

	result, err := jobStore.GetAll(context.Background(), 1, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalItems)
	require.Len(t, result.Items, 1)
	assert.Equal(t, state.StatusSucceeded, result.Items[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceholders(t *testing.T) {
	clause, args := placeholders([]any{1, 2}, []string{"a", "b", "c"})
	assert.Equal(t, "@p3, @p4, @p5", clause)
	assert.Equal(t, []any{1, 2, "a", "b", "c"}, args)
}
