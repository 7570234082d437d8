package mocks

import (
	"context"
	"time"

	"github.com/RezaEskandarii/hostfire/internal/state"
	"github.com/RezaEskandarii/hostfire/types"
)

// MockEnqueuedJobStore is a mock implementation of store.EnqueuedJobStore for testing.
type MockEnqueuedJobStore struct {
	InsertFunc                      func(ctx context.Context, queue, jobName string, scheduledAt time.Time, maxAttempts int, args ...any) (int64, error)
	BulkInsertFunc                  func(ctx context.Context, jobs []types.Job) error
	FindByIDFunc                    func(ctx context.Context, jobID int64) (*types.EnqueuedJob, error)
	RemoveByIDFunc                  func(ctx context.Context, jobID int64) error
	FetchDueJobsFunc                func(ctx context.Context, queues []string, limit int, now, staleBefore time.Time) ([]types.EnqueuedJob, error)
	LockJobFunc                     func(ctx context.Context, jobID int64, lockedBy string, now, staleBefore time.Time) (bool, error)
	KeepAliveFunc                   func(ctx context.Context, jobID int64, lockedBy string, now time.Time) (bool, error)
	MarkSuccessFunc                 func(ctx context.Context, jobID int64, lockedBy string, finishedAt time.Time) error
	MarkFailureFunc                 func(ctx context.Context, jobID int64, lockedBy string, errMsg string, status state.JobStatus, retryAt, finishedAt time.Time) error
	RequeueFunc                     func(ctx context.Context, jobID int64, now time.Time) error
	RequeueTimedOutFunc             func(ctx context.Context, staleBefore time.Time) (int64, error)
	GetAllFunc                      func(ctx context.Context, page int, pageSize int, status state.JobStatus) (*types.PaginationResult[types.EnqueuedJob], error)
	CountAllJobsGroupedByStatusFunc func(ctx context.Context) (map[state.JobStatus]int, error)
	CloseFunc                       func() error
}

func (m *MockEnqueuedJobStore) Insert(ctx context.Context, queue, jobName string, scheduledAt time.Time, maxAttempts int, args ...any) (int64, error) {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, queue, jobName, scheduledAt, maxAttempts, args...)
	}
	return 0, nil
}

func (m *MockEnqueuedJobStore) BulkInsert(ctx context.Context, jobs []types.Job) error {
	if m.BulkInsertFunc != nil {
		return m.BulkInsertFunc(ctx, jobs)
	}
	return nil
}

func (m *MockEnqueuedJobStore) FindByID(ctx context.Context, jobID int64) (*types.EnqueuedJob, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, jobID)
	}
	return nil, nil
}

func (m *MockEnqueuedJobStore) RemoveByID(ctx context.Context, jobID int64) error {
	if m.RemoveByIDFunc != nil {
		return m.RemoveByIDFunc(ctx, jobID)
	}
	return nil
}

func (m *MockEnqueuedJobStore) FetchDueJobs(ctx context.Context, queues []string, limit int, now, staleBefore time.Time) ([]types.EnqueuedJob, error) {
	if m.FetchDueJobsFunc != nil {
		return m.FetchDueJobsFunc(ctx, queues, limit, now, staleBefore)
	}
	return nil, nil
}

func (m *MockEnqueuedJobStore) LockJob(ctx context.Context, jobID int64, lockedBy string, now, staleBefore time.Time) (bool, error) {
	if m.LockJobFunc != nil {
		return m.LockJobFunc(ctx, jobID, lockedBy, now, staleBefore)
	}
	return true, nil
}

func (m *MockEnqueuedJobStore) KeepAlive(ctx context.Context, jobID int64, lockedBy string, now time.Time) (bool, error) {
	if m.KeepAliveFunc != nil {
		return m.KeepAliveFunc(ctx, jobID, lockedBy, now)
	}
	return true, nil
}

func (m *MockEnqueuedJobStore) MarkSuccess(ctx context.Context, jobID int64, lockedBy string, finishedAt time.Time) error {
	if m.MarkSuccessFunc != nil {
		return m.MarkSuccessFunc(ctx, jobID, lockedBy, finishedAt)
	}
	return nil
}

func (m *MockEnqueuedJobStore) MarkFailure(ctx context.Context, jobID int64, lockedBy string, errMsg string, status state.JobStatus, retryAt, finishedAt time.Time) error {
	if m.MarkFailureFunc != nil {
		return m.MarkFailureFunc(ctx, jobID, lockedBy, errMsg, status, retryAt, finishedAt)
	}
	return nil
}

func (m *MockEnqueuedJobStore) Requeue(ctx context.Context, jobID int64, now time.Time) error {
	if m.RequeueFunc != nil {
		return m.RequeueFunc(ctx, jobID, now)
	}
	return nil
}

func (m *MockEnqueuedJobStore) RequeueTimedOut(ctx context.Context, staleBefore time.Time) (int64, error) {
	if m.RequeueTimedOutFunc != nil {
		return m.RequeueTimedOutFunc(ctx, staleBefore)
	}
	return 0, nil
}

func (m *MockEnqueuedJobStore) GetAll(ctx context.Context, page int, pageSize int, status state.JobStatus) (*types.PaginationResult[types.EnqueuedJob], error) {
	if m.GetAllFunc != nil {
		return m.GetAllFunc(ctx, page, pageSize, status)
	}
	return types.NewPaginationResult[types.EnqueuedJob](nil, 0, page, pageSize), nil
}

func (m *MockEnqueuedJobStore) CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobStatus]int, error) {
	if m.CountAllJobsGroupedByStatusFunc != nil {
		return m.CountAllJobsGroupedByStatusFunc(ctx)
	}
	return map[state.JobStatus]int{}, nil
}

func (m *MockEnqueuedJobStore) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
