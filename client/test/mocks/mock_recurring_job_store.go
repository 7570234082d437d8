package mocks

import (
	"context"
	"time"

	"github.com/RezaEskandarii/hostfire/types"
)

// MockRecurringJobStore is a mock implementation of store.RecurringJobStore for testing.
type MockRecurringJobStore struct {
	AddOrUpdateFunc func(ctx context.Context, job types.RecurringJob) error
	FindFunc        func(ctx context.Context, id string) (*types.RecurringJob, error)
	RemoveFunc      func(ctx context.Context, id string) error
	FetchDueFunc    func(ctx context.Context, now time.Time, limit int) ([]types.RecurringJob, error)
	TryTriggerFunc  func(ctx context.Context, job types.RecurringJob, now, nextRunAt time.Time, maxAttempts int) (int64, bool, error)
	MarkErrorFunc   func(ctx context.Context, id string, errMsg string) error
	GetAllFunc      func(ctx context.Context, page int, pageSize int) (*types.PaginationResult[types.RecurringJob], error)
	CountFunc       func(ctx context.Context) (int, error)
	ActivateFunc    func(ctx context.Context, id string, nextRunAt time.Time) error
	DeActivateFunc  func(ctx context.Context, id string) error
	CloseFunc       func() error
}

func (m *MockRecurringJobStore) AddOrUpdate(ctx context.Context, job types.RecurringJob) error {
	if m.AddOrUpdateFunc != nil {
		return m.AddOrUpdateFunc(ctx, job)
	}
	return nil
}

func (m *MockRecurringJobStore) Find(ctx context.Context, id string) (*types.RecurringJob, error) {
	if m.FindFunc != nil {
		return m.FindFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockRecurringJobStore) Remove(ctx context.Context, id string) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, id)
	}
	return nil
}

func (m *MockRecurringJobStore) FetchDue(ctx context.Context, now time.Time, limit int) ([]types.RecurringJob, error) {
	if m.FetchDueFunc != nil {
		return m.FetchDueFunc(ctx, now, limit)
	}
	return nil, nil
}

func (m *MockRecurringJobStore) TryTrigger(ctx context.Context, job types.RecurringJob, now, nextRunAt time.Time, maxAttempts int) (int64, bool, error) {
	if m.TryTriggerFunc != nil {
		return m.TryTriggerFunc(ctx, job, now, nextRunAt, maxAttempts)
	}
	return 0, false, nil
}

func (m *MockRecurringJobStore) MarkError(ctx context.Context, id string, errMsg string) error {
	if m.MarkErrorFunc != nil {
		return m.MarkErrorFunc(ctx, id, errMsg)
	}
	return nil
}

func (m *MockRecurringJobStore) GetAll(ctx context.Context, page int, pageSize int) (*types.PaginationResult[types.RecurringJob], error) {
	if m.GetAllFunc != nil {
		return m.GetAllFunc(ctx, page, pageSize)
	}
	return types.NewPaginationResult[types.RecurringJob](nil, 0, page, pageSize), nil
}

func (m *MockRecurringJobStore) Count(ctx context.Context) (int, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx)
	}
	return 0, nil
}

func (m *MockRecurringJobStore) Activate(ctx context.Context, id string, nextRunAt time.Time) error {
	if m.ActivateFunc != nil {
		return m.ActivateFunc(ctx, id, nextRunAt)
	}
	return nil
}

func (m *MockRecurringJobStore) DeActivate(ctx context.Context, id string) error {
	if m.DeActivateFunc != nil {
		return m.DeActivateFunc(ctx, id)
	}
	return nil
}

func (m *MockRecurringJobStore) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
