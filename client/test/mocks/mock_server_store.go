package mocks

import (
	"context"
	"time"

	"github.com/RezaEskandarii/hostfire/types"
)

// MockServerStore is a mock implementation of store.ServerStore for testing.
type MockServerStore struct {
	AnnounceFunc       func(ctx context.Context, server types.Server) error
	HeartbeatFunc      func(ctx context.Context, serverID string, now time.Time) error
	RemoveFunc         func(ctx context.Context, serverID string) error
	RemoveTimedOutFunc func(ctx context.Context, before time.Time) (int64, error)
	ListFunc           func(ctx context.Context) ([]types.Server, error)
}

func (m *MockServerStore) Announce(ctx context.Context, server types.Server) error {
	if m.AnnounceFunc != nil {
		return m.AnnounceFunc(ctx, server)
	}
	return nil
}

func (m *MockServerStore) Heartbeat(ctx context.Context, serverID string, now time.Time) error {
	if m.HeartbeatFunc != nil {
		return m.HeartbeatFunc(ctx, serverID, now)
	}
	return nil
}

func (m *MockServerStore) Remove(ctx context.Context, serverID string) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, serverID)
	}
	return nil
}

func (m *MockServerStore) RemoveTimedOut(ctx context.Context, before time.Time) (int64, error) {
	if m.RemoveTimedOutFunc != nil {
		return m.RemoveTimedOutFunc(ctx, before)
	}
	return 0, nil
}

func (m *MockServerStore) List(ctx context.Context) ([]types.Server, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return nil, nil
}
