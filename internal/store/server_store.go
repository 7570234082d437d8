package store

import (
	"context"
	"time"

	"github.com/RezaEskandarii/hostfire/types"
)

// ServerStore tracks running background job servers.
type ServerStore interface {
	Announce(ctx context.Context, server types.Server) error
	Heartbeat(ctx context.Context, serverID string, now time.Time) error
	Remove(ctx context.Context, serverID string) error
	// RemoveTimedOut deletes servers whose last heartbeat is older than before.
	RemoveTimedOut(ctx context.Context, before time.Time) (int64, error)
	List(ctx context.Context) ([]types.Server, error)
}
