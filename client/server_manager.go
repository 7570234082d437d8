package client

import (
	"context"
	"log/slog"
	"time"

	"github.com/RezaEskandarii/hostfire/internal/constants"
	"github.com/RezaEskandarii/hostfire/internal/lock"
	"github.com/RezaEskandarii/hostfire/internal/store"
	"github.com/RezaEskandarii/hostfire/types"
	"github.com/RezaEskandarii/hostfire/types/config"
	"github.com/google/uuid"
)

// ServerManager keeps this server listed in storage and prunes servers that
// stopped sending heartbeats.
type ServerManager struct {
	store             store.ServerStore
	lock              lock.DistributedLockManager
	server            types.Server
	heartbeatInterval time.Duration
	serverTimeout     time.Duration
	useGlobalLock     bool
}

func NewServerManager(serverStore store.ServerStore, lock lock.DistributedLockManager, name string, queues []string, workerCount int, heartbeatInterval, serverTimeout time.Duration, useGlobalLock bool) *ServerManager {
	if heartbeatInterval <= 0 {
		heartbeatInterval = config.DefaultHeartbeatInterval
	}
	if serverTimeout <= 0 {
		serverTimeout = config.DefaultServerTimeout
	}
	return &ServerManager{
		store: serverStore,
		lock:  lock,
		server: types.Server{
			ID:          name + ":" + uuid.NewString(),
			Name:        name,
			Queues:      queues,
			WorkerCount: workerCount,
		},
		heartbeatInterval: heartbeatInterval,
		serverTimeout:     serverTimeout,
		useGlobalLock:     useGlobalLock,
	}
}

// ID identifies this server as the owner of the jobs it locks.
func (sm *ServerManager) ID() string {
	return sm.server.ID
}

// Start announces the server and heartbeats until ctx is cancelled, then
// removes the server from the list.
func (sm *ServerManager) Start(ctx context.Context) error {
	now := time.Now().UTC()
	sm.server.StartedAt = now
	sm.server.Heartbeat = now
	if err := sm.store.Announce(ctx, sm.server); err != nil {
		return err
	}
	slog.Info("server announced", "server", sm.server.ID, "queues", sm.server.Queues, "workers", sm.server.WorkerCount)

	ticker := time.NewTicker(sm.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := sm.store.Remove(context.WithoutCancel(ctx), sm.server.ID); err != nil {
				slog.Warn("failed to remove server", "server", sm.server.ID, "error", err)
			}
			slog.Info("server stopped", "server", sm.server.ID)
			return nil
		case <-ticker.C:
			if err := sm.store.Heartbeat(ctx, sm.server.ID, time.Now()); err != nil {
				slog.Warn("heartbeat failed", "server", sm.server.ID, "error", err)
			}
			if err := sm.removeTimedOutServers(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("server watchdog failed", "error", err)
			}
		}
	}
}

func (sm *ServerManager) removeTimedOutServers(ctx context.Context) (err error) {
	if sm.useGlobalLock {
		if err := sm.lock.Acquire(ctx, constants.ServerWatchdogLock); err != nil {
			return err
		}
		defer func() {
			if releaseErr := sm.lock.Release(context.WithoutCancel(ctx), constants.ServerWatchdogLock); releaseErr != nil && err == nil {
				err = releaseErr
			}
		}()
	}

	n, err := sm.store.RemoveTimedOut(ctx, time.Now().Add(-sm.serverTimeout))
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("removed timed out servers", "count", n)
	}
	return nil
}
