package lock

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// sessionLocks pins the connection that took a session-scoped database lock,
// so the release runs on the same session as the acquire.
type sessionLocks struct {
	db    *sql.DB
	mu    sync.Mutex
	conns map[int]*sql.Conn
}

func newSessionLocks(db *sql.DB) *sessionLocks {
	return &sessionLocks{db: db, conns: make(map[int]*sql.Conn)}
}

func (s *sessionLocks) acquire(ctx context.Context, lockID int, take func(ctx context.Context, conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if err := take(ctx, conn); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	s.mu.Lock()
	s.conns[lockID] = conn
	s.mu.Unlock()
	return nil
}

func (s *sessionLocks) release(ctx context.Context, lockID int, give func(ctx context.Context, conn *sql.Conn) error) error {
	s.mu.Lock()
	conn, ok := s.conns[lockID]
	delete(s.conns, lockID)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("failed to release lock: lock %d is not held", lockID)
	}
	defer conn.Close()

	if err := give(ctx, conn); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
