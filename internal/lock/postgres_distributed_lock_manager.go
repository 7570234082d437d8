package lock

import (
	"context"
	"database/sql"
)

// PostgresDistributedLockManager uses session-level advisory locks.
type PostgresDistributedLockManager struct {
	sessions *sessionLocks
}

func NewPostgresDistributedLockManager(db *sql.DB) *PostgresDistributedLockManager {
	return &PostgresDistributedLockManager{
		sessions: newSessionLocks(db),
	}
}

func (l *PostgresDistributedLockManager) Acquire(ctx context.Context, lockID int) error {
	return l.sessions.acquire(ctx, lockID, func(ctx context.Context, conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", lockID)
		return err
	})
}

func (l *PostgresDistributedLockManager) Release(ctx context.Context, lockID int) error {
	return l.sessions.release(ctx, lockID, func(ctx context.Context, conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", lockID)
		return err
	})
}
