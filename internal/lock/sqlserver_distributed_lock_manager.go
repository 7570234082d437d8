package lock

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLServerDistributedLockManager uses session-owned application locks.
type SQLServerDistributedLockManager struct {
	sessions *sessionLocks
}

func NewSQLServerDistributedLockManager(db *sql.DB) *SQLServerDistributedLockManager {
	return &SQLServerDistributedLockManager{
		sessions: newSessionLocks(db),
	}
}

func resourceName(lockID int) string {
	return fmt.Sprintf("hostfire:lock:%d", lockID)
}

func (l *SQLServerDistributedLockManager) Acquire(ctx context.Context, lockID int) error {
	// sp_getapplock takes its own timeout; -1 waits forever and leaves
	// cancellation to ctx.
	timeoutMs := int64(-1)
	if deadline, ok := ctx.Deadline(); ok {
		timeoutMs = max(0, time.Until(deadline).Milliseconds())
	}

	return l.sessions.acquire(ctx, lockID, func(ctx context.Context, conn *sql.Conn) error {
		var result int
		err := conn.QueryRowContext(ctx, `
			DECLARE @result INT;
			EXEC @result = sp_getapplock @Resource = @p1, @LockMode = 'Exclusive', @LockOwner = 'Session', @LockTimeout = @p2;
			SELECT @result;
		`, resourceName(lockID), timeoutMs).Scan(&result)
		if err != nil {
			return err
		}
		if result < 0 {
			return fmt.Errorf("sp_getapplock returned %d", result)
		}
		return nil
	})
}

func (l *SQLServerDistributedLockManager) Release(ctx context.Context, lockID int) error {
	return l.sessions.release(ctx, lockID, func(ctx context.Context, conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx,
			"EXEC sp_releaseapplock @Resource = @p1, @LockOwner = 'Session'",
			resourceName(lockID))
		return err
	})
}
