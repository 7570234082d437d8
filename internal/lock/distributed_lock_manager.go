package lock

import "context"

// DistributedLockManager serializes work across servers sharing one storage.
// Acquire blocks until the lock is held or ctx is done.
type DistributedLockManager interface {
	Acquire(ctx context.Context, lockID int) error
	Release(ctx context.Context, lockID int) error
}
