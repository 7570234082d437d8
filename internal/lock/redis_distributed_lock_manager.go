package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisRetryInterval = 50 * time.Millisecond

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisDistributedLockManager holds locks as expiring keys so a crashed
// owner cannot block other servers for longer than ttl.
type RedisDistributedLockManager struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.Mutex
	tokens map[int]string
}

func NewRedisDistributedLockManager(client *redis.Client, ttl time.Duration) *RedisDistributedLockManager {
	return &RedisDistributedLockManager{
		client: client,
		ttl:    ttl,
		tokens: make(map[int]string),
	}
}

func redisKey(lockID int) string {
	return fmt.Sprintf("hostfire:lock:%d", lockID)
}

func (l *RedisDistributedLockManager) Acquire(ctx context.Context, lockID int) error {
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, redisKey(lockID), token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("failed to acquire lock: %w", err)
		}
		if ok {
			l.mu.Lock()
			l.tokens[lockID] = token
			l.mu.Unlock()
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to acquire lock: %w", ctx.Err())
		case <-time.After(redisRetryInterval):
		}
	}
}

func (l *RedisDistributedLockManager) Release(ctx context.Context, lockID int) error {
	l.mu.Lock()
	token, ok := l.tokens[lockID]
	delete(l.tokens, lockID)
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("failed to release lock: lock %d is not held", lockID)
	}

	deleted, err := releaseScript.Run(ctx, l.client, []string{redisKey(lockID)}, token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if deleted == 0 {
		return errors.New("failed to release lock: lock expired before release")
	}
	return nil
}
