package config

import (
	"runtime"
	"time"
)

const (
	DefaultStorageDriver              = SQLServer
	DefaultBatchSize                  = 100
	DefaultRetryAttempts              = 10
	DefaultQueuePollInterval          = 15 * time.Second
	DefaultSchedulePollInterval       = time.Second
	DefaultSlidingInvisibilityTimeout = 5 * time.Minute
	DefaultCommandBatchMaxTimeout     = 5 * time.Minute
	DefaultHeartbeatInterval          = 30 * time.Second
	DefaultServerTimeout              = 5 * time.Minute
	DefaultLockTTL                    = time.Minute
	DefaultDashboardPort              = 5000
)

// DefaultWorkerCount is five workers per processor, capped at twenty.
func DefaultWorkerCount() int {
	return min(20, 5*runtime.GOMAXPROCS(0))
}
