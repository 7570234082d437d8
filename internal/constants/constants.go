package constants

import "time"

// Distributed lock identifiers. They are offset so they do not collide with
// advisory locks taken by other applications sharing the database.
const (
	MigrationLock = 0x4846_0000 + iota
	RecurringLock
	RequeueLock
	ServerWatchdogLock
)

var Locks = []int{
	MigrationLock,
	RecurringLock,
	RequeueLock,
	ServerWatchdogLock,
}

const (
	Schema       = "hostfire"
	DefaultQueue = "default"

	// MinQueuePollInterval is the idle delay used when the queue poll
	// interval is configured as zero.
	MinQueuePollInterval = 100 * time.Millisecond

	// QueueSyncBatchSize and QueueSyncFlushInterval bound the queue writer's
	// buffered inserts.
	QueueSyncBatchSize     = 1000
	QueueSyncFlushInterval = 20 * time.Second
)
