package config

import (
	"fmt"
	"strings"

	"github.com/RezaEskandarii/hostfire/custom_errors"
)

type StorageDriver int

const (
	Postgres StorageDriver = iota + 1
	SQLServer
)

// String converts the StorageDriver enum to a human-readable string.
func (d StorageDriver) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLServer:
		return "sqlserver"
	}
	return "unknown"
}

// ParseStorageDriver accepts the names used in configuration files.
func ParseStorageDriver(s string) (StorageDriver, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "sqlserver", "mssql":
		return SQLServer, nil
	}
	return 0, fmt.Errorf("%w: storage %q", custom_errors.ErrUnsupportedDriver, s)
}

type LockDriver int

const (
	// StorageLock takes distributed locks in the job storage database.
	StorageLock LockDriver = iota
	RedisLock
)

func (d LockDriver) String() string {
	switch d {
	case StorageLock:
		return "storage"
	case RedisLock:
		return "redis"
	}
	return "unknown"
}

type MessageQueueDriver int

const (
	RabbitMQ MessageQueueDriver = iota + 1
	NATS
)

func (d MessageQueueDriver) String() string {
	switch d {
	case RabbitMQ:
		return "rabbitmq"
	case NATS:
		return "nats"
	default:
		return "unknown"
	}
}
