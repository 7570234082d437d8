package app

import (
	"database/sql"

	"github.com/RezaEskandarii/hostfire/internal/message_broaker"
	"github.com/redis/go-redis/v9"
)

// ContainerOption configures Container creation. Used for testing and customization.
type ContainerOption func(*containerConfig)

type containerConfig struct {
	// Optional: inject connections instead of creating them from config
	db     *sql.DB
	redis  *redis.Client
	broker message_broaker.MessageBroker
}

// WithDB injects a custom database connection. Useful for testing.
func WithDB(db *sql.DB) ContainerOption {
	return func(c *containerConfig) {
		c.db = db
	}
}

// WithRedis injects a custom Redis client. Useful for testing.
func WithRedis(redis *redis.Client) ContainerOption {
	return func(c *containerConfig) {
		c.redis = redis
	}
}

// WithMessageBroker injects the queue writer broker instead of dialing the configured one.
func WithMessageBroker(broker message_broaker.MessageBroker) ContainerOption {
	return func(c *containerConfig) {
		c.broker = broker
	}
}
