package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/RezaEskandarii/hostfire/client"
	"github.com/RezaEskandarii/hostfire/internal/db"
	"github.com/RezaEskandarii/hostfire/internal/lock"
	"github.com/RezaEskandarii/hostfire/internal/message_broaker"
	"github.com/RezaEskandarii/hostfire/internal/retry"
	"github.com/RezaEskandarii/hostfire/internal/store"
	"github.com/RezaEskandarii/hostfire/internal/store/postgres"
	"github.com/RezaEskandarii/hostfire/internal/store/sqlserver"
	"github.com/RezaEskandarii/hostfire/types/config"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	"github.com/redis/go-redis/v9"
)

// Container holds all application dependencies. It is the single source of truth
// for dependency injection and ensures connections and services are created once.
type Container struct {
	Config *config.HostfireConfig

	// Storage connections (created once, shared by all stores)
	DB    *sql.DB
	Redis *redis.Client

	EnqueuedJobStore  store.EnqueuedJobStore
	RecurringJobStore store.RecurringJobStore
	ServerStore       store.ServerStore
	UserStore         store.UserStore

	LockManager   lock.DistributedLockManager
	MessageBroker message_broaker.MessageBroker

	JobHandler *config.JobHandler
	JobManager *client.JobManager
}

// NewContainer creates and wires all dependencies. Single entry point for DI.
// Call this once per application lifecycle.
// Pass optional WithDB, WithRedis, WithMessageBroker to inject connections for testing.
func NewContainer(ctx context.Context, cfg *config.HostfireConfig, opts ...ContainerOption) (*Container, error) {
	opt := &containerConfig{}
	for _, o := range opts {
		o(opt)
	}

	if opt.db == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	jobHandler := config.NewJobHandler()
	for _, h := range cfg.Handlers {
		if err := jobHandler.Register(h.JobName, h.Func); err != nil {
			return nil, err
		}
	}

	c := &Container{
		Config:     cfg,
		DB:         opt.db,
		Redis:      opt.redis,
		JobHandler: jobHandler,
	}

	var err error
	if c.DB == nil {
		if c.DB, err = openDB(ctx, cfg); err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
	}
	if cfg.LockDriver == config.RedisLock && c.Redis == nil {
		c.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
	}

	storeOpts := store.Options{
		CommandTimeout:               cfg.StorageOptions.CommandBatchMaxTimeout,
		UseRecommendedIsolationLevel: cfg.StorageOptions.UseRecommendedIsolationLevel,
	}
	if err := c.createStores(storeOpts); err != nil {
		_ = c.Close()
		return nil, err
	}
	c.LockManager = c.createDistributedLockManager()

	if cfg.UseQueueWriter {
		c.MessageBroker = opt.broker
		if c.MessageBroker == nil {
			if c.MessageBroker, err = createMessageBroker(cfg); err != nil {
				_ = c.Close()
				return nil, err
			}
		}
	}

	c.JobManager = client.NewJobManager(
		c.EnqueuedJobStore,
		c.RecurringJobStore,
		jobHandler,
		c.MessageBroker,
		cfg.UseQueueWriter,
		cfg.RetryAttempts,
	)

	slog.Debug("container ready",
		"storage", cfg.StorageDriver.String(),
		"lock", cfg.LockDriver.String(),
		"queue_writer", cfg.UseQueueWriter)
	return c, nil
}

func openDB(ctx context.Context, cfg *config.HostfireConfig) (*sql.DB, error) {
	var driverName string
	switch cfg.StorageDriver {
	case config.Postgres:
		driverName = "postgres"
	case config.SQLServer:
		driverName = "sqlserver"
	default:
		return nil, fmt.Errorf("unsupported storage driver: %v", cfg.StorageDriver)
	}

	conn, err := sql.Open(driverName, cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	// workers, keep-alives and session locks each hold a connection
	conn.SetMaxOpenConns(cfg.WorkerCount*2 + 8)
	conn.SetMaxIdleConns(cfg.WorkerCount + 2)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.StorageOptions.CommandBatchMaxTimeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("connect %s: %w", driverName, err)
	}
	return conn, nil
}

func (c *Container) createStores(opts store.Options) error {
	switch c.Config.StorageDriver {
	case config.Postgres:
		c.EnqueuedJobStore = postgres.NewPostgresEnqueuedJobStore(c.DB, opts)
		c.RecurringJobStore = postgres.NewPostgresRecurringJobStore(c.DB, opts)
		c.ServerStore = postgres.NewPostgresServerStore(c.DB, opts)
		c.UserStore = postgres.NewPostgresUserStore(c.DB, opts)
	case config.SQLServer:
		c.EnqueuedJobStore = sqlserver.NewSQLServerEnqueuedJobStore(c.DB, opts)
		c.RecurringJobStore = sqlserver.NewSQLServerRecurringJobStore(c.DB, opts)
		c.ServerStore = sqlserver.NewSQLServerServerStore(c.DB, opts)
		c.UserStore = sqlserver.NewSQLServerUserStore(c.DB, opts)
	default:
		return fmt.Errorf("unsupported storage driver: %v", c.Config.StorageDriver)
	}
	return nil
}

func (c *Container) createDistributedLockManager() lock.DistributedLockManager {
	if c.Config.LockDriver == config.RedisLock {
		return lock.NewRedisDistributedLockManager(c.Redis, c.Config.RedisConfig.LockTTL)
	}
	if c.Config.StorageDriver == config.Postgres {
		return lock.NewPostgresDistributedLockManager(c.DB)
	}
	return lock.NewSQLServerDistributedLockManager(c.DB)
}

func createMessageBroker(cfg *config.HostfireConfig) (message_broaker.MessageBroker, error) {
	switch cfg.MQDriver {
	case config.RabbitMQ:
		broker, err := message_broaker.NewRabbitMQ(*cfg.RabbitMQConfig)
		if err != nil {
			return nil, fmt.Errorf("init rabbitmq: %w", err)
		}
		return broker, nil
	case config.NATS:
		broker, err := message_broaker.NewNATS(*cfg.NATSConfig)
		if err != nil {
			return nil, fmt.Errorf("init nats: %w", err)
		}
		return broker, nil
	}
	return nil, fmt.Errorf("unsupported message queue driver: %v", cfg.MQDriver)
}

// Migrate installs or upgrades the storage schema.
func (c *Container) Migrate(ctx context.Context) error {
	return db.Migrate(ctx, c.DB, c.Config.StorageDriver, c.LockManager)
}

// CreateDashboardAdmin stores the configured dashboard user when
// authentication is enabled. Re-running it updates the password.
func (c *Container) CreateDashboardAdmin(ctx context.Context) error {
	if !c.Config.DashboardAuthEnabled {
		return nil
	}
	if _, err := c.UserStore.Create(ctx, c.Config.DashboardUserName, c.Config.DashboardPassword); err != nil {
		return fmt.Errorf("create dashboard user: %w", err)
	}
	return nil
}

// NewServer builds the background job server processing this container's storage.
func (c *Container) NewServer() *client.BackgroundJobServer {
	cfg := c.Config
	useGlobalLocks := !cfg.StorageOptions.DisableGlobalLocks
	maxAttempts := retry.MaxAttempts(cfg.RetryAttempts)

	servers := client.NewServerManager(
		c.ServerStore,
		c.LockManager,
		cfg.Instance,
		cfg.Queues,
		cfg.WorkerCount,
		cfg.HeartbeatInterval,
		cfg.ServerTimeout,
		useGlobalLocks,
	)

	workers := client.NewEnqueueJobsManager(
		c.EnqueuedJobStore,
		c.LockManager,
		c.JobHandler,
		c.MessageBroker,
		servers.ID(),
		client.WorkerOptions{
			Queues:              cfg.Queues,
			WorkerCount:         cfg.WorkerCount,
			BatchSize:           cfg.BatchSize,
			QueuePollInterval:   cfg.StorageOptions.QueuePollInterval,
			InvisibilityTimeout: cfg.StorageOptions.SlidingInvisibilityTimeout,
			MaxAttempts:         maxAttempts,
			DisableGlobalLocks:  cfg.StorageOptions.DisableGlobalLocks,
		},
	)

	recurring := client.NewRecurringJobManager(
		c.RecurringJobStore,
		c.LockManager,
		cfg.SchedulePollInterval,
		cfg.BatchSize,
		maxAttempts,
		useGlobalLocks,
	)

	return client.NewBackgroundJobServer(servers, workers, recurring, cfg.UseQueueWriter)
}

// Close releases the broker, Redis and database connections.
func (c *Container) Close() error {
	var errs []error
	if c.MessageBroker != nil {
		errs = append(errs, c.MessageBroker.Close())
	}
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	return errors.Join(errs...)
}
