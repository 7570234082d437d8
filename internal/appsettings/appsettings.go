// Package appsettings loads host settings from a YAML file and the
// environment, and turns them into engine configuration options.
package appsettings

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/RezaEskandarii/hostfire/types/config"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath = "appsettings.yaml"

	// ConnectionName is the connection string every host reads.
	ConnectionName = "HangfireConnection"
)

type Settings struct {
	ConnectionStrings map[string]string `yaml:"connection_strings"`
	Storage           StorageSettings   `yaml:"storage"`
	Server            ServerSettings    `yaml:"server"`
	Dashboard         DashboardSettings `yaml:"dashboard"`
	Redis             RedisSettings     `yaml:"redis"`
	Broker            BrokerSettings    `yaml:"broker"`
	Logging           LoggingSettings   `yaml:"logging"`
}

type StorageSettings struct {
	Driver                       string         `yaml:"driver"`
	CommandBatchMaxTimeout       time.Duration  `yaml:"command_batch_max_timeout"`
	SlidingInvisibilityTimeout   time.Duration  `yaml:"sliding_invisibility_timeout"`
	QueuePollInterval            *time.Duration `yaml:"queue_poll_interval"`
	UseRecommendedIsolationLevel bool           `yaml:"use_recommended_isolation_level"`
	DisableGlobalLocks           bool           `yaml:"disable_global_locks"`
}

type ServerSettings struct {
	Name          string   `yaml:"name"`
	WorkerCount   int      `yaml:"worker_count"`
	Queues        []string `yaml:"queues"`
	RetryAttempts *int     `yaml:"retry_attempts"`
}

type DashboardSettings struct {
	Port      uint   `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	SecretKey string `yaml:"secret_key"`
}

type RedisSettings struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// BrokerSettings enable the queue writer when Driver is set.
type BrokerSettings struct {
	Driver   string `yaml:"driver"` // rabbitmq | nats
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
	Queue    string `yaml:"queue"`
	Subject  string `yaml:"subject"`
}

type LoggingSettings struct {
	Level string `yaml:"level"`
}

// Load reads path and applies environment overrides. A missing file is not
// an error; a missing connection string is.
func Load(path string) (*Settings, error) {
	s := &Settings{
		ConnectionStrings: map[string]string{},
		Storage:           StorageSettings{Driver: config.DefaultStorageDriver.String()},
		Logging:           LoggingSettings{Level: "info"},
	}

	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(content, s); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if s.ConnectionStrings == nil {
			s.ConnectionStrings = map[string]string{}
		}
	case errors.Is(err, fs.ErrNotExist):
		slog.Debug("settings file not found, using environment only", "path", path)
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := s.applyEnv(); err != nil {
		return nil, err
	}
	if s.ConnectionString() == "" {
		return nil, fmt.Errorf("connection string %q is not configured", ConnectionName)
	}
	return s, nil
}

func (s *Settings) applyEnv() error {
	if v, ok := os.LookupEnv("ConnectionStrings__" + ConnectionName); ok {
		s.ConnectionStrings[ConnectionName] = v
	}
	if v, ok := os.LookupEnv("HOSTFIRE_CONNECTION"); ok {
		s.ConnectionStrings[ConnectionName] = v
	}
	if v, ok := os.LookupEnv("HOSTFIRE_DRIVER"); ok {
		s.Storage.Driver = v
	}
	if v, ok := os.LookupEnv("HOSTFIRE_WORKER_COUNT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HOSTFIRE_WORKER_COUNT: %w", err)
		}
		s.Server.WorkerCount = n
	}
	if v, ok := os.LookupEnv("HOSTFIRE_DASHBOARD_PORT"); ok {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return fmt.Errorf("HOSTFIRE_DASHBOARD_PORT: %w", err)
		}
		s.Dashboard.Port = uint(n)
	}
	if v, ok := os.LookupEnv("HOSTFIRE_LOG_LEVEL"); ok {
		s.Logging.Level = v
	}
	return nil
}

func (s *Settings) ConnectionString() string {
	return strings.TrimSpace(s.ConnectionStrings[ConnectionName])
}

// LogLevel maps logging.level to a slog level; unknown values mean info.
func (s *Settings) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.Logging.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Options translates the settings into engine configuration options.
// Settings left empty keep the engine defaults.
func (s *Settings) Options() ([]config.ContainerOption, error) {
	driver, err := config.ParseStorageDriver(s.Storage.Driver)
	if err != nil {
		return nil, err
	}

	var opts []config.ContainerOption
	switch driver {
	case config.Postgres:
		opts = append(opts, config.WithPostgresConfig(config.PostgresConfig{ConnectionUrl: s.ConnectionString()}))
	case config.SQLServer:
		opts = append(opts, config.WithSQLServerConfig(config.SQLServerConfig{ConnectionUrl: s.ConnectionString()}))
	}

	st := s.Storage
	if st.CommandBatchMaxTimeout > 0 {
		opts = append(opts, config.WithCommandBatchMaxTimeout(st.CommandBatchMaxTimeout))
	}
	if st.SlidingInvisibilityTimeout > 0 {
		opts = append(opts, config.WithSlidingInvisibilityTimeout(st.SlidingInvisibilityTimeout))
	}
	if st.QueuePollInterval != nil {
		opts = append(opts, config.WithQueuePollInterval(*st.QueuePollInterval))
	}
	if st.UseRecommendedIsolationLevel {
		opts = append(opts, config.WithRecommendedIsolationLevel())
	}
	if st.DisableGlobalLocks {
		opts = append(opts, config.WithDisableGlobalLocks())
	}

	if s.Server.WorkerCount > 0 {
		opts = append(opts, config.WithWorkerCount(s.Server.WorkerCount))
	}
	if len(s.Server.Queues) > 0 {
		opts = append(opts, config.WithQueues(s.Server.Queues...))
	}
	if s.Server.RetryAttempts != nil {
		opts = append(opts, config.WithRetryAttempts(*s.Server.RetryAttempts))
	}

	// credentials always enable auth, on the default port when none is set
	switch d := s.Dashboard; {
	case d.Username != "":
		port := d.Port
		if port == 0 {
			port = config.DefaultDashboardPort
		}
		opts = append(opts, config.WithAdminDashboardConfig(d.Username, d.Password, d.SecretKey, port))
	case d.Port > 0:
		opts = append(opts, config.WithDashboardPort(d.Port))
	}

	if s.Redis.Address != "" {
		opts = append(opts, config.WithRedisLock(config.RedisConfig{
			Address:  s.Redis.Address,
			Password: s.Redis.Password,
			DB:       s.Redis.DB,
		}))
	}

	switch strings.ToLower(s.Broker.Driver) {
	case "":
	case "rabbitmq":
		opts = append(opts, config.WithRabbitMQConfig(config.RabbitMQConfig{
			URL:      s.Broker.URL,
			Exchange: s.Broker.Exchange,
			Queue:    s.Broker.Queue,
		}))
	case "nats":
		opts = append(opts, config.WithNATSConfig(config.NATSConfig{URL: s.Broker.URL, Subject: s.Broker.Subject}))
	default:
		return nil, fmt.Errorf("unknown broker driver %q", s.Broker.Driver)
	}

	return opts, nil
}

// Config builds the engine configuration. extra options are applied after
// the ones from the settings and win over them.
func (s *Settings) Config(extra ...config.ContainerOption) (*config.HostfireConfig, error) {
	opts, err := s.Options()
	if err != nil {
		return nil, err
	}
	return config.NewHostfireConfig(s.Server.Name, append(opts, extra...)...)
}
