package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/RezaEskandarii/hostfire/app"
	"github.com/RezaEskandarii/hostfire/internal/appsettings"
	"github.com/RezaEskandarii/hostfire/internal/host"
	"github.com/RezaEskandarii/hostfire/jobs"
	"github.com/RezaEskandarii/hostfire/types/config"
	"github.com/RezaEskandarii/hostfire/web"
)

func main() {
	configPath := flag.String("config", appsettings.DefaultPath, "path to the settings file")
	withServer := flag.Bool("with-server", false, "also process jobs in this process")
	flag.Parse()

	host.Exit(run(*configPath, *withServer))
}

// storageOptions are the storage policies of the web host.
func storageOptions() []config.ContainerOption {
	return []config.ContainerOption{
		config.WithCommandBatchMaxTimeout(5 * time.Minute),
		config.WithSlidingInvisibilityTimeout(5 * time.Minute),
		config.WithQueuePollInterval(0),
		config.WithRecommendedIsolationLevel(),
		config.WithDisableGlobalLocks(),
	}
}

func run(configPath string, withServer bool) (err error) {
	settings, err := appsettings.Load(configPath)
	if err != nil {
		return err
	}
	host.SetupLogging(os.Stdout, host.JSONFormat, settings.LogLevel())

	cfg, err := settings.Config(storageOptions()...)
	if err != nil {
		return err
	}
	if err := jobs.Register(cfg); err != nil {
		return err
	}

	ctx, stop := host.SignalContext(context.Background())
	defer stop()

	container, err := app.NewContainer(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, container.Close()) }()

	if err := container.Migrate(ctx); err != nil {
		return err
	}
	if err := container.CreateDashboardAdmin(ctx); err != nil {
		return err
	}
	if err := jobs.ScheduleDefaults(ctx, container.JobManager); err != nil {
		return err
	}

	return host.Run(ctx, host.DefaultShutdownTimeout, services(container, withServer)...)
}

// services lists what the web host runs. Job processing lives in the
// service host unless withServer is set.
func services(container *app.Container, withServer bool) []host.BackgroundService {
	cfg := container.Config
	port := cfg.DashboardPort
	if port == 0 {
		port = config.DefaultDashboardPort
	}
	handler := web.NewRouteHandler(container.JobManager, container.ServerStore, container.UserStore, cfg.SecretKey, cfg.DashboardAuthEnabled)

	var list []host.BackgroundService
	if withServer {
		list = append(list, container.NewServer())
	}
	return append(list, host.NewBlocking("http", func(ctx context.Context) error {
		return handler.Serve(ctx, port)
	}))
}
