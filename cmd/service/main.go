package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/RezaEskandarii/hostfire/app"
	"github.com/RezaEskandarii/hostfire/internal/appsettings"
	"github.com/RezaEskandarii/hostfire/internal/host"
	"github.com/RezaEskandarii/hostfire/jobs"
	"github.com/RezaEskandarii/hostfire/types/config"
)

const workerLogInterval = 10 * time.Second

func main() {
	configPath := flag.String("config", appsettings.DefaultPath, "path to the settings file")
	grpcPort := flag.Int("grpc-port", 50051, "port of the gRPC health endpoint")
	flag.Parse()

	host.Exit(run(*configPath, *grpcPort))
}

func run(configPath string, grpcPort int) (err error) {
	settings, err := appsettings.Load(configPath)
	if err != nil {
		return err
	}
	host.SetupLogging(os.Stdout, host.JSONFormat, settings.LogLevel())

	// automatic retries are switched off before storage is configured
	cfg, err := settings.Config(config.WithRetryAttempts(0))
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
	if err := jobs.AddRecurring(ctx, container.JobManager); err != nil {
		return err
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", grpcPort))
	if err != nil {
		return fmt.Errorf("listen for grpc health: %w", err)
	}

	return host.Run(ctx, host.DefaultShutdownTimeout,
		newWorker(container.NewServer(), workerLogInterval),
		newHealthService(lis),
	)
}
