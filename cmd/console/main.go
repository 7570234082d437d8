package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/RezaEskandarii/hostfire/app"
	"github.com/RezaEskandarii/hostfire/internal/appsettings"
	"github.com/RezaEskandarii/hostfire/internal/host"
	"github.com/RezaEskandarii/hostfire/jobs"
)

func main() {
	configPath := flag.String("config", appsettings.DefaultPath, "path to the settings file")
	flag.Parse()

	host.Exit(run(*configPath, os.Stdin, os.Stdout))
}

func run(configPath string, in io.Reader, out io.Writer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unhandled panic: %v", r)
		}
	}()
	fmt.Fprintln(out, "Hello World!")

	settings, err := appsettings.Load(configPath)
	if err != nil {
		return err
	}
	host.SetupLogging(os.Stderr, host.TextFormat, settings.LogLevel())

	cfg, err := settings.Config()
	if err != nil {
		return err
	}
	if err := cfg.RegisterHandlers(jobs.Handlers(out)); err != nil {
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

	ctx, cancel := host.CancelOnInput(ctx, in)
	defer cancel()

	return host.Run(ctx, host.DefaultShutdownTimeout,
		container.NewServer(),
		host.NewBlocking("console", func(ctx context.Context) error {
			fmt.Fprintln(out, "Hangfire Server started. Press any key to exit...")
			<-ctx.Done()
			return nil
		}),
	)
}
