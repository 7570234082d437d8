// Package jobs holds the sample job handlers every host registers and the
// default jobs they schedule at start-up.
package jobs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/RezaEskandarii/hostfire/client"
	"github.com/RezaEskandarii/hostfire/types/config"
)

const (
	LogThisJob   = "CustomHelloWorld.LogThis"
	WriteLineJob = "Console.WriteLine"

	// EveryFifteenSeconds fires at seconds 0, 15, 30 and 45 of every minute.
	EveryFifteenSeconds = "0/15 * * * * *"
)

// CustomHelloWorld logs the message it is given.
type CustomHelloWorld struct {
	Logger *slog.Logger
}

func (c CustomHelloWorld) LogThis(ctx context.Context, args ...any) error {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, message(args))
	return nil
}

// WriteLine returns a handler that prints its arguments as one line to out.
func WriteLine(out io.Writer) config.HandlerFunc {
	return func(ctx context.Context, args ...any) error {
		_, err := fmt.Fprintln(out, message(args))
		return err
	}
}

func message(args []any) string {
	switch len(args) {
	case 0:
		return ""
	case 1:
		return fmt.Sprint(args[0])
	}
	return fmt.Sprint(args...)
}

// Handlers lists the sample handlers. WriteLine output goes to out.
func Handlers(out io.Writer) []config.MethodHandler {
	return []config.MethodHandler{
		{JobName: LogThisJob, Func: CustomHelloWorld{}.LogThis},
		{JobName: WriteLineJob, Func: WriteLine(out)},
	}
}

// Register adds the sample handlers to cfg, printing to stdout.
func Register(cfg *config.HostfireConfig) error {
	return cfg.RegisterHandlers(Handlers(os.Stdout))
}

// ScheduleDefaults enqueues the hello world job and registers the
// recurring jobs.
func ScheduleDefaults(ctx context.Context, jm *client.JobManager) error {
	if _, err := jm.Enqueue(ctx, WriteLineJob, "Hello world from Hangfire!"); err != nil {
		return fmt.Errorf("enqueue hello world: %w", err)
	}
	return AddRecurring(ctx, jm)
}

// AddRecurring registers the two recurring jobs that run every fifteen
// seconds. Re-registering keeps their next occurrence.
func AddRecurring(ctx context.Context, jm *client.JobManager) error {
	// the recurring message is fixed when the job is registered
	msg := fmt.Sprintf("Hello recurring job from Hangfire! %s", time.Now().Format(time.DateTime))
	if err := jm.AddOrUpdate(ctx, WriteLineJob, WriteLineJob, EveryFifteenSeconds, client.RecurringJobOptions{}, msg); err != nil {
		return fmt.Errorf("register %s: %w", WriteLineJob, err)
	}

	if err := jm.AddOrUpdate(ctx, LogThisJob, LogThisJob, EveryFifteenSeconds, client.RecurringJobOptions{},
		"Hello recurring job from Hangfire (fixed by dependency)!"); err != nil {
		return fmt.Errorf("register %s: %w", LogThisJob, err)
	}
	return nil
}
