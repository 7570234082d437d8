// Package host runs the long-lived parts of a process and maps its outcome
// to an exit code.
package host

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const DefaultShutdownTimeout = 30 * time.Second

// BackgroundService is started once when the host starts and stopped once
// when it shuts down.
type BackgroundService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// failer is implemented by services that can fail after a successful Start.
type failer interface {
	Done() <-chan struct{}
	Err() error
}

// Run starts services in order and blocks until ctx is done or a started
// service fails. Services are then stopped in reverse order, each sharing
// the shutdown timeout.
func Run(ctx context.Context, shutdownTimeout time.Duration, services ...BackgroundService) error {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}

	failed := make(chan error, len(services))
	started := make([]BackgroundService, 0, len(services))

	var runErr error
	for _, s := range services {
		slog.Debug("starting service", "service", serviceName(s))
		if err := s.Start(ctx); err != nil {
			runErr = fmt.Errorf("start %s: %w", serviceName(s), err)
			break
		}
		started = append(started, s)
		if f, ok := s.(failer); ok {
			go watch(s, f, failed)
		}
	}

	if runErr == nil {
		select {
		case <-ctx.Done():
			slog.Info("application is shutting down")
		case runErr = <-failed:
			slog.Error("service failed, shutting down", "error", runErr)
		}
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var stopErrs []error
	for i := len(started) - 1; i >= 0; i-- {
		s := started[i]
		if err := s.Stop(stopCtx); err != nil {
			stopErrs = append(stopErrs, fmt.Errorf("stop %s: %w", serviceName(s), err))
		}
	}
	return errors.Join(append([]error{runErr}, stopErrs...)...)
}

func watch(s BackgroundService, f failer, failed chan<- error) {
	done := f.Done()
	if done == nil {
		return
	}
	<-done
	if err := f.Err(); err != nil {
		failed <- fmt.Errorf("%s: %w", serviceName(s), err)
	}
}

func serviceName(s BackgroundService) string {
	if n, ok := s.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}

// Blocking adapts a function that runs until its context is cancelled.
type Blocking struct {
	name string
	run  func(ctx context.Context) error

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func NewBlocking(name string, run func(ctx context.Context) error) *Blocking {
	return &Blocking{name: name, run: run}
}

func (b *Blocking) Name() string { return b.name }

func (b *Blocking) Start(ctx context.Context) error {
	if b.done != nil {
		return fmt.Errorf("%s already started", b.name)
	}
	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})
	go func() {
		defer close(b.done)
		if err := b.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			b.err = err
		}
	}()
	return nil
}

func (b *Blocking) Stop(ctx context.Context) error {
	if b.cancel == nil {
		return nil
	}
	b.cancel()
	select {
	case <-b.done:
		return b.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Blocking) Done() <-chan struct{} { return b.done }

func (b *Blocking) Err() error {
	if b.done == nil {
		return nil
	}
	<-b.done
	return b.err
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// CancelOnInput returns a context cancelled once a line (or EOF) is read from r.
func CancelOnInput(parent context.Context, r io.Reader) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		_, _ = bufio.NewReader(r).ReadString('\n')
		cancel()
	}()
	return ctx, cancel
}

// ExitCode is 0 for a clean shutdown and 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

// Exit logs err, if any, and terminates the process with ExitCode(err).
func Exit(err error) {
	if err != nil {
		slog.Error("host terminated unexpectedly", "error", err)
	}
	os.Exit(ExitCode(err))
}
