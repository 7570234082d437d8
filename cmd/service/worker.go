package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/RezaEskandarii/hostfire/internal/host"
)

// backgroundServer is the part of client.BackgroundJobServer the worker drives.
type backgroundServer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Done() <-chan struct{}
	Err() error
}

// worker owns the background job server for the lifetime of the service
// and reports that it is alive every interval.
type worker struct {
	server   backgroundServer
	interval time.Duration
	loop     *host.Blocking
}

func newWorker(server backgroundServer, interval time.Duration) *worker {
	return &worker{server: server, interval: interval}
}

func (w *worker) Name() string { return "worker" }

func (w *worker) Start(ctx context.Context) error {
	slog.Warn("starting hangfire server", "time", time.Now())
	if err := w.server.Start(ctx); err != nil {
		return err
	}
	slog.Warn("hangfire server started", "time", time.Now())

	w.loop = host.NewBlocking("worker", w.execute)
	return w.loop.Start(ctx)
}

func (w *worker) execute(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		slog.Info("worker running", "time", time.Now())
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *worker) Stop(ctx context.Context) error {
	slog.Warn("stopping worker", "time", time.Now())
	var errs []error
	if w.loop != nil {
		errs = append(errs, w.loop.Stop(ctx))
	}
	errs = append(errs, w.server.Stop(ctx))
	slog.Warn("worker disposed", "time", time.Now())
	return errors.Join(errs...)
}

func (w *worker) Done() <-chan struct{} { return w.server.Done() }

func (w *worker) Err() error { return w.server.Err() }
