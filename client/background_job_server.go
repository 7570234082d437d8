package client

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// BackgroundJobServer runs the processing side of the engine: server
// heartbeats, the worker loop, recurring job triggers and, in queue writer
// mode, the broker sync worker.
type BackgroundJobServer struct {
	Servers   *ServerManager
	Workers   *EnqueueJobsManager
	Recurring *RecurringJobManager
	syncQueue bool

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
	done   chan struct{}
	err    error
}

func NewBackgroundJobServer(servers *ServerManager, workers *EnqueueJobsManager, recurring *RecurringJobManager, syncQueue bool) *BackgroundJobServer {
	return &BackgroundJobServer{
		Servers:   servers,
		Workers:   workers,
		Recurring: recurring,
		syncQueue: syncQueue,
	}
}

// Start launches every component in the background and returns at once.
func (s *BackgroundJobServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.group != nil {
		return errors.New("background job server already started")
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.group, ctx = errgroup.WithContext(ctx)
	s.done = make(chan struct{})

	s.group.Go(func() error { return s.Servers.Start(ctx) })
	s.group.Go(func() error { return s.Workers.Start(ctx) })
	s.group.Go(func() error { return s.Recurring.Start(ctx) })
	if s.syncQueue {
		s.group.Go(func() error { return s.Workers.StartQueueAndStorageSyncWorker(ctx) })
	}

	go func() {
		s.err = s.group.Wait()
		close(s.done)
	}()
	return nil
}

// Done is closed once every component has returned. It is nil before Start.
func (s *BackgroundJobServer) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Err reports the first component failure after Done is closed.
func (s *BackgroundJobServer) Err() error {
	done := s.Done()
	if done == nil {
		return nil
	}
	<-done
	return s.err
}

// Stop cancels all components and waits for them to finish, or for ctx to
// expire. Running jobs that do not finish in time are picked up again by
// another server once their invisibility timeout passes.
func (s *BackgroundJobServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
