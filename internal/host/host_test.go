package host

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type mockService struct {
	name      string
	rec       *recorder
	StartFunc func(ctx context.Context) error
	StopFunc  func(ctx context.Context) error
}

func (m *mockService) Name() string { return m.name }

func (m *mockService) Start(ctx context.Context) error {
	m.rec.add("start " + m.name)
	if m.StartFunc != nil {
		return m.StartFunc(ctx)
	}
	return nil
}

func (m *mockService) Stop(ctx context.Context) error {
	m.rec.add("stop " + m.name)
	if m.StopFunc != nil {
		return m.StopFunc(ctx)
	}
	return nil
}

func TestRun_StartsInOrderAndStopsInReverse(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Run(ctx, time.Second,
		&mockService{name: "a", rec: rec},
		&mockService{name: "b", rec: rec},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, rec.list())
}

func TestRun_StartFailureStopsStartedServices(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")

	err := Run(context.Background(), time.Second,
		&mockService{name: "a", rec: rec},
		&mockService{name: "b", rec: rec, StartFunc: func(context.Context) error { return boom }},
		&mockService{name: "c", rec: rec},
	)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "start b")
	assert.Equal(t, []string{"start a", "start b", "stop a"}, rec.list())
}

func TestRun_StopErrorsAreReturned(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Run(ctx, time.Second, &mockService{name: "a", rec: rec, StopFunc: func(context.Context) error {
		return errors.New("stuck")
	}})
	assert.ErrorContains(t, err, "stop a: stuck")
}

func TestRun_ServiceFailureShutsDown(t *testing.T) {
	boom := errors.New("listener closed")
	failing := NewBlocking("failing", func(ctx context.Context) error { return boom })

	rec := &recorder{}
	done := make(chan error, 1)
	go func() {
		done <- Run(context.Background(), time.Second, &mockService{name: "a", rec: rec}, failing)
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, rec.list(), "stop a")
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after a service failed")
	}
}

func TestBlocking_StopCancelsRun(t *testing.T) {
	started := make(chan struct{})
	b := NewBlocking("loop", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	require.NoError(t, b.Start(context.Background()))
	assert.Error(t, b.Start(context.Background()))
	<-started

	require.NoError(t, b.Stop(context.Background()))
	assert.NoError(t, b.Err())
	assert.Equal(t, "loop", b.Name())
}

func TestBlocking_StopTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	b := NewBlocking("stubborn", func(ctx context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, b.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Stop(ctx), context.DeadlineExceeded)
}

func TestBlocking_StopBeforeStart(t *testing.T) {
	b := NewBlocking("idle", func(ctx context.Context) error { return nil })
	assert.NoError(t, b.Stop(context.Background()))
	assert.NoError(t, b.Err())
}

func TestCancelOnInput(t *testing.T) {
	ctx, cancel := CancelOnInput(context.Background(), strings.NewReader("\n"))
	defer cancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled by input")
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("storage unreachable")))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, JSONFormat, slog.LevelInfo).Info("worker running", "time", "now")
	assert.Contains(t, buf.String(), `"msg":"worker running"`)

	buf.Reset()
	NewLogger(&buf, TextFormat, slog.LevelWarn).Info("hidden")
	assert.Empty(t, buf.String())

	NewLogger(&buf, TextFormat, slog.LevelInfo).Info("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}
