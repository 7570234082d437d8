package test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RezaEskandarii/hostfire/client"
	"github.com/RezaEskandarii/hostfire/client/test/mocks"
	"github.com/RezaEskandarii/hostfire/internal/constants"
	"github.com/RezaEskandarii/hostfire/internal/state"
	"github.com/RezaEskandarii/hostfire/types"
	"github.com/RezaEskandarii/hostfire/types/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failureCall struct {
	jobID   int64
	errMsg  string
	status  state.JobStatus
	retryAt time.Time
}

func testWorkerOptions() client.WorkerOptions {
	return client.WorkerOptions{
		Queues:              []string{"default"},
		WorkerCount:         2,
		BatchSize:           10,
		QueuePollInterval:   10 * time.Millisecond,
		InvisibilityTimeout: 5 * time.Minute,
		MaxAttempts:         1,
	}
}

// fetchOnce hands out jobs on the first poll and nothing afterwards.
func fetchOnce(jobs ...types.EnqueuedJob) func(ctx context.Context, queues []string, limit int, now, staleBefore time.Time) ([]types.EnqueuedJob, error) {
	var fetched atomic.Bool
	return func(ctx context.Context, queues []string, limit int, now, staleBefore time.Time) ([]types.EnqueuedJob, error) {
		if fetched.Swap(true) {
			return nil, nil
		}
		return jobs, nil
	}
}

func runWorkers(t *testing.T, em *client.EnqueueJobsManager) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- em.Start(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func waitStopped(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not stop")
	}
}

func TestNewEnqueueJobsManager(t *testing.T) {
	em := client.NewEnqueueJobsManager(&mocks.MockEnqueuedJobStore{}, &mocks.MockDistributedLockManager{}, config.NewJobHandler(), nil, "server-1", client.WorkerOptions{})
	assert.NotNil(t, em)
}

func TestEnqueueJobsManager_Start_StopsOnContextCancel(t *testing.T) {
	store := &mocks.MockEnqueuedJobStore{}
	var polls atomic.Int32
	var gotQueues []string
	var mu sync.Mutex
	store.FetchDueJobsFunc = func(ctx context.Context, queues []string, limit int, now, staleBefore time.Time) ([]types.EnqueuedJob, error) {
		polls.Add(1)
		mu.Lock()
		gotQueues = queues
		mu.Unlock()
		assert.Equal(t, 5*time.Minute, now.Sub(staleBefore))
		return nil, nil
	}

	em := client.NewEnqueueJobsManager(store, &mocks.MockDistributedLockManager{}, config.NewJobHandler(), nil, "server-1", testWorkerOptions())
	cancel, done := runWorkers(t, em)

	require.Eventually(t, func() bool { return polls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	waitStopped(t, done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"default"}, gotQueues)
}

func TestEnqueueJobsManager_ZeroPollIntervalKeepsPolling(t *testing.T) {
	store := &mocks.MockEnqueuedJobStore{}
	var polls atomic.Int32
	store.FetchDueJobsFunc = func(ctx context.Context, queues []string, limit int, now, staleBefore time.Time) ([]types.EnqueuedJob, error) {
		polls.Add(1)
		return nil, nil
	}

	opts := testWorkerOptions()
	opts.QueuePollInterval = 0
	em := client.NewEnqueueJobsManager(store, &mocks.MockDistributedLockManager{}, config.NewJobHandler(), nil, "server-1", opts)
	cancel, done := runWorkers(t, em)

	require.Eventually(t, func() bool { return polls.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	waitStopped(t, done)
}

func TestEnqueueJobsManager_ProcessesJobSuccessfully(t *testing.T) {
	store := &mocks.MockEnqueuedJobStore{}
	store.FetchDueJobsFunc = fetchOnce(types.EnqueuedJob{
		ID:          1,
		Queue:       "default",
		Name:        "TestJob",
		Payload:     json.RawMessage(`["hello"]`),
		Status:      state.StatusQueued,
		MaxAttempts: 1,
	})
	var lockedBy string
	store.LockJobFunc = func(ctx context.Context, jobID int64, owner string, now, staleBefore time.Time) (bool, error) {
		lockedBy = owner
		return true, nil
	}
	succeeded := make(chan int64, 1)
	store.MarkSuccessFunc = func(ctx context.Context, jobID int64, owner string, finishedAt time.Time) error {
		assert.Equal(t, "server-1", owner)
		succeeded <- jobID
		return nil
	}

	jobHandler := config.NewJobHandler()
	var gotArgs []any
	require.NoError(t, jobHandler.Register("TestJob", func(ctx context.Context, args ...any) error {
		gotArgs = args
		return nil
	}))

	em := client.NewEnqueueJobsManager(store, &mocks.MockDistributedLockManager{}, jobHandler, nil, "server-1", testWorkerOptions())
	cancel, done := runWorkers(t, em)

	select {
	case id := <-succeeded:
		assert.Equal(t, int64(1), id)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not marked as succeeded")
	}
	cancel()
	waitStopped(t, done)

	assert.Equal(t, "server-1", lockedBy)
	assert.Equal(t, []any{"hello"}, gotArgs)
}

func TestEnqueueJobsManager_FailedJobWithoutRetries(t *testing.T) {
	store := &mocks.MockEnqueuedJobStore{}
	store.FetchDueJobsFunc = fetchOnce(types.EnqueuedJob{ID: 2, Queue: "default", Name: "Failing", MaxAttempts: 1})
	failures := make(chan failureCall, 1)
	store.MarkFailureFunc = func(ctx context.Context, jobID int64, owner, errMsg string, status state.JobStatus, retryAt, finishedAt time.Time) error {
		failures <- failureCall{jobID: jobID, errMsg: errMsg, status: status, retryAt: retryAt}
		return nil
	}

	jobHandler := config.NewJobHandler()
	require.NoError(t, jobHandler.Register("Failing", func(ctx context.Context, args ...any) error {
		return errors.New("boom")
	}))

	em := client.NewEnqueueJobsManager(store, &mocks.MockDistributedLockManager{}, jobHandler, nil, "server-1", testWorkerOptions())
	cancel, done := runWorkers(t, em)

	select {
	case call := <-failures:
		assert.Equal(t, int64(2), call.jobID)
		assert.Equal(t, state.StatusFailed, call.status)
		assert.Equal(t, "boom", call.errMsg)
	case <-time.After(2 * time.Second):
		t.Fatal("job failure was not recorded")
	}
	cancel()
	waitStopped(t, done)
}

func TestEnqueueJobsManager_FailedJobIsRetried(t *testing.T) {
	store := &mocks.MockEnqueuedJobStore{}
	store.FetchDueJobsFunc = fetchOnce(types.EnqueuedJob{ID: 3, Queue: "default", Name: "Failing", MaxAttempts: 3})
	failures := make(chan failureCall, 1)
	store.MarkFailureFunc = func(ctx context.Context, jobID int64, owner, errMsg string, status state.JobStatus, retryAt, finishedAt time.Time) error {
		failures <- failureCall{jobID: jobID, errMsg: errMsg, status: status, retryAt: retryAt}
		return nil
	}

	jobHandler := config.NewJobHandler()
	require.NoError(t, jobHandler.Register("Failing", func(ctx context.Context, args ...any) error {
		return errors.New("boom")
	}))

	opts := testWorkerOptions()
	opts.MaxAttempts = 5
	em := client.NewEnqueueJobsManager(store, &mocks.MockDistributedLockManager{}, jobHandler, nil, "server-1", opts)
	cancel, done := runWorkers(t, em)

	select {
	case call := <-failures:
		assert.Equal(t, state.StatusRetrying, call.status)
		assert.True(t, call.retryAt.After(time.Now().Add(10*time.Second)))
	case <-time.After(2 * time.Second):
		t.Fatal("job failure was not recorded")
	}
	cancel()
	waitStopped(t, done)
}

func TestEnqueueJobsManager_InvalidPayloadFailsJob(t *testing.T) {
	store := &mocks.MockEnqueuedJobStore{}
	store.FetchDueJobsFunc = fetchOnce(types.EnqueuedJob{ID: 4, Queue: "default", Name: "TestJob", Payload: json.RawMessage(`{"x":1}`), MaxAttempts: 1})
	failures := make(chan failureCall, 1)
	store.MarkFailureFunc = func(ctx context.Context, jobID int64, owner, errMsg string, status state.JobStatus, retryAt, finishedAt time.Time) error {
		failures <- failureCall{jobID: jobID, errMsg: errMsg, status: status}
		return nil
	}

	jobHandler := config.NewJobHandler()
	require.NoError(t, jobHandler.Register("TestJob", func(ctx context.Context, args ...any) error {
		t.Error("handler must not run with an undecodable payload")
		return nil
	}))

	em := client.NewEnqueueJobsManager(store, &mocks.MockDistributedLockManager{}, jobHandler, nil, "server-1", testWorkerOptions())
	cancel, done := runWorkers(t, em)

	select {
	case call := <-failures:
		assert.Equal(t, state.StatusFailed, call.status)
		assert.Contains(t, call.errMsg, "invalid payload")
	case <-time.After(2 * time.Second):
		t.Fatal("job failure was not recorded")
	}
	cancel()
	waitStopped(t, done)
}

func TestEnqueueJobsManager_SkipsJobLockedByAnotherServer(t *testing.T) {
	store := &mocks.MockEnqueuedJobStore{}
	store.FetchDueJobsFunc = fetchOnce(types.EnqueuedJob{ID: 5, Queue: "default", Name: "TestJob"})
	var lockAttempts atomic.Int32
	store.LockJobFunc = func(ctx context.Context, jobID int64, owner string, now, staleBefore time.Time) (bool, error) {
		lockAttempts.Add(1)
		return false, nil
	}
	store.MarkSuccessFunc = func(ctx context.Context, jobID int64, owner string, finishedAt time.Time) error {
		t.Error("a job that was not locked must not be completed")
		return nil
	}

	var runs atomic.Int32
	jobHandler := config.NewJobHandler()
	require.NoError(t, jobHandler.Register("TestJob", func(ctx context.Context, args ...any) error {
		runs.Add(1)
		return nil
	}))

	em := client.NewEnqueueJobsManager(store, &mocks.MockDistributedLockManager{}, jobHandler, nil, "server-1", testWorkerOptions())
	cancel, done := runWorkers(t, em)

	require.Eventually(t, func() bool { return lockAttempts.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	waitStopped(t, done)
	assert.Equal(t, int32(0), runs.Load())
}

func TestEnqueueJobsManager_ShutdownRequeuesRunningJob(t *testing.T) {
	store := &mocks.MockEnqueuedJobStore{}
	store.FetchDueJobsFunc = fetchOnce(types.EnqueuedJob{ID: 6, Queue: "default", Name: "Slow", MaxAttempts: 1})
	failures := make(chan failureCall, 1)
	store.MarkFailureFunc = func(ctx context.Context, jobID int64, owner, errMsg string, status state.JobStatus, retryAt, finishedAt time.Time) error {
		assert.NoError(t, ctx.Err(), "results are recorded after shutdown")
		failures <- failureCall{jobID: jobID, errMsg: errMsg, status: status}
		return nil
	}

	started := make(chan struct{})
	jobHandler := config.NewJobHandler()
	require.NoError(t, jobHandler.Register("Slow", func(ctx context.Context, args ...any) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))

	em := client.NewEnqueueJobsManager(store, &mocks.MockDistributedLockManager{}, jobHandler, nil, "server-1", testWorkerOptions())
	cancel, done := runWorkers(t, em)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not start")
	}
	cancel()
	waitStopped(t, done)

	select {
	case call := <-failures:
		assert.Equal(t, int64(6), call.jobID)
		assert.Equal(t, state.StatusQueued, call.status)
	default:
		t.Fatal("interrupted job was not requeued")
	}
}

func TestEnqueueJobsManager_LostLockCancelsJob(t *testing.T) {
	store := &mocks.MockEnqueuedJobStore{}
	store.FetchDueJobsFunc = fetchOnce(types.EnqueuedJob{ID: 7, Queue: "default", Name: "Slow", MaxAttempts: 1})
	store.KeepAliveFunc = func(ctx context.Context, jobID int64, owner string, now time.Time) (bool, error) {
		return false, nil
	}
	failures := make(chan failureCall, 1)
	store.MarkFailureFunc = func(ctx context.Context, jobID int64, owner, errMsg string, status state.JobStatus, retryAt, finishedAt time.Time) error {
		failures <- failureCall{jobID: jobID, errMsg: errMsg, status: status}
		return nil
	}

	jobHandler := config.NewJobHandler()
	require.NoError(t, jobHandler.Register("Slow", func(ctx context.Context, args ...any) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	opts := testWorkerOptions()
	// keep-alive runs every second at the lowest
	opts.InvisibilityTimeout = 5 * time.Second
	em := client.NewEnqueueJobsManager(store, &mocks.MockDistributedLockManager{}, jobHandler, nil, "server-1", opts)
	cancel, done := runWorkers(t, em)

	select {
	case call := <-failures:
		assert.Equal(t, int64(7), call.jobID)
		assert.Equal(t, state.StatusFailed, call.status)
		assert.Contains(t, call.errMsg, "context canceled")
	case <-time.After(4 * time.Second):
		t.Fatal("job was not cancelled after losing its lock")
	}
	cancel()
	waitStopped(t, done)
}

func TestEnqueueJobsManager_RequeuesTimedOutJobsUnderLock(t *testing.T) {
	store := &mocks.MockEnqueuedJobStore{}
	swept := make(chan time.Time, 1)
	store.RequeueTimedOutFunc = func(ctx context.Context, staleBefore time.Time) (int64, error) {
		select {
		case swept <- staleBefore:
		default:
		}
		return 1, nil
	}
	lockMgr := &mocks.MockDistributedLockManager{}
	var acquired, released atomic.Int32
	lockMgr.AcquireFunc = func(ctx context.Context, lockID int) error {
		assert.Equal(t, constants.RequeueLock, lockID)
		acquired.Add(1)
		return nil
	}
	lockMgr.ReleaseFunc = func(ctx context.Context, lockID int) error {
		released.Add(1)
		return nil
	}

	opts := testWorkerOptions()
	opts.InvisibilityTimeout = 2 * time.Second
	em := client.NewEnqueueJobsManager(store, lockMgr, config.NewJobHandler(), nil, "server-1", opts)
	cancel, done := runWorkers(t, em)

	select {
	case staleBefore := <-swept:
		assert.WithinDuration(t, time.Now().Add(-2*time.Second), staleBefore, time.Second)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out jobs were not requeued")
	}
	cancel()
	waitStopped(t, done)

	assert.GreaterOrEqual(t, acquired.Load(), int32(1))
	assert.Equal(t, acquired.Load(), released.Load())
}

func TestEnqueueJobsManager_DisableGlobalLocksSkipsLock(t *testing.T) {
	store := &mocks.MockEnqueuedJobStore{}
	swept := make(chan struct{}, 1)
	store.RequeueTimedOutFunc = func(ctx context.Context, staleBefore time.Time) (int64, error) {
		select {
		case swept <- struct{}{}:
		default:
		}
		return 0, nil
	}
	lockMgr := &mocks.MockDistributedLockManager{}
	lockMgr.AcquireFunc = func(ctx context.Context, lockID int) error {
		t.Error("lock must not be taken when global locks are disabled")
		return nil
	}

	opts := testWorkerOptions()
	opts.InvisibilityTimeout = 2 * time.Second
	opts.DisableGlobalLocks = true
	em := client.NewEnqueueJobsManager(store, lockMgr, config.NewJobHandler(), nil, "server-1", opts)
	cancel, done := runWorkers(t, em)

	select {
	case <-swept:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out jobs were not requeued")
	}
	cancel()
	waitStopped(t, done)
}

func TestEnqueueJobsManager_QueueAndStorageSync(t *testing.T) {
	msgs := make(chan []byte, 3)
	broker := &mocks.MockMessageBroker{}
	broker.ConsumeFunc = func(ctx context.Context) (<-chan []byte, error) {
		return msgs, nil
	}

	store := &mocks.MockEnqueuedJobStore{}
	var inserted []types.Job
	store.BulkInsertFunc = func(ctx context.Context, jobs []types.Job) error {
		inserted = append(inserted, jobs...)
		return nil
	}

	first, err := json.Marshal(types.Job{Queue: "Reports", Name: "TestJob", Args: []any{"a"}})
	require.NoError(t, err)
	second, err := json.Marshal(types.Job{Name: "TestJob", MaxAttempts: 4})
	require.NoError(t, err)
	msgs <- first
	msgs <- []byte("not json")
	msgs <- second
	close(msgs)

	opts := testWorkerOptions()
	opts.MaxAttempts = 2
	em := client.NewEnqueueJobsManager(store, &mocks.MockDistributedLockManager{}, config.NewJobHandler(), broker, "server-1", opts)

	require.NoError(t, em.StartQueueAndStorageSyncWorker(context.Background()))

	require.Len(t, inserted, 2)
	assert.Equal(t, "reports", inserted[0].Queue)
	assert.Equal(t, 2, inserted[0].MaxAttempts)
	assert.Equal(t, "default", inserted[1].Queue)
	assert.Equal(t, 4, inserted[1].MaxAttempts)
}

func TestEnqueueJobsManager_QueueAndStorageSync_ConsumeError(t *testing.T) {
	broker := &mocks.MockMessageBroker{}
	broker.ConsumeFunc = func(ctx context.Context) (<-chan []byte, error) {
		return nil, errors.New("connection refused")
	}

	em := client.NewEnqueueJobsManager(&mocks.MockEnqueuedJobStore{}, &mocks.MockDistributedLockManager{}, config.NewJobHandler(), broker, "server-1", testWorkerOptions())

	err := em.StartQueueAndStorageSyncWorker(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestEnqueueJobsManager_QueueAndStorageSync_FlushesOnShutdown(t *testing.T) {
	msgs := make(chan []byte, 1)
	broker := &mocks.MockMessageBroker{}
	broker.ConsumeFunc = func(ctx context.Context) (<-chan []byte, error) {
		return msgs, nil
	}

	store := &mocks.MockEnqueuedJobStore{}
	inserted := make(chan int, 1)
	store.BulkInsertFunc = func(ctx context.Context, jobs []types.Job) error {
		assert.NoError(t, ctx.Err())
		inserted <- len(jobs)
		return nil
	}

	payload, err := json.Marshal(types.Job{Name: "TestJob"})
	require.NoError(t, err)
	msgs <- payload

	em := client.NewEnqueueJobsManager(store, &mocks.MockDistributedLockManager{}, config.NewJobHandler(), broker, "server-1", testWorkerOptions())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- em.StartQueueAndStorageSyncWorker(ctx) }()

	require.Eventually(t, func() bool { return len(msgs) == 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	waitStopped(t, done)

	select {
	case n := <-inserted:
		assert.Equal(t, 1, n)
	default:
		t.Fatal("pending batch was not flushed")
	}
}
