package fingerprint_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/JaimeStill/geoassign/internal/assignment"
	"github.com/JaimeStill/geoassign/internal/fingerprint"
	"github.com/JaimeStill/geoassign/internal/region"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func succeed(calls *atomic.Int32) fingerprint.ComputeFunc {
	return func(ctx context.Context) (*fingerprint.Result, error) {
		calls.Add(1)
		return &fingerprint.Result{
			Region: &region.CredibleRegion{Confidence: 0.9, NSamples: 500},
			Files:  []assignment.FileDescriptor{{Name: "LegadoSP", Size: 42}},
		}, nil
	}
}

type memStore struct {
	mu   sync.Mutex
	jobs map[fingerprint.Fingerprint]*fingerprint.Job
	log  []fingerprint.Status
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[fingerprint.Fingerprint]*fingerprint.Job)}
}

func (s *memStore) Load(_ context.Context, fp fingerprint.Fingerprint) (*fingerprint.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[fp]
	if !ok {
		return nil, fingerprint.ErrNotFound
	}
	return j, nil
}

func (s *memStore) Save(_ context.Context, job *fingerprint.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.Fingerprint] = job
	s.log = append(s.log, job.Status)
	return nil
}

func TestGetOrComputeIdempotent(t *testing.T) {
	cache := fingerprint.NewCache(nil, discard())
	var calls atomic.Int32

	first, err := cache.GetOrCompute(context.Background(), params(), succeed(&calls))
	require.NoError(t, err)
	second, err := cache.GetOrCompute(context.Background(), params(), succeed(&calls))
	require.NoError(t, err)

	assert.Same(t, first, second, "second call returned a different job snapshot")
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, fingerprint.StatusCompleted, first.Status)
	assert.NotNil(t, first.StartedAt)
	assert.NotNil(t, first.CompletedAt)
	require.Len(t, first.Files, 1)
	assert.Equal(t, "LegadoSP", first.Files[0].Name)
}

func TestGetOrComputeConcurrent(t *testing.T) {
	const n = 32

	cache := fingerprint.NewCache(nil, discard())
	var calls atomic.Int32
	release := make(chan struct{})

	fn := func(ctx context.Context) (*fingerprint.Result, error) {
		calls.Add(1)
		<-release
		return &fingerprint.Result{Region: &region.CredibleRegion{Confidence: 0.9}}, nil
	}

	var wg sync.WaitGroup
	jobs := make([]*fingerprint.Job, n)
	for i := range n {
		wg.Go(func() {
			j, err := cache.GetOrCompute(context.Background(), params(), fn)
			assert.NoError(t, err)
			jobs[i] = j
		})
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, calls.Load())
	for i, j := range jobs {
		assert.Same(t, jobs[0], j, "caller %d observed a different job", i)
	}
}

func TestDistinctFingerprintsDoNotBlock(t *testing.T) {
	cache := fingerprint.NewCache(nil, discard())
	other := params()
	other.PanelSize = 42

	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		cache.GetOrCompute(context.Background(), params(), func(ctx context.Context) (*fingerprint.Result, error) {
			<-release
			return &fingerprint.Result{Region: &region.CredibleRegion{}}, nil
		})
	}()

	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var calls atomic.Int32
	job, err := cache.GetOrCompute(ctx, other, succeed(&calls))
	close(release)
	<-done

	require.NoError(t, err)
	assert.Equal(t, fingerprint.StatusCompleted, job.Status)
}

func TestFailedJobIsCached(t *testing.T) {
	cache := fingerprint.NewCache(nil, discard())
	var calls atomic.Int32

	fail := func(ctx context.Context) (*fingerprint.Result, error) {
		calls.Add(1)
		return nil, &assignment.ToolError{ExitCode: 1, Stderr: "invalid panel size\n"}
	}

	job, err := cache.GetOrCompute(context.Background(), params(), fail)
	require.NoError(t, err)

	require.Equal(t, fingerprint.StatusFailed, job.Status)
	assert.Equal(t, fingerprint.KindAssignmentToolFailure, job.Failure.Kind)
	assert.Contains(t, job.Failure.Message, "invalid panel size")

	again, _ := cache.GetOrCompute(context.Background(), params(), fail)
	assert.Same(t, job, again)
	assert.EqualValues(t, 1, calls.Load(), "failed job was recomputed")
}

func TestRerun(t *testing.T) {
	cache := fingerprint.NewCache(nil, discard())

	failed, _ := cache.GetOrCompute(context.Background(), params(), func(ctx context.Context) (*fingerprint.Result, error) {
		return nil, assignment.ErrTimeout
	})
	require.NotNil(t, failed.Failure)
	require.Equal(t, fingerprint.KindInferenceTimeout, failed.Failure.Kind)

	var calls atomic.Int32
	job, err := cache.Rerun(context.Background(), params(), succeed(&calls))
	require.NoError(t, err)

	assert.Equal(t, fingerprint.StatusCompleted, job.Status)
	assert.Nil(t, job.Failure)
	assert.Equal(t, failed.ID, job.ID, "rerun changed the job identity")
	assert.EqualValues(t, 1, calls.Load())
}

func TestWaiterCancellationReleasesNothing(t *testing.T) {
	cache := fingerprint.NewCache(nil, discard())
	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan *fingerprint.Job)

	go func() {
		j, _ := cache.GetOrCompute(context.Background(), params(), func(ctx context.Context) (*fingerprint.Result, error) {
			close(started)
			<-release
			return &fingerprint.Result{Region: &region.CredibleRegion{}}, nil
		})
		done <- j
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var calls atomic.Int32
	_, err := cache.GetOrCompute(ctx, params(), succeed(&calls))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	holder := <-done

	job, err := cache.GetOrCompute(context.Background(), params(), succeed(&calls))
	require.NoError(t, err)
	assert.Same(t, holder, job, "cancelled waiter disturbed the in-flight computation")
	assert.Zero(t, calls.Load())
}

func TestCancelledComputationFailsAndReleasesLock(t *testing.T) {
	cache := fingerprint.NewCache(nil, discard())
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	done := make(chan *fingerprint.Job)

	go func() {
		j, _ := cache.GetOrCompute(ctx, params(), func(ctx context.Context) (*fingerprint.Result, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})
		done <- j
	}()

	<-started
	cancel()
	job := <-done

	require.Equal(t, fingerprint.StatusFailed, job.Status)
	require.Equal(t, fingerprint.KindCancelled, job.Failure.Kind)

	rerunCtx, rerunCancel := context.WithTimeout(context.Background(), time.Second)
	defer rerunCancel()

	var calls atomic.Int32
	rerun, err := cache.Rerun(rerunCtx, params(), succeed(&calls))
	require.NoError(t, err, "lock was not released")
	assert.Equal(t, fingerprint.StatusCompleted, rerun.Status)
}

func TestPanicIsRecorded(t *testing.T) {
	cache := fingerprint.NewCache(nil, discard())

	job, err := cache.GetOrCompute(context.Background(), params(), func(ctx context.Context) (*fingerprint.Result, error) {
		panic("boom")
	})
	require.NoError(t, err)
	assert.Equal(t, fingerprint.StatusFailed, job.Status)
	assert.Equal(t, fingerprint.KindInternal, job.Failure.Kind)
	assert.Contains(t, job.Failure.Message, "boom")
}

func TestEnqueue(t *testing.T) {
	cache := fingerprint.NewCache(nil, discard())

	job, created := cache.Enqueue(context.Background(), params())
	require.True(t, created)
	require.Equal(t, fingerprint.StatusPending, job.Status)

	again, created := cache.Enqueue(context.Background(), params())
	assert.False(t, created, "second Enqueue() created another job")
	assert.Same(t, job, again)

	var calls atomic.Int32
	done, err := cache.GetOrCompute(context.Background(), params(), succeed(&calls))
	require.NoError(t, err)
	assert.Equal(t, job.ID, done.ID)
	assert.Equal(t, job.CreatedAt, done.CreatedAt)

	found, err := cache.Lookup(context.Background(), job.Fingerprint)
	require.NoError(t, err)
	assert.Same(t, done, found)

	list := cache.List()
	require.Len(t, list, 1)
	assert.Same(t, done, list[0])
}

func TestRequeue(t *testing.T) {
	cache := fingerprint.NewCache(nil, discard())
	fp := fingerprint.New(params())

	_, err := cache.Requeue(context.Background(), fp)
	assert.ErrorIs(t, err, fingerprint.ErrNotFound)

	cache.Enqueue(context.Background(), params())
	_, err = cache.Requeue(context.Background(), fp)
	assert.ErrorIs(t, err, fingerprint.ErrInFlight)

	var calls atomic.Int32
	cache.GetOrCompute(context.Background(), params(), succeed(&calls))

	job, err := cache.Requeue(context.Background(), fp)
	require.NoError(t, err)
	assert.Equal(t, fingerprint.StatusPending, job.Status)
	assert.Nil(t, job.Region)

	cache.GetOrCompute(context.Background(), params(), succeed(&calls))
	assert.EqualValues(t, 2, calls.Load())
}

func TestStore(t *testing.T) {
	store := newMemStore()
	var calls atomic.Int32

	first := fingerprint.NewCache(store, discard())
	job, err := first.GetOrCompute(context.Background(), params(), succeed(&calls))
	require.NoError(t, err)

	want := []fingerprint.Status{
		fingerprint.StatusPending,
		fingerprint.StatusRunning,
		fingerprint.StatusCompleted,
	}
	assert.Equal(t, want, store.log)

	// A fresh process finds the stored result without recomputing.
	second := fingerprint.NewCache(store, discard())
	found, err := second.GetOrCompute(context.Background(), params(), succeed(&calls))
	require.NoError(t, err)
	assert.Equal(t, job.ID, found.ID)
	assert.EqualValues(t, 1, calls.Load(), "stored job was not reused")
}

func TestEnqueueResumesStaleStoredJob(t *testing.T) {
	store := newMemStore()
	fp := fingerprint.New(params())
	store.jobs[fp] = &fingerprint.Job{
		Fingerprint: fp,
		Params:      params(),
		Status:      fingerprint.StatusRunning,
	}

	cache := fingerprint.NewCache(store, discard())
	job, created := cache.Enqueue(context.Background(), params())
	require.True(t, created, "Enqueue() did not reschedule a job left running by another process")
	assert.Equal(t, fingerprint.StatusPending, job.Status)
}
