package fingerprint

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// ComputeFunc runs the inference for one fingerprint.
type ComputeFunc func(ctx context.Context) (*Result, error)

// Store persists job snapshots beyond the life of the process. Load returns
// ErrNotFound when no job exists for the fingerprint.
type Store interface {
	Load(ctx context.Context, fp Fingerprint) (*Job, error)
	Save(ctx context.Context, job *Job) error
}

// entry holds the lock and the current snapshot for one fingerprint. The lock
// is a one-slot channel so waiting on it can be abandoned through a context.
type entry struct {
	lock chan struct{}
	job  atomic.Pointer[Job]
}

func (e *entry) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case e.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *entry) release() {
	<-e.lock
}

// Cache maps fingerprints to jobs. The map itself is guarded by a mutex held
// only long enough to find or create an entry; computations serialize on the
// entry's own lock, so distinct fingerprints never wait on each other.
type Cache struct {
	mu      sync.Mutex
	entries map[Fingerprint]*entry
	store   Store
	logger  *slog.Logger
	now     func() time.Time
}

// NewCache creates a cache. store may be nil for a process-local cache.
func NewCache(store Store, logger *slog.Logger) *Cache {
	return &Cache{
		entries: make(map[Fingerprint]*entry),
		store:   store,
		logger:  logger.With("system", "fingerprint"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (c *Cache) entry(fp Fingerprint) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fp]
	if !ok {
		e = &entry{lock: make(chan struct{}, 1)}
		c.entries[fp] = e
	}
	return e
}

// GetOrCompute returns the terminal job for p's fingerprint, running fn to
// produce it when none exists. Concurrent callers for the same fingerprint
// wait for the single in-flight computation and observe its outcome. A
// failed job is returned as is; use Rerun to compute it again.
//
// The returned error is non-nil only when ctx ends while waiting for another
// caller's computation. Failures of fn are reported through the job.
func (c *Cache) GetOrCompute(ctx context.Context, p Params, fn ComputeFunc) (*Job, error) {
	fp := New(p)
	e := c.entry(fp)

	if j := e.job.Load(); j != nil && j.Status.Terminal() {
		return j, nil
	}

	if err := e.acquire(ctx); err != nil {
		return nil, fmt.Errorf("wait for fingerprint %s: %w", fp, err)
	}
	defer e.release()

	current := e.job.Load()
	if current == nil {
		current, _ = c.hydrate(ctx, e, fp)
	}
	if current != nil && current.Status.Terminal() {
		return current, nil
	}

	var next *Job
	if current == nil {
		next = newJob(fp, p, c.now())
	} else {
		next = current.pending(p)
	}

	return c.compute(ctx, e, next, fn), nil
}

// Rerun discards the job's outcome and computes it again. It waits for any
// in-flight computation of the same fingerprint first.
func (c *Cache) Rerun(ctx context.Context, p Params, fn ComputeFunc) (*Job, error) {
	fp := New(p)
	e := c.entry(fp)

	if err := e.acquire(ctx); err != nil {
		return nil, fmt.Errorf("wait for fingerprint %s: %w", fp, err)
	}
	defer e.release()

	current := e.job.Load()
	if current == nil {
		current, _ = c.hydrate(ctx, e, fp)
	}

	var next *Job
	if current == nil {
		next = newJob(fp, p, c.now())
	} else {
		next = current.pending(p)
	}

	c.logger.Info("rerun requested", "fingerprint", fp, "id", next.ID)
	return c.compute(ctx, e, next, fn), nil
}

// Enqueue publishes a Pending job for p's fingerprint unless one already
// exists. created reports whether the caller is responsible for scheduling
// the computation.
func (c *Cache) Enqueue(ctx context.Context, p Params) (job *Job, created bool) {
	fp := New(p)
	e := c.entry(fp)

	if j := e.job.Load(); j != nil {
		return j, false
	}

	stored, loaded := c.hydrate(ctx, e, fp)
	if stored != nil && (!loaded || stored.Status.Terminal()) {
		return stored, false
	}

	var next *Job
	if stored == nil {
		next = newJob(fp, p, c.now())
	} else {
		// A stored job left Pending or Running belongs to a process that
		// stopped before finishing it.
		next = stored.pending(p)
	}

	if !e.job.CompareAndSwap(stored, next) {
		return e.job.Load(), false
	}
	c.persist(ctx, next)
	return next, true
}

// Requeue resets a terminal job to Pending so it can be scheduled again. It
// fails with ErrInFlight while the job is pending or running and with
// ErrNotFound when no job exists.
func (c *Cache) Requeue(ctx context.Context, fp Fingerprint) (*Job, error) {
	e := c.entry(fp)

	current := e.job.Load()
	if current == nil {
		current, _ = c.hydrate(ctx, e, fp)
	}
	if current == nil {
		return nil, ErrNotFound
	}
	if !current.Status.Terminal() {
		return current, ErrInFlight
	}

	next := current.pending(current.Params)
	if !e.job.CompareAndSwap(current, next) {
		return e.job.Load(), ErrInFlight
	}

	c.persist(ctx, next)
	c.logger.Info("job requeued", "fingerprint", fp, "id", next.ID)
	return next, nil
}

// Lookup returns the current snapshot for fp, consulting the store when the
// fingerprint has not been seen by this process.
func (c *Cache) Lookup(ctx context.Context, fp Fingerprint) (*Job, error) {
	e := c.entry(fp)
	if j := e.job.Load(); j != nil {
		return j, nil
	}
	if j, _ := c.hydrate(ctx, e, fp); j != nil {
		return j, nil
	}
	return nil, ErrNotFound
}

// List returns the snapshots held in memory, newest first.
func (c *Cache) List() []*Job {
	c.mu.Lock()
	jobs := make([]*Job, 0, len(c.entries))
	for _, e := range c.entries {
		if j := e.job.Load(); j != nil {
			jobs = append(jobs, j)
		}
	}
	c.mu.Unlock()

	slices.SortFunc(jobs, func(a, b *Job) int {
		if n := b.CreatedAt.Compare(a.CreatedAt); n != 0 {
			return n
		}
		return cmp.Compare(a.Fingerprint, b.Fingerprint)
	})
	return jobs
}

// hydrate loads fp from the store into an empty entry. loaded is false when
// another caller published a snapshot first; that snapshot is returned.
func (c *Cache) hydrate(ctx context.Context, e *entry, fp Fingerprint) (job *Job, loaded bool) {
	if c.store == nil {
		return e.job.Load(), false
	}

	j, err := c.store.Load(ctx, fp)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Error("load job failed", "fingerprint", fp, "error", err)
		}
		return e.job.Load(), false
	}

	if e.job.CompareAndSwap(nil, j) {
		return j, true
	}
	return e.job.Load(), false
}

// compute runs fn for job with the entry lock held and publishes every
// transition.
func (c *Cache) compute(ctx context.Context, e *entry, job *Job, fn ComputeFunc) *Job {
	e.job.Store(job)
	c.persist(ctx, job)

	job = job.running(c.now())
	e.job.Store(job)
	c.persist(ctx, job)

	c.logger.Info("computation started", "fingerprint", job.Fingerprint, "id", job.ID)

	res, err := run(ctx, fn)
	if err == nil && (res == nil || res.Region == nil) {
		err = errors.New("computation returned no region")
	}

	if err != nil {
		job = job.failed(err, c.now())
		c.logger.Warn("computation failed",
			"fingerprint", job.Fingerprint,
			"kind", job.Failure.Kind,
			"error", err,
		)
	} else {
		job = job.completed(res, c.now())
		c.logger.Info("computation completed",
			"fingerprint", job.Fingerprint,
			"duration", job.CompletedAt.Sub(*job.StartedAt),
		)
	}

	e.job.Store(job)
	c.persist(ctx, job)
	return job
}

func run(ctx context.Context, fn ComputeFunc) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("computation panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// persist saves job to the store. A cancelled caller still records the
// outcome; store failures are logged and the in-memory snapshot stands.
func (c *Cache) persist(ctx context.Context, job *Job) {
	if c.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := c.store.Save(ctx, job); err != nil {
		c.logger.Error("save job failed",
			"fingerprint", job.Fingerprint,
			"status", job.Status,
			"error", err,
		)
	}
}
