package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/semaphore"

	"github.com/JaimeStill/geoassign/internal/density"
	"github.com/JaimeStill/geoassign/internal/fingerprint"
	"github.com/JaimeStill/geoassign/internal/metrics"
	"github.com/JaimeStill/geoassign/internal/region"
	"github.com/JaimeStill/geoassign/internal/workflow"
	"github.com/JaimeStill/geoassign/pkg/lifecycle"
	"github.com/JaimeStill/geoassign/pkg/pagination"
)

// sweepInterval is how often expired cache entries are dropped.
const sweepInterval = 5 * time.Minute

// Config sizes the worker pool and the result caches.
type Config struct {
	Workers         int
	Defaults        Defaults
	RegionCacheTTL  time.Duration
	SurfaceCacheTTL time.Duration
	Pagination      pagination.Config
}

type service struct {
	rt       *workflow.Runtime
	repo     Repository
	cache    *fingerprint.Cache
	lc       *lifecycle.Coordinator
	sem      *semaphore.Weighted
	regions  *gocache.Cache
	surfaces *gocache.Cache
	metrics  *metrics.InferenceMetrics
	cfg      Config
	logger   *slog.Logger
}

// New creates the inference system. Background jobs run on lc and stop
// when it shuts down.
func New(
	rt *workflow.Runtime,
	repo Repository,
	lc *lifecycle.Coordinator,
	m *metrics.InferenceMetrics,
	cfg Config,
) System {
	s := &service{
		rt:       rt,
		repo:     repo,
		cache:    fingerprint.NewCache(repo, rt.Logger),
		lc:       lc,
		sem:      semaphore.NewWeighted(int64(max(cfg.Workers, 1))),
		regions:  gocache.New(cfg.RegionCacheTTL, 0),
		surfaces: gocache.New(cfg.SurfaceCacheTTL, 0),
		metrics:  m,
		cfg:      cfg,
		logger:   rt.Logger.With("system", "inference"),
	}

	lc.Go(s.sweep)
	return s
}

func (s *service) Handler() *Handler {
	return NewHandler(s, s.logger, s.cfg.Pagination)
}

func (s *service) Submit(ctx context.Context, cmd SubmitCommand) (*fingerprint.Job, error) {
	p, err := s.params(ctx, cmd)
	if err != nil {
		return nil, err
	}

	if cmd.Force {
		job, err := s.cache.Requeue(ctx, fingerprint.New(p))
		switch {
		case err == nil:
			s.schedule(job.Params)
			return s.view(ctx, job, cmd.Confidence)
		case errors.Is(err, fingerprint.ErrInFlight):
			return s.view(ctx, job, cmd.Confidence)
		case !errors.Is(err, fingerprint.ErrNotFound):
			return nil, err
		}
	}

	job, created := s.cache.Enqueue(ctx, p)
	if created {
		s.schedule(p)
	}
	return s.view(ctx, job, cmd.Confidence)
}

func (s *service) Run(ctx context.Context, cmd SubmitCommand) (*fingerprint.Job, error) {
	p, err := s.params(ctx, cmd)
	if err != nil {
		return nil, err
	}

	if !cmd.Force {
		if job, err := s.cache.Lookup(ctx, fingerprint.New(p)); err == nil && job.Status.Terminal() {
			return s.view(ctx, job, cmd.Confidence)
		}
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for worker: %w", err)
	}
	defer s.sem.Release(1)

	var job *fingerprint.Job
	if cmd.Force {
		job, err = s.cache.Rerun(ctx, p, s.compute(p))
	} else {
		job, err = s.cache.GetOrCompute(ctx, p, s.compute(p))
	}
	if err != nil {
		return nil, err
	}
	return s.view(ctx, job, cmd.Confidence)
}

func (s *service) Find(ctx context.Context, fp string) (*fingerprint.Job, error) {
	f, err := parseFingerprint(fp)
	if err != nil {
		return nil, err
	}
	return s.cache.Lookup(ctx, f)
}

func (s *service) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[fingerprint.Job], error) {
	page.Normalize(s.cfg.Pagination)
	return s.repo.List(ctx, page, filters)
}

func (s *service) Region(ctx context.Context, fp string, confidence float64) (*RegionView, error) {
	job, err := s.Find(ctx, fp)
	if err != nil {
		return nil, err
	}
	if job.Status != fingerprint.StatusCompleted {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotCompleted, job.Fingerprint, job.Status)
	}

	cr, err := s.regionAt(ctx, job, confidence)
	if err != nil {
		return nil, err
	}

	return &RegionView{
		Fingerprint: job.Fingerprint,
		Region:      cr,
		Files:       job.Files,
	}, nil
}

func (s *service) Rerun(ctx context.Context, fp string) (*fingerprint.Job, error) {
	f, err := parseFingerprint(fp)
	if err != nil {
		return nil, err
	}

	job, err := s.cache.Requeue(ctx, f)
	if err != nil {
		return nil, err
	}

	s.schedule(job.Params)
	return job, nil
}

// params validates cmd and confirms the genotype it names was uploaded.
func (s *service) params(ctx context.Context, cmd SubmitCommand) (fingerprint.Params, error) {
	p, err := cmd.Params(s.cfg.Defaults)
	if err != nil {
		return p, err
	}

	ok, err := s.rt.Storage.Exists(ctx, workflow.GenotypeKey(p.ContentHash))
	if err != nil {
		return p, fmt.Errorf("check upload %s: %w", p.ContentHash, err)
	}
	if !ok {
		return p, fmt.Errorf("%w: %s", ErrUploadNotFound, p.ContentHash)
	}
	return p, nil
}

// schedule computes p on a worker slot once one frees up. Work still
// queued at shutdown is abandoned and stays Pending; the next Submit of the
// same parameters picks it up again.
func (s *service) schedule(p fingerprint.Params) {
	fp := fingerprint.New(p)

	s.lc.Go(func(ctx context.Context) {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.logger.Warn("job abandoned before start", "fingerprint", fp, "error", err)
			return
		}
		defer s.sem.Release(1)

		if _, err := s.cache.GetOrCompute(ctx, p, s.compute(p)); err != nil {
			s.logger.Warn("job wait abandoned", "fingerprint", fp, "error", err)
		}
	})
}

// compute runs the pipeline for p and records its outcome. A successful run
// replaces any cached surface and regions of an earlier run.
func (s *service) compute(p fingerprint.Params) fingerprint.ComputeFunc {
	return func(ctx context.Context) (*fingerprint.Result, error) {
		start := time.Now()
		status, kind := fingerprint.StatusFailed, fingerprint.KindInternal

		s.metrics.JobStarted()
		defer func() {
			s.metrics.JobFinished(string(status), string(kind), time.Since(start))
		}()

		res, err := workflow.Execute(ctx, s.rt, workflow.Request{Params: p})
		if err != nil {
			kind = fingerprint.Classify(err)
			return nil, err
		}
		status, kind = fingerprint.StatusCompleted, ""

		s.invalidate(res.Fingerprint)
		s.surfaces.SetDefault(string(res.Fingerprint), res.Surface)

		return res.JobResult(), nil
	}
}

// view swaps in the region at confidence when the job has completed.
func (s *service) view(ctx context.Context, job *fingerprint.Job, confidence *float64) (*fingerprint.Job, error) {
	if confidence == nil || job.Status != fingerprint.StatusCompleted {
		return job, nil
	}

	cr, err := s.regionAt(ctx, job, *confidence)
	if err != nil {
		return nil, err
	}

	v := *job
	v.Region = cr
	return &v, nil
}

func (s *service) regionAt(ctx context.Context, job *fingerprint.Job, confidence float64) (*region.CredibleRegion, error) {
	if confidence == 0 || (job.Region != nil && confidence == job.Region.Confidence) {
		return job.Region, nil
	}
	if confidence < 0 || confidence >= 1 {
		return nil, fmt.Errorf("%w: %v", region.ErrInvalidConfidence, confidence)
	}

	key := regionKey(job.Fingerprint, confidence)
	if v, ok := s.regions.Get(key); ok {
		s.metrics.RegionCache(true)
		return v.(*region.CredibleRegion), nil
	}
	s.metrics.RegionCache(false)

	surface, err := s.surface(ctx, job)
	if err != nil {
		return nil, err
	}

	cr, err := region.Extract(surface, confidence, s.rt.Region)
	if err != nil {
		return nil, fmt.Errorf("extract region: %w", err)
	}

	s.regions.SetDefault(key, cr)
	return cr, nil
}

func (s *service) surface(ctx context.Context, job *fingerprint.Job) (*density.Surface, error) {
	if v, ok := s.surfaces.Get(string(job.Fingerprint)); ok {
		return v.(*density.Surface), nil
	}

	surface, err := workflow.LoadSurface(ctx, s.rt, job)
	if err != nil {
		return nil, err
	}

	s.logger.Info("surface rebuilt", "fingerprint", job.Fingerprint, "samples", surface.NSamples())
	s.surfaces.SetDefault(string(job.Fingerprint), surface)
	return surface, nil
}

func (s *service) invalidate(fp fingerprint.Fingerprint) {
	s.surfaces.Delete(string(fp))

	prefix := string(fp) + "@"
	for key := range s.regions.Items() {
		if strings.HasPrefix(key, prefix) {
			s.regions.Delete(key)
		}
	}
}

func (s *service) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.regions.DeleteExpired()
			s.surfaces.DeleteExpired()
		}
	}
}

func regionKey(fp fingerprint.Fingerprint, confidence float64) string {
	return string(fp) + "@" + strconv.FormatFloat(confidence, 'g', -1, 64)
}

func parseFingerprint(s string) (fingerprint.Fingerprint, error) {
	fp := fingerprint.Fingerprint(strings.ToLower(strings.TrimSpace(s)))
	if !fp.Valid() {
		return "", fmt.Errorf("%w: fingerprint %q", fingerprint.ErrInvalidParam, s)
	}
	return fp, nil
}
