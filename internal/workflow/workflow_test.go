package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/JaimeStill/geoassign/internal/assignment"
	"github.com/JaimeStill/geoassign/internal/density"
	"github.com/JaimeStill/geoassign/internal/fingerprint"
	"github.com/JaimeStill/geoassign/internal/posterior"
	"github.com/JaimeStill/geoassign/internal/region"
	"github.com/JaimeStill/geoassign/internal/workflow"
	"github.com/JaimeStill/geoassign/pkg/storage/storagetest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// draws renders n posterior draws around (lat, lon) in SCAT's text format,
// acceptance-rate trailer included.
func draws(n int, lat, lon float64) []byte {
	rng := rand.New(rand.NewPCG(7, 11))
	var b strings.Builder
	for range n {
		fmt.Fprintf(&b, "%.6f %.6f\n", lat+rng.NormFloat64()*0.5, lon+rng.NormFloat64()*0.5)
	}
	b.WriteString("Acceptance rate 0.37\n")
	return []byte(b.String())
}

type fakeRunner struct {
	mu        sync.Mutex
	requests  []assignment.Request
	posterior []byte
	err       error
}

func (f *fakeRunner) Run(ctx context.Context, req assignment.Request) (*assignment.Output, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if _, err := os.Stat(req.InputPath); err != nil {
		return nil, err
	}

	dir := filepath.Join(req.WorkDir, "output")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, "LegadoSP"), f.posterior, 0o644); err != nil {
		return nil, err
	}
	files, err := assignment.ListFiles(dir)
	if err != nil {
		return nil, err
	}
	return &assignment.Output{
		Dir:           dir,
		PosteriorName: "LegadoSP",
		Posterior:     f.posterior,
		Format:        posterior.SCATOptions(),
		Files:         files,
	}, nil
}

type fixture struct {
	rt     *workflow.Runtime
	store  *storagetest.Memory
	runner *fakeRunner
	params fingerprint.Params
	stages []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:  storagetest.NewMemory(),
		runner: &fakeRunner{posterior: draws(500, -10, -55)},
		params: fingerprint.Params{
			ContentHash: strings.Repeat("ab", 32),
			Species:     " Panthera_Onca ",
			PanelSize:   84,
			Iterations:  100,
			Thin:        100,
			Burn:        100,
		},
	}
	f.store.Put(workflow.GenotypeKey(f.params.ContentHash), []byte("##fileformat=VCFv4.2\n"))

	var mu sync.Mutex
	f.rt = &workflow.Runtime{
		Runner:     f.runner,
		Storage:    f.store,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Density:    density.DefaultOptions(),
		Region:     region.DefaultOptions(),
		Confidence: 0.9,
		Observe: func(stage string, _ time.Duration) {
			mu.Lock()
			f.stages = append(f.stages, stage)
			mu.Unlock()
		},
	}
	return f
}

func TestExecute(t *testing.T) {
	f := newFixture(t)

	res, err := workflow.Execute(context.Background(), f.rt, workflow.Request{Params: f.params})
	require.NoError(t, err)

	fp := fingerprint.New(f.params)
	assert.Equal(t, fp, res.Fingerprint)
	assert.Equal(t, "LegadoSP", res.Posterior)
	assert.Equal(t, 0.9, res.Region.Confidence)
	assert.Equal(t, 500, res.Region.NSamples)
	assert.InDelta(t, -10, res.Region.Center.Lat, 0.2)
	assert.InDelta(t, -55, res.Region.Center.Lon, 0.2)
	assert.True(t, res.Region.Polygon.Contains(-10, -55))
	assert.True(t, res.Region.Polygon.Closed())
	assert.Equal(t, 500, res.Surface.NSamples())

	require.Len(t, f.runner.requests, 1)
	req := f.runner.requests[0]
	assert.Equal(t, "panthera_onca", req.Species)
	assert.Equal(t, 84, req.PanelSize)
	assert.Equal(t, 100, req.Burn)

	_, err = os.Stat(req.WorkDir)
	assert.True(t, os.IsNotExist(err), "temp directory was not removed")

	names := make([]string, len(res.Files))
	for i, fd := range res.Files {
		names[i] = fd.Name
	}
	assert.Equal(t, []string{"LegadoSP", workflow.RegionFile}, names)

	assert.Equal(t, []string{
		workflow.GenotypeKey(f.params.ContentHash),
		workflow.ArtifactKey(fp, "LegadoSP"),
		workflow.ArtifactKey(fp, workflow.RegionFile),
	}, f.store.Keys())

	stored, ok := f.store.Get(workflow.ArtifactKey(fp, workflow.RegionFile))
	require.True(t, ok)
	want, err := json.Marshal(res.Region)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(stored))

	assert.Equal(t, []string{"download", "assign", "ingest", "estimate", "extract", "publish"}, f.stages)

	jr := res.JobResult()
	assert.Same(t, res.Region, jr.Region)
	assert.Equal(t, "LegadoSP", jr.Posterior)
}

func TestExecuteConfidence(t *testing.T) {
	f := newFixture(t)

	res, err := workflow.Execute(context.Background(), f.rt, workflow.Request{Params: f.params, Confidence: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 0.5, res.Region.Confidence)
}

func TestExecuteDeterministic(t *testing.T) {
	f := newFixture(t)

	a, err := workflow.Execute(context.Background(), f.rt, workflow.Request{Params: f.params})
	require.NoError(t, err)
	b, err := workflow.Execute(context.Background(), f.rt, workflow.Request{Params: f.params})
	require.NoError(t, err)

	ja, err := json.Marshal(a.Region)
	require.NoError(t, err)
	jb, err := json.Marshal(b.Region)
	require.NoError(t, err)
	assert.Equal(t, string(ja), string(jb))
}

func TestExecuteFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
		is    error
		kind  fingerprint.Kind
	}{
		{
			name:  "missing genotype",
			setup: func(f *fixture) { f.params.ContentHash = strings.Repeat("cd", 32) },
			is:    workflow.ErrGenotypeNotFound,
			kind:  fingerprint.KindInvalidInput,
		},
		{
			name: "tool failure",
			setup: func(f *fixture) {
				f.runner.err = &assignment.ToolError{ExitCode: 1, Stderr: "invalid panel size"}
			},
			is:   assignment.ErrToolFailure,
			kind: fingerprint.KindAssignmentToolFailure,
		},
		{
			name: "invalid genotype file",
			setup: func(f *fixture) {
				f.runner.err = fmt.Errorf("convert genotypes: %w: no variant records", assignment.ErrInvalidInput)
			},
			is:   assignment.ErrInvalidInput,
			kind: fingerprint.KindInvalidInput,
		},
		{
			name: "unknown species",
			setup: func(f *fixture) {
				f.runner.err = fmt.Errorf("%w: %q", assignment.ErrUnknownSpecies, "felis_nigripes")
			},
			is:   assignment.ErrUnknownSpecies,
			kind: fingerprint.KindInvalidInput,
		},
		{
			name:  "timeout",
			setup: func(f *fixture) { f.runner.err = fmt.Errorf("%w after 30m", assignment.ErrTimeout) },
			is:    assignment.ErrTimeout,
			kind:  fingerprint.KindInferenceTimeout,
		},
		{
			name:  "malformed output",
			setup: func(f *fixture) { f.runner.posterior = []byte("no samples here\nat all\n") },
			is:    posterior.ErrMalformedOutput,
			kind:  fingerprint.KindMalformedOutput,
		},
		{
			name:  "insufficient samples",
			setup: func(f *fixture) { f.runner.posterior = draws(10, -10, -55) },
			is:    density.ErrInsufficientSamples,
			kind:  fingerprint.KindInsufficientSamples,
		},
		{
			name:  "publish",
			setup: func(f *fixture) { f.store.FailUpload = errors.New("service unavailable") },
			is:    workflow.ErrPublishFailed,
			kind:  fingerprint.KindPublishFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			_, err := workflow.Execute(context.Background(), f.rt, workflow.Request{Params: f.params})
			require.ErrorIs(t, err, tt.is)
			assert.Equal(t, tt.kind, fingerprint.Classify(err))
		})
	}
}

func TestLoadSurface(t *testing.T) {
	f := newFixture(t)

	res, err := workflow.Execute(context.Background(), f.rt, workflow.Request{Params: f.params})
	require.NoError(t, err)

	job := &fingerprint.Job{Fingerprint: res.Fingerprint, Posterior: res.Posterior}
	s, err := workflow.LoadSurface(context.Background(), f.rt, job)
	require.NoError(t, err)

	require.Equal(t, res.Surface.Len(), s.Len())
	for i := range s.Len() {
		require.Equal(t, res.Surface.Mass(i), s.Mass(i))
	}

	_, err = workflow.LoadSurface(context.Background(), f.rt, &fingerprint.Job{Fingerprint: res.Fingerprint})
	assert.ErrorIs(t, err, workflow.ErrPosteriorMissing)

	job.Posterior = "missing"
	_, err = workflow.LoadSurface(context.Background(), f.rt, job)
	assert.ErrorIs(t, err, workflow.ErrPosteriorMissing)
}
