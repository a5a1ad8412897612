// Package workflow runs the inference pipeline for one fingerprint:
// download → assign → ingest → estimate → extract → publish.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/geoassign/internal/assignment"
	"github.com/JaimeStill/geoassign/internal/density"
	"github.com/JaimeStill/geoassign/internal/fingerprint"
	"github.com/JaimeStill/geoassign/internal/posterior"
	"github.com/JaimeStill/geoassign/internal/region"
	"github.com/JaimeStill/geoassign/pkg/storage"
)

const genotypeInput = "input.vcf"

// Request identifies the run and the confidence of the region it publishes.
type Request struct {
	Params     fingerprint.Params
	Confidence float64
}

// Result is the outcome of a successful pipeline run.
type Result struct {
	Fingerprint fingerprint.Fingerprint
	Region      *region.CredibleRegion
	Surface     *density.Surface
	Files       []assignment.FileDescriptor
	Posterior   string
	CompletedAt time.Time
}

// JobResult converts r into what the fingerprint cache publishes.
func (r *Result) JobResult() *fingerprint.Result {
	return &fingerprint.Result{
		Region:    r.Region,
		Files:     r.Files,
		Posterior: r.Posterior,
	}
}

// Execute runs the pipeline for req. It works in a temp directory that is
// removed before returning, and uploads every output file plus the region
// under results/<fingerprint>/.
func Execute(ctx context.Context, rt *Runtime, req Request) (*Result, error) {
	fp := fingerprint.New(req.Params)
	confidence := req.Confidence
	if confidence == 0 {
		confidence = rt.Confidence
	}

	tempDir, err := os.MkdirTemp("", "geoassign-infer-*")
	if err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	logger := rt.Logger.With("workflow", "inference", "fingerprint", fp)

	inputPath := filepath.Join(tempDir, genotypeInput)
	if err := stage(rt, "download", func() error {
		return download(ctx, rt.Storage, GenotypeKey(req.Params.ContentHash), inputPath)
	}); err != nil {
		return nil, err
	}

	var out *assignment.Output
	if err := stage(rt, "assign", func() error {
		out, err = rt.Runner.Run(ctx, assignment.Request{
			InputPath:  inputPath,
			WorkDir:    tempDir,
			Species:    strings.ToLower(strings.TrimSpace(req.Params.Species)),
			PanelSize:  req.Params.PanelSize,
			Iterations: req.Params.Iterations,
			Thin:       req.Params.Thin,
			Burn:       req.Params.Burn,
		})
		return err
	}); err != nil {
		return nil, err
	}

	var samples []posterior.Sample
	if err := stage(rt, "ingest", func() error {
		samples, err = posterior.Parse(bytes.NewReader(out.Posterior), out.Format)
		return err
	}); err != nil {
		return nil, err
	}

	var surface *density.Surface
	if err := stage(rt, "estimate", func() error {
		surface, err = density.Estimate(ctx, samples, rt.Density)
		return err
	}); err != nil {
		return nil, err
	}

	var cr *region.CredibleRegion
	if err := stage(rt, "extract", func() error {
		cr, err = region.Extract(surface, confidence, rt.Region)
		return err
	}); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "region extracted",
		"samples", len(samples),
		"confidence", confidence,
		"vertices", len(cr.Polygon),
		"cell_mass", cr.CellMass(),
	)

	var files []assignment.FileDescriptor
	if err := stage(rt, "publish", func() error {
		files, err = publish(ctx, rt.Storage, fp, out, cr)
		return err
	}); err != nil {
		return nil, err
	}

	return &Result{
		Fingerprint: fp,
		Region:      cr,
		Surface:     surface,
		Files:       files,
		Posterior:   out.PosteriorName,
		CompletedAt: time.Now().UTC(),
	}, nil
}

func stage(rt *Runtime, name string, fn func() error) error {
	defer rt.observe(name, time.Now())
	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func download(ctx context.Context, store storage.System, key, dst string) error {
	blob, err := store.Download(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &kindError{fingerprint.KindInvalidInput, fmt.Errorf("%w: %s", ErrGenotypeNotFound, key)}
		}
		return fmt.Errorf("download %s: %w", key, err)
	}
	defer blob.Body.Close()

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(dst), err)
	}
	if _, err := io.Copy(f, blob.Body); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(dst), err)
	}
	return f.Close()
}

// publish writes the region next to the tool output and uploads the whole
// output directory. The returned descriptors include the region file.
func publish(
	ctx context.Context,
	store storage.System,
	fp fingerprint.Fingerprint,
	out *assignment.Output,
	cr *region.CredibleRegion,
) ([]assignment.FileDescriptor, error) {
	data, err := json.Marshal(cr)
	if err != nil {
		return nil, fmt.Errorf("encode region: %w", err)
	}
	if err := os.WriteFile(filepath.Join(out.Dir, RegionFile), data, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", RegionFile, err)
	}

	files, err := assignment.ListFiles(out.Dir)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(len(files)))

	for _, fd := range files {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			return upload(gctx, store, filepath.Join(out.Dir, fd.Name), ArtifactKey(fp, fd.Name))
		})
	}

	if err := g.Wait(); err != nil {
		return nil, &kindError{fingerprint.KindPublishFailure, fmt.Errorf("%w: %w", ErrPublishFailed, err)}
	}
	return files, nil
}

func upload(ctx context.Context, store storage.System, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	if err := store.Upload(ctx, key, f, contentType(path)); err != nil {
		return fmt.Errorf("upload %s: %w", filepath.Base(path), err)
	}
	return nil
}

func contentType(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".json") {
		return "application/json"
	}
	return "text/plain; charset=utf-8"
}

func workerCount(n int) int {
	return max(min(runtime.NumCPU(), n), 1)
}
