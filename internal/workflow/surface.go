package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/JaimeStill/geoassign/internal/density"
	"github.com/JaimeStill/geoassign/internal/fingerprint"
	"github.com/JaimeStill/geoassign/internal/posterior"
	"github.com/JaimeStill/geoassign/pkg/storage"
)

// LoadSurface rebuilds a completed job's density surface from the raw
// posterior output stored under its fingerprint.
func LoadSurface(ctx context.Context, rt *Runtime, job *fingerprint.Job) (*density.Surface, error) {
	if job.Posterior == "" {
		return nil, fmt.Errorf("%w: %s", ErrPosteriorMissing, job.Fingerprint)
	}

	key := ArtifactKey(job.Fingerprint, job.Posterior)
	blob, err := rt.Storage.Download(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPosteriorMissing, key)
		}
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	defer blob.Body.Close()

	samples, err := posterior.Parse(blob.Body, posterior.SCATOptions())
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", key, err)
	}

	return density.Estimate(ctx, samples, rt.Density)
}
