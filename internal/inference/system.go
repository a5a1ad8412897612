package inference

import (
	"context"
	"fmt"
	"strings"

	"github.com/JaimeStill/geoassign/internal/assignment"
	"github.com/JaimeStill/geoassign/internal/fingerprint"
	"github.com/JaimeStill/geoassign/internal/region"
	"github.com/JaimeStill/geoassign/internal/uploads"
	"github.com/JaimeStill/geoassign/pkg/pagination"
)

// System defines the public contract for inference jobs.
type System interface {
	Handler() *Handler

	// Submit publishes a Pending job and computes it in the background.
	// A job that already exists is returned as is unless cmd.Force is set.
	Submit(ctx context.Context, cmd SubmitCommand) (*fingerprint.Job, error)
	// Run computes the job before returning.
	Run(ctx context.Context, cmd SubmitCommand) (*fingerprint.Job, error)

	Find(ctx context.Context, fp string) (*fingerprint.Job, error)
	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[fingerprint.Job], error)

	// Region returns a completed job's credible region at confidence. Zero
	// selects the region the job published.
	Region(ctx context.Context, fp string, confidence float64) (*RegionView, error)
	// Rerun requeues a terminal job and computes it again in the background.
	Rerun(ctx context.Context, fp string) (*fingerprint.Job, error)
}

// SubmitCommand requests an inference run over an uploaded genotype file.
// Sampler settings left nil take the configured defaults.
type SubmitCommand struct {
	ContentHash string   `json:"content_hash"`
	Species     string   `json:"species"`
	PanelSize   int      `json:"panel_size"`
	Iterations  *int     `json:"iterations,omitempty"`
	Thin        *int     `json:"thin,omitempty"`
	Burn        *int     `json:"burn,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
	Force       bool     `json:"force,omitempty"`
}

// Defaults fills sampler settings a command leaves unset.
type Defaults struct {
	Iterations int
	Thin       int
	Burn       int
}

// DefaultsFrom takes the sampler defaults from the assignment tool config.
func DefaultsFrom(cfg *assignment.Config) Defaults {
	return Defaults{Iterations: cfg.Iterations, Thin: cfg.Thin, Burn: cfg.Burn}
}

// Params normalizes cmd into fingerprint parameters.
func (cmd SubmitCommand) Params(d Defaults) (fingerprint.Params, error) {
	hash, err := uploads.NormalizeHash(cmd.ContentHash)
	if err != nil {
		return fingerprint.Params{}, err
	}

	p := fingerprint.Params{
		ContentHash: hash,
		Species:     strings.ToLower(strings.TrimSpace(cmd.Species)),
		PanelSize:   cmd.PanelSize,
		Iterations:  valueOr(cmd.Iterations, d.Iterations),
		Thin:        valueOr(cmd.Thin, d.Thin),
		Burn:        valueOr(cmd.Burn, d.Burn),
	}
	if err := p.Validate(); err != nil {
		return fingerprint.Params{}, err
	}
	if c := cmd.Confidence; c != nil && (*c <= 0 || *c >= 1) {
		return fingerprint.Params{}, fmt.Errorf("%w: %v", region.ErrInvalidConfidence, *c)
	}
	return p, nil
}

func valueOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}

// RegionView is a credible region with the artifacts of the job behind it.
type RegionView struct {
	Fingerprint fingerprint.Fingerprint     `json:"fingerprint"`
	Region      *region.CredibleRegion      `json:"region"`
	Files       []assignment.FileDescriptor `json:"files"`
}
