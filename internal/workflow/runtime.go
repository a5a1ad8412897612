package workflow

import (
	"log/slog"
	"time"

	"github.com/JaimeStill/geoassign/internal/assignment"
	"github.com/JaimeStill/geoassign/internal/density"
	"github.com/JaimeStill/geoassign/internal/region"
	"github.com/JaimeStill/geoassign/pkg/storage"
)

// StageObserver receives the duration of every completed pipeline stage.
type StageObserver func(stage string, d time.Duration)

// Runtime bundles the dependencies the pipeline stages require. It is
// constructed by higher-level composition code from Infrastructure and
// domain configuration.
type Runtime struct {
	Runner  assignment.Runner
	Storage storage.System
	Logger  *slog.Logger

	Density density.Options
	Region  region.Options
	// Confidence is used when a request leaves it unset.
	Confidence float64

	Observe StageObserver
}

func (rt *Runtime) observe(stage string, start time.Time) {
	if rt.Observe != nil {
		rt.Observe(stage, time.Since(start))
	}
}
