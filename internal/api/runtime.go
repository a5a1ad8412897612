package api

import (
	"github.com/JaimeStill/geoassign/internal/assignment"
	"github.com/JaimeStill/geoassign/internal/config"
	"github.com/JaimeStill/geoassign/internal/infrastructure"
	"github.com/JaimeStill/geoassign/internal/workflow"
	"github.com/JaimeStill/geoassign/pkg/pagination"
)

// Runtime extends Infrastructure with API-specific configuration and the
// pipeline runtime shared by the inference domain.
type Runtime struct {
	*infrastructure.Infrastructure
	Pagination pagination.Config
	Workflow   *workflow.Runtime
}

// NewRuntime creates an API runtime with a module-scoped logger.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	logger := infra.Logger.With("module", "api")

	exec := assignment.NewExecutor(
		cfg.Assignment.SpawnRetries,
		cfg.Assignment.SpawnBackoffDuration(),
		logger,
	)

	densityOpts := cfg.Region.DensityOptions()
	densityOpts.Workers = cfg.Inference.Workers

	return &Runtime{
		Infrastructure: &infrastructure.Infrastructure{
			Lifecycle: infra.Lifecycle,
			Logger:    logger,
			Metrics:   infra.Metrics,
			Database:  infra.Database,
			Storage:   infra.Storage,
		},
		Pagination: cfg.API.Pagination,
		Workflow: &workflow.Runtime{
			Runner:     assignment.NewSCAT(&cfg.Assignment, exec, logger),
			Storage:    infra.Storage,
			Logger:     logger,
			Density:    densityOpts,
			Region:     cfg.Region.RegionOptions(),
			Confidence: cfg.Region.Confidence,
			Observe:    infra.Metrics.Inference.ObserveStage,
		},
	}
}
