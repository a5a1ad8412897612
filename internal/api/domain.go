package api

import (
	"github.com/JaimeStill/geoassign/internal/config"
	"github.com/JaimeStill/geoassign/internal/inference"
	"github.com/JaimeStill/geoassign/internal/uploads"
	"github.com/JaimeStill/geoassign/pkg/routes"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Uploads   uploads.System
	Inference inference.System

	artifacts   *artifactHandler
	uploadLimit int64
}

// NewDomain creates all domain systems from the API runtime.
func NewDomain(runtime *Runtime, cfg *config.Config) *Domain {
	db := runtime.Database.Connection()

	uploadsSystem := uploads.New(
		db,
		runtime.Storage,
		runtime.Logger,
		runtime.Pagination,
	)

	inferenceSystem := inference.New(
		runtime.Workflow,
		inference.NewRepository(db),
		runtime.Lifecycle,
		runtime.Metrics.Inference,
		inference.Config{
			Workers:         cfg.Inference.Workers,
			Defaults:        inference.DefaultsFrom(&cfg.Assignment),
			RegionCacheTTL:  cfg.Inference.RegionCacheTTLDuration(),
			SurfaceCacheTTL: cfg.Inference.SurfaceCacheTTLDuration(),
			Pagination:      runtime.Pagination,
		},
	)

	return &Domain{
		Uploads:     uploadsSystem,
		Inference:   inferenceSystem,
		artifacts:   newArtifactHandler(runtime.Storage, runtime.Logger, cfg.Storage.MaxListSize),
		uploadLimit: cfg.API.MaxUploadSizeBytes(),
	}
}

// Groups returns the route groups of every domain, relative to the module
// prefix.
func (d *Domain) Groups() []routes.Group {
	return []routes.Group{
		d.Uploads.Handler(d.uploadLimit).Routes(),
		d.Inference.Handler().Routes(),
		d.artifacts.routes(),
	}
}
