package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/JaimeStill/geoassign/internal/density"
	"github.com/JaimeStill/geoassign/internal/region"
)

const (
	EnvRegionConfidence       = "GEOASSIGN_REGION_CONFIDENCE"
	EnvRegionResolution       = "GEOASSIGN_REGION_RESOLUTION"
	EnvRegionMinSamples       = "GEOASSIGN_REGION_MIN_SAMPLES"
	EnvRegionMarginBandwidths = "GEOASSIGN_REGION_MARGIN_BANDWIDTHS"
	EnvRegionPolicy           = "GEOASSIGN_REGION_POLICY"

	EnvInferenceWorkers        = "GEOASSIGN_INFERENCE_WORKERS"
	EnvInferenceRegionCacheTTL = "GEOASSIGN_INFERENCE_REGION_CACHE_TTL"
	EnvInferenceSurfaceCache   = "GEOASSIGN_INFERENCE_SURFACE_CACHE_TTL"
)

// RegionConfig tunes density estimation and credible region extraction.
type RegionConfig struct {
	Confidence       float64 `toml:"confidence"`
	Resolution       int     `toml:"resolution"`
	MinSamples       int     `toml:"min_samples"`
	MarginBandwidths float64 `toml:"margin_bandwidths"`
	Policy           string  `toml:"policy"`
}

// DensityOptions returns the estimator options this config describes.
func (c *RegionConfig) DensityOptions() density.Options {
	return density.Options{
		MinSamples:       c.MinSamples,
		Resolution:       c.Resolution,
		MarginBandwidths: c.MarginBandwidths,
	}
}

// RegionOptions returns the extraction options this config describes.
func (c *RegionConfig) RegionOptions() region.Options {
	p, _ := region.ParsePolicy(c.Policy)
	return region.Options{Policy: p}
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *RegionConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *RegionConfig) Merge(overlay *RegionConfig) {
	if overlay.Confidence != 0 {
		c.Confidence = overlay.Confidence
	}
	if overlay.Resolution != 0 {
		c.Resolution = overlay.Resolution
	}
	if overlay.MinSamples != 0 {
		c.MinSamples = overlay.MinSamples
	}
	if overlay.MarginBandwidths != 0 {
		c.MarginBandwidths = overlay.MarginBandwidths
	}
	mergeString(&c.Policy, overlay.Policy)
}

func (c *RegionConfig) loadDefaults() {
	d := density.DefaultOptions()
	if c.Confidence == 0 {
		c.Confidence = 0.9
	}
	if c.Resolution == 0 {
		c.Resolution = d.Resolution
	}
	if c.MinSamples == 0 {
		c.MinSamples = d.MinSamples
	}
	if c.MarginBandwidths == 0 {
		c.MarginBandwidths = d.MarginBandwidths
	}
	if c.Policy == "" {
		c.Policy = string(region.PolicyConvexHull)
	}
}

func (c *RegionConfig) loadEnv() {
	envFloat(EnvRegionConfidence, &c.Confidence)
	envInt(EnvRegionResolution, &c.Resolution)
	envInt(EnvRegionMinSamples, &c.MinSamples)
	envFloat(EnvRegionMarginBandwidths, &c.MarginBandwidths)
	envString(EnvRegionPolicy, &c.Policy)
}

func (c *RegionConfig) validate() error {
	if c.Confidence <= 0 || c.Confidence >= 1 {
		return fmt.Errorf("invalid confidence %v: must be in (0, 1)", c.Confidence)
	}
	if c.Resolution < 2 || c.Resolution > density.MaxResolution {
		return fmt.Errorf("invalid resolution %d: must be between 2 and %d", c.Resolution, density.MaxResolution)
	}
	if c.MinSamples < 2 {
		return fmt.Errorf("invalid min_samples %d: must be at least 2", c.MinSamples)
	}
	if c.MarginBandwidths < 0 {
		return fmt.Errorf("invalid margin_bandwidths %v", c.MarginBandwidths)
	}
	if _, err := region.ParsePolicy(c.Policy); err != nil {
		return err
	}
	return nil
}

// InferenceConfig bounds background work and sizes the result caches.
type InferenceConfig struct {
	Workers         int    `toml:"workers"`
	RegionCacheTTL  string `toml:"region_cache_ttl"`
	SurfaceCacheTTL string `toml:"surface_cache_ttl"`
}

func (c *InferenceConfig) RegionCacheTTLDuration() time.Duration  { return duration(c.RegionCacheTTL) }
func (c *InferenceConfig) SurfaceCacheTTLDuration() time.Duration { return duration(c.SurfaceCacheTTL) }

// Finalize applies defaults, environment variable overrides, and validation.
func (c *InferenceConfig) Finalize() error {
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.RegionCacheTTL == "" {
		c.RegionCacheTTL = "1h"
	}
	if c.SurfaceCacheTTL == "" {
		c.SurfaceCacheTTL = "15m"
	}

	envInt(EnvInferenceWorkers, &c.Workers)
	envString(EnvInferenceRegionCacheTTL, &c.RegionCacheTTL)
	envString(EnvInferenceSurfaceCache, &c.SurfaceCacheTTL)

	if c.Workers < 1 {
		return fmt.Errorf("invalid workers %d: must be positive", c.Workers)
	}
	return validateDurations(map[string]string{
		"region_cache_ttl":  c.RegionCacheTTL,
		"surface_cache_ttl": c.SurfaceCacheTTL,
	})
}

// Merge overwrites non-zero fields from overlay.
func (c *InferenceConfig) Merge(overlay *InferenceConfig) {
	if overlay.Workers != 0 {
		c.Workers = overlay.Workers
	}
	mergeString(&c.RegionCacheTTL, overlay.RegionCacheTTL)
	mergeString(&c.SurfaceCacheTTL, overlay.SurfaceCacheTTL)
}
