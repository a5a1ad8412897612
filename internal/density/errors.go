package density

import "errors"

// Sentinel errors for density estimation.
var (
	ErrInsufficientSamples          = errors.New("insufficient posterior samples for density estimation")
	ErrDegenerateSampleDistribution = errors.New("degenerate posterior sample distribution")
	ErrInvalidResolution            = errors.New("invalid grid resolution")
)
