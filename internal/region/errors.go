package region

import "errors"

// Sentinel errors for credible region extraction.
var (
	ErrInvalidConfidence       = errors.New("confidence must lie strictly between 0 and 1")
	ErrRegionExtractionFailure = errors.New("density mass never reached the requested confidence")
	ErrUnknownPolicy           = errors.New("unknown disconnected region policy")
)
