package workflow

import (
	"errors"

	"github.com/JaimeStill/geoassign/internal/fingerprint"
)

// Sentinel errors for pipeline operations.
var (
	ErrGenotypeNotFound = errors.New("genotype upload not found")
	ErrPublishFailed    = errors.New("failed to publish result artifacts")
	ErrPosteriorMissing = errors.New("job has no stored posterior output")
)

// kindError tags a pipeline error with the failure kind recorded on the job.
type kindError struct {
	kind fingerprint.Kind
	err  error
}

func (e *kindError) Error() string                 { return e.err.Error() }
func (e *kindError) Unwrap() error                 { return e.err }
func (e *kindError) FailureKind() fingerprint.Kind { return e.kind }
