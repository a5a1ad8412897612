package fingerprint

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/geoassign/internal/assignment"
	"github.com/JaimeStill/geoassign/internal/density"
	"github.com/JaimeStill/geoassign/internal/posterior"
	"github.com/JaimeStill/geoassign/internal/region"
)

// Status is the lifecycle state of an inference job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition happens without a rerun.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Kind names why a job failed.
type Kind string

const (
	KindMalformedOutput              Kind = "malformed_output"
	KindEmptySampleSet               Kind = "empty_sample_set"
	KindOutOfRangeCoordinate         Kind = "out_of_range_coordinate"
	KindInsufficientSamples          Kind = "insufficient_samples"
	KindDegenerateSampleDistribution Kind = "degenerate_sample_distribution"
	KindRegionExtractionFailure      Kind = "region_extraction_failure"
	KindAssignmentToolFailure        Kind = "assignment_tool_failure"
	KindInferenceTimeout             Kind = "inference_timeout"
	KindCancelled                    Kind = "cancelled"
	KindInvalidInput                 Kind = "invalid_input"
	KindPublishFailure               Kind = "publish_failure"
	KindInternal                     Kind = "internal"
)

// Kinder is implemented by errors that carry their own failure kind, for
// packages the kind table cannot import.
type Kinder interface {
	FailureKind() Kind
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{posterior.ErrMalformedOutput, KindMalformedOutput},
	{posterior.ErrEmptySampleSet, KindEmptySampleSet},
	{posterior.ErrOutOfRangeCoordinate, KindOutOfRangeCoordinate},
	{density.ErrInsufficientSamples, KindInsufficientSamples},
	{density.ErrDegenerateSampleDistribution, KindDegenerateSampleDistribution},
	{region.ErrRegionExtractionFailure, KindRegionExtractionFailure},
	{assignment.ErrToolFailure, KindAssignmentToolFailure},
	{assignment.ErrMissingOutput, KindAssignmentToolFailure},
	{assignment.ErrInvalidInput, KindInvalidInput},
	{assignment.ErrUnknownSpecies, KindInvalidInput},
	{assignment.ErrTimeout, KindInferenceTimeout},
	{context.DeadlineExceeded, KindInferenceTimeout},
	{assignment.ErrCancelled, KindCancelled},
	{context.Canceled, KindCancelled},
}

// Classify maps an error from the inference pipeline to its failure kind.
// Known sentinels win over a Kinder in the chain, so a cancellation during a
// later stage still reports KindCancelled. Unrecognized errors are
// KindInternal.
func Classify(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	var k Kinder
	if errors.As(err, &k) {
		return k.FailureKind()
	}
	return KindInternal
}

// Failure records why a job failed.
type Failure struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Result is what a successful computation publishes.
type Result struct {
	Region *region.CredibleRegion
	Files  []assignment.FileDescriptor
	// Posterior names the file in Files holding the raw posterior draws.
	Posterior string
}

// Job is a published snapshot of an inference run. Snapshots are never
// modified once published; every transition publishes a new one.
type Job struct {
	ID          uuid.UUID                   `json:"id"`
	Fingerprint Fingerprint                 `json:"fingerprint"`
	Params      Params                      `json:"params"`
	Status      Status                      `json:"status"`
	Failure     *Failure                    `json:"failure,omitempty"`
	Region      *region.CredibleRegion      `json:"region,omitempty"`
	Files       []assignment.FileDescriptor `json:"files"`
	Posterior   string                      `json:"posterior,omitempty"`
	CreatedAt   time.Time                   `json:"created_at"`
	StartedAt   *time.Time                  `json:"started_at,omitempty"`
	CompletedAt *time.Time                  `json:"completed_at,omitempty"`
}

func newJob(fp Fingerprint, p Params, now time.Time) *Job {
	return &Job{
		ID:          uuid.New(),
		Fingerprint: fp,
		Params:      p,
		Status:      StatusPending,
		Files:       []assignment.FileDescriptor{},
		CreatedAt:   now,
	}
}

// pending returns a fresh Pending snapshot that keeps the job identity.
func (j *Job) pending(p Params) *Job {
	return &Job{
		ID:          j.ID,
		Fingerprint: j.Fingerprint,
		Params:      p,
		Status:      StatusPending,
		Files:       []assignment.FileDescriptor{},
		CreatedAt:   j.CreatedAt,
	}
}

func (j *Job) running(now time.Time) *Job {
	next := *j
	next.Status = StatusRunning
	next.StartedAt = &now
	return &next
}

func (j *Job) completed(res *Result, now time.Time) *Job {
	next := *j
	next.Status = StatusCompleted
	next.Region = res.Region
	next.Posterior = res.Posterior
	if res.Files != nil {
		next.Files = res.Files
	}
	next.CompletedAt = &now
	return &next
}

func (j *Job) failed(err error, now time.Time) *Job {
	next := *j
	next.Status = StatusFailed
	next.Failure = &Failure{Kind: Classify(err), Message: err.Error()}
	next.CompletedAt = &now
	return &next
}
