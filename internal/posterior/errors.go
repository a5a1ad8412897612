package posterior

import "errors"

// Sentinel errors for posterior output parsing.
var (
	ErrMalformedOutput      = errors.New("malformed assignment output")
	ErrEmptySampleSet       = errors.New("no posterior samples found")
	ErrOutOfRangeCoordinate = errors.New("coordinate out of range")
)
