package fingerprint

import (
	"errors"
	"net/http"
)

// Domain errors for fingerprinted jobs.
var (
	ErrNotFound     = errors.New("inference job not found")
	ErrInFlight     = errors.New("inference job is already pending or running")
	ErrInvalidParam = errors.New("invalid inference parameter")
)

// MapHTTPStatus maps fingerprint domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrInFlight) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrInvalidParam) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
