package inference

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/geoassign/internal/fingerprint"
	"github.com/JaimeStill/geoassign/internal/region"
	"github.com/JaimeStill/geoassign/internal/uploads"
)

// Domain errors for inference operations.
var (
	ErrUploadNotFound = errors.New("genotype upload not found")
	ErrNotCompleted   = errors.New("inference job has not completed")
	ErrInvalidRequest = errors.New("invalid inference request")
)

// MapHTTPStatus maps inference domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUploadNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotCompleted):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, uploads.ErrInvalidHash),
		errors.Is(err, region.ErrInvalidConfidence):
		return http.StatusBadRequest
	default:
		return fingerprint.MapHTTPStatus(err)
	}
}
