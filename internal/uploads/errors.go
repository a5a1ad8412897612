package uploads

import (
	"errors"
	"net/http"
)

// Domain errors for upload operations.
var (
	ErrNotFound     = errors.New("upload not found")
	ErrDuplicate    = errors.New("upload already exists")
	ErrFileTooLarge = errors.New("file exceeds maximum upload size")
	ErrInvalidFile  = errors.New("invalid file")
	ErrInvalidHash  = errors.New("invalid content hash")
)

// MapHTTPStatus maps upload domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrInvalidFile), errors.Is(err, ErrInvalidHash):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
