package uploads

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/JaimeStill/geoassign/pkg/formatting"
	"github.com/JaimeStill/geoassign/pkg/handlers"
	"github.com/JaimeStill/geoassign/pkg/pagination"
	"github.com/JaimeStill/geoassign/pkg/routes"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

// Handler provides HTTP endpoints for genotype uploads.
type Handler struct {
	sys           System
	logger        *slog.Logger
	pagination    pagination.Config
	maxUploadSize int64
}

// NewHandler creates a Handler with the given system, logger, pagination config, and upload size limit.
func NewHandler(
	sys System,
	logger *slog.Logger,
	pagination pagination.Config,
	maxUploadSize int64,
) *Handler {
	return &Handler{
		sys:           sys,
		logger:        logger.With("handler", "uploads"),
		pagination:    pagination,
		maxUploadSize: maxUploadSize,
	}
}

// Routes returns the route group definition for upload endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/uploads",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "POST", Pattern: "", Handler: h.Upload},
			{Method: "GET", Pattern: "/{hash}", Handler: h.Find},
			{Method: "DELETE", Pattern: "/{hash}", Handler: h.Delete},
		},
	}
}

// List returns a page of uploads, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)

	result, err := h.sys.List(r.Context(), page)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Find returns the upload registered under the hash path parameter.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	u, err := h.sys.Find(r.Context(), r.PathValue("hash"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, u)
}

// Upload stores the multipart "file" field. It answers 201 for new content
// and 200 when the same bytes were uploaded before.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, ErrFileTooLarge)
			return
		}
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidFile)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidFile)
		return
	}
	defer file.Close()

	u, created, err := h.sys.Create(r.Context(), CreateCommand{
		Filename: header.Filename,
		Body:     file,
	})
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.logger.Info("genotype uploaded",
			"content_hash", u.ContentHash,
			"size", formatting.FormatBytes(u.SizeBytes, 1),
		)
	}
	handlers.RespondJSON(w, status, u)
}

// Delete removes the upload and its blob.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.sys.Delete(r.Context(), r.PathValue("hash")); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
