package inference

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/JaimeStill/geoassign/pkg/handlers"
	"github.com/JaimeStill/geoassign/pkg/pagination"
	"github.com/JaimeStill/geoassign/pkg/routes"
)

// Handler provides HTTP endpoints for inference jobs.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "inference"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for inference endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/inference",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "POST", Pattern: "", Handler: h.Submit},
			{Method: "POST", Pattern: "/run", Handler: h.Run},
			{Method: "GET", Pattern: "/{fingerprint}", Handler: h.Find},
			{Method: "GET", Pattern: "/{fingerprint}/region", Handler: h.Region},
			{Method: "POST", Pattern: "/{fingerprint}/rerun", Handler: h.Rerun},
		},
	}
}

// List returns a page of jobs filtered by the status and species query parameters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Submit accepts a SubmitCommand and answers 202 with the job before it runs.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var cmd SubmitCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		return
	}

	job, err := h.sys.Submit(r.Context(), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, job)
}

// Run accepts a SubmitCommand and answers once the job reaches a terminal state.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	var cmd SubmitCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		return
	}

	job, err := h.sys.Run(r.Context(), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, job)
}

// Find returns the job for the fingerprint path parameter.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	job, err := h.sys.Find(r.Context(), r.PathValue("fingerprint"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, job)
}

// Region returns the job's credible region at the optional confidence
// query parameter.
func (h *Handler) Region(w http.ResponseWriter, r *http.Request) {
	var confidence float64
	if s := r.URL.Query().Get("confidence"); s != "" {
		c, err := strconv.ParseFloat(s, 64)
		if err != nil {
			handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: confidence %q", ErrInvalidRequest, s))
			return
		}
		confidence = c
	}

	view, err := h.sys.Region(r.Context(), r.PathValue("fingerprint"), confidence)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, view)
}

// Rerun requeues a terminal job and answers 202.
func (h *Handler) Rerun(w http.ResponseWriter, r *http.Request) {
	job, err := h.sys.Rerun(r.Context(), r.PathValue("fingerprint"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, job)
}
