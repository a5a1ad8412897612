package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/JaimeStill/geoassign/internal/fingerprint"
	"github.com/JaimeStill/geoassign/internal/workflow"
	"github.com/JaimeStill/geoassign/pkg/handlers"
	"github.com/JaimeStill/geoassign/pkg/routes"
	"github.com/JaimeStill/geoassign/pkg/storage"
)

// artifactHandler serves the result files a job published to storage.
type artifactHandler struct {
	store       storage.System
	logger      *slog.Logger
	maxListSize int32
}

func newArtifactHandler(
	store storage.System,
	logger *slog.Logger,
	maxListSize int32,
) *artifactHandler {
	return &artifactHandler{
		store:       store,
		logger:      logger.With("handler", "artifacts"),
		maxListSize: maxListSize,
	}
}

func (h *artifactHandler) routes() routes.Group {
	return routes.Group{
		Prefix: "/artifacts/{fingerprint}",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.list},
			{Method: "GET", Pattern: "/{name}", Handler: h.download},
		},
	}
}

func (h *artifactHandler) list(w http.ResponseWriter, r *http.Request) {
	fp, ok := h.fingerprint(w, r)
	if !ok {
		return
	}

	maxResults, err := storage.ParseMaxResults(
		r.URL.Query().Get("max_results"),
		h.maxListSize,
	)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	prefix := workflow.ArtifactPrefix(fp)
	result, err := h.store.List(r.Context(), prefix, r.URL.Query().Get("marker"), maxResults)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	for i := range result.Blobs {
		result.Blobs[i].Key = strings.TrimPrefix(result.Blobs[i].Key, prefix)
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

func (h *artifactHandler) download(w http.ResponseWriter, r *http.Request) {
	fp, ok := h.fingerprint(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")

	result, err := h.store.Download(r.Context(), workflow.ArtifactKey(fp, name))
	if err != nil {
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(err), err)
		return
	}
	defer result.Body.Close()

	contentType := result.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)

	if result.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(result.ContentLength, 10))
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, result.Body); err != nil {
		h.logger.Warn("artifact stream interrupted", "fingerprint", fp, "name", name, "error", err)
	}
}

func (h *artifactHandler) fingerprint(w http.ResponseWriter, r *http.Request) (fingerprint.Fingerprint, bool) {
	fp := fingerprint.Fingerprint(strings.ToLower(r.PathValue("fingerprint")))
	if !fp.Valid() {
		handlers.RespondError(w, h.logger, http.StatusBadRequest,
			fmt.Errorf("%w: fingerprint %q", fingerprint.ErrInvalidParam, r.PathValue("fingerprint")))
		return "", false
	}
	return fp, true
}
