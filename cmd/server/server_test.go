package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/geoassign/internal/config"
	"github.com/JaimeStill/geoassign/internal/infrastructure"
)

const azurite = "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;AccountKey=a2V5;BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;"

func newRouter(t *testing.T) (*infrastructure.Infrastructure, http.Handler) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Storage.ConnectionString = azurite
	require.NoError(t, cfg.Finalize())

	infra, err := infrastructure.NewWithWriter(cfg, &bytes.Buffer{})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, infra.Lifecycle.Shutdown(5*time.Second))
	})

	modules, err := NewModules(infra, cfg)
	require.NoError(t, err)

	router := buildRouter(infra)
	modules.Mount(router)
	return infra, router
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", target, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	_, router := newRouter(t)

	rec := get(router, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReadyz(t *testing.T) {
	infra, router := newRouter(t)

	rec := get(router, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// With no subsystem started, startup completes at once and no checker
	// is registered.
	infra.Lifecycle.WaitForStartup()
	rec = get(router, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestMetrics(t *testing.T) {
	_, router := newRouter(t)

	rec := get(router, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
	assert.Contains(t, rec.Body.String(), "geoassign_inference_active_jobs")
}

func TestAPIMounted(t *testing.T) {
	_, router := newRouter(t)

	rec := get(router, "/api/inference/not-a-fingerprint")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
