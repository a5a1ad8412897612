package middleware_test

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/JaimeStill/geoassign/pkg/middleware"
)

func TestChainOrder(t *testing.T) {
	var order []string
	var chain middleware.Chain

	for _, name := range []string{"first", "second"} {
		chain.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		})
	}

	handler := chain.Then(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if strings.Join(order, ",") != "first,second,handler" {
		t.Errorf("order: got %v, want [first second handler]", order)
	}
}

func TestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := middleware.Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/inference", nil))

	out := buf.String()
	for _, want := range []string{"method=POST", "uri=/inference", "status=202"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}

func TestRecover(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := middleware.Recover(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	cfg := &middleware.CORSConfig{
		Enabled:        true,
		Origins:        []string{"http://example.com"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         3600,
	}

	var reached bool
	handler := middleware.CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name        string
		method      string
		origin      string
		preflight   bool
		wantOrigin  string
		wantExpose  string
		wantMethods string
		wantStatus  int
		wantReached bool
	}{
		{"allowed", "GET", "http://example.com", false, "http://example.com", "Content-Disposition", "", 200, true},
		{"disallowed", "GET", "http://evil.com", false, "", "", "", 200, true},
		{"no origin", "GET", "", false, "", "", "", 200, true},
		{"preflight", "OPTIONS", "http://example.com", true, "http://example.com", "", "GET, POST, DELETE", 204, false},
		{"disallowed preflight", "OPTIONS", "http://evil.com", true, "", "", "", 200, true},
		{"plain options", "OPTIONS", "http://example.com", false, "http://example.com", "Content-Disposition", "", 200, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached = false
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, "/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", "DELETE")
			}
			handler.ServeHTTP(rec, req)

			h := rec.Header()
			if got := h.Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("allow-origin: got %q, want %q", got, tt.wantOrigin)
			}
			if got := h.Get("Access-Control-Expose-Headers"); got != tt.wantExpose {
				t.Errorf("expose-headers: got %q, want %q", got, tt.wantExpose)
			}
			if got := h.Get("Access-Control-Allow-Methods"); got != tt.wantMethods {
				t.Errorf("allow-methods: got %q, want %q", got, tt.wantMethods)
			}
			if h.Get("Vary") != "Origin" {
				t.Errorf("vary: got %q, want Origin", h.Get("Vary"))
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("status: got %d, want %d", rec.Code, tt.wantStatus)
			}
			if reached != tt.wantReached {
				t.Errorf("handler reached: got %v, want %v", reached, tt.wantReached)
			}
		})
	}

	cfg.Enabled = false
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "http://example.com")
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" || rec.Header().Get("Vary") != "" {
		t.Error("CORS headers should not be set when disabled")
	}
}

func TestCORSConfigEnv(t *testing.T) {
	t.Setenv("TEST_CORS_ENABLED", "true")
	t.Setenv("TEST_CORS_ORIGINS", "http://a.example, ,http://b.example")

	var cfg middleware.CORSConfig
	if err := cfg.Finalize(&middleware.CORSEnv{
		Enabled: "TEST_CORS_ENABLED",
		Origins: "TEST_CORS_ORIGINS",
	}); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	if !cfg.Enabled {
		t.Error("enabled should be true")
	}
	if len(cfg.Origins) != 2 || cfg.Origins[1] != "http://b.example" {
		t.Errorf("origins: got %v", cfg.Origins)
	}
	if cfg.MaxAge != 3600 {
		t.Errorf("max_age: got %d, want 3600", cfg.MaxAge)
	}
	if !slices.Contains(cfg.AllowedMethods, "DELETE") {
		t.Errorf("allowed_methods: got %v, want DELETE included", cfg.AllowedMethods)
	}
	if !slices.Contains(cfg.ExposedHeaders, "Content-Disposition") {
		t.Errorf("exposed_headers: got %v", cfg.ExposedHeaders)
	}
}
