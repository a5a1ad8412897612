package handlers_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JaimeStill/geoassign/pkg/handlers"
)

func TestRespondJSON(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		data       any
		wantStatus int
	}{
		{
			name:       "200 with map",
			status:     http.StatusOK,
			data:       map[string]string{"key": "value"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "202 with struct",
			status:     http.StatusAccepted,
			data:       struct{ Status string }{Status: "pending"},
			wantStatus: http.StatusAccepted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handlers.RespondJSON(rec, tt.status, tt.data)

			res := rec.Result()
			defer res.Body.Close()

			if res.StatusCode != tt.wantStatus {
				t.Errorf("status: got %d, want %d", res.StatusCode, tt.wantStatus)
			}
			if ct := res.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("content-type: got %s", ct)
			}

			body, _ := io.ReadAll(res.Body)
			var parsed map[string]any
			if err := json.Unmarshal(body, &parsed); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
		})
	}
}

func TestRespondError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	for _, status := range []int{http.StatusBadRequest, http.StatusInternalServerError} {
		rec := httptest.NewRecorder()
		handlers.RespondError(rec, logger, status, errors.New("invalid panel size"))

		res := rec.Result()
		if res.StatusCode != status {
			t.Errorf("status: got %d, want %d", res.StatusCode, status)
		}

		var parsed map[string]string
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		res.Body.Close()

		if parsed["error"] != "invalid panel size" {
			t.Errorf("error: got %s, want invalid panel size", parsed["error"])
		}
	}
}
