package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware_PassesThrough(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		statusCode int
		body       string
	}{
		{"200 OK", http.StatusOK, "ok"},
		{"201 Created", http.StatusCreated, "created"},
		{"404 Not Found", http.StatusNotFound, ""},
		{"503 Service Unavailable", http.StatusServiceUnavailable, "down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest("GET", "/ready", nil))

			if w.Code != tt.statusCode {
				t.Errorf("expected status %d, got %d", tt.statusCode, w.Code)
			}
			if w.Body.String() != tt.body {
				t.Errorf("expected body %q, got %q", tt.body, w.Body.String())
			}
		})
	}
}

func TestMiddleware_WriteWithoutHeaderDefaultsTo200(t *testing.T) {
	t.Parallel()

	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("test"))
		w.WriteHeader(http.StatusInternalServerError)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestMiddleware_RecoversPanic(t *testing.T) {
	t.Parallel()

	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"/":                      "/",
		"/health":                "/health",
		"/tokens/123":            "/tokens/:id",
		"/tokens/123/grants/456": "/tokens/:id/grants/:id",
		"/users/0b6e2a4c-1f3d-4e5a-9b7c-2d8e6f1a3b5c/roles": "/users/:id/roles",
		"/v1beta":                "/v1beta",
	}

	for in, want := range tests {
		if got := normalizePath(in); got != want {
			t.Errorf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}
