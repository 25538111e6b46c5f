package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowvex/scraperd/internal/config"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(200)
})

func TestAuthMiddlewareNoToken(t *testing.T) {
	h := AuthMiddleware(&config.RuntimeConfig{}, okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != 200 {
		t.Errorf("status = %d, want open access without a configured token", rec.Code)
	}
}

func TestAuthMiddlewareToken(t *testing.T) {
	cfg := &config.RuntimeConfig{Token: "s3cret"}
	h := AuthMiddleware(cfg, okHandler)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", 401},
		{"wrong token", "Bearer nope", 401},
		{"wrong scheme", "Basic s3cret", 401},
		{"valid", "Bearer s3cret", 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/health", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	h := RequestIDMiddleware(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("request id not generated")
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-Id", "abc123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "abc123" {
		t.Errorf("request id = %q, want caller's id preserved", got)
	}
}

func TestLoggingMiddlewarePassesStatus(t *testing.T) {
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(418)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != 418 {
		t.Errorf("status = %d, middleware must not rewrite it", rec.Code)
	}
}
