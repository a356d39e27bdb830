package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRequestID_Generated(t *testing.T) {
	t.Parallel()
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))

	if seen == "" {
		t.Fatal("no request ID in context")
	}
	if _, err := uuid.Parse(seen); err != nil {
		t.Errorf("generated ID is not a UUID: %q", seen)
	}
	if got := w.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("response header %q does not match context ID %q", got, seen)
	}
}

func TestRequestID_Passthrough(t *testing.T) {
	t.Parallel()
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("X-Request-ID", "client-id-42")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-id-42" {
		t.Errorf("valid client ID not reused: %q", got)
	}
}

func TestRequestID_RejectsInvalid(t *testing.T) {
	t.Parallel()
	cases := []string{
		"has spaces",
		"has\nnewline",
		strings.Repeat("x", 129),
		"semi;colon",
	}
	for _, bad := range cases {
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		req := httptest.NewRequest("GET", "/healthz", nil)
		req.Header.Set("X-Request-ID", bad)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if got := w.Header().Get("X-Request-ID"); got == bad {
			t.Errorf("invalid ID %q was reused", bad)
		}
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	t.Parallel()
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("expected empty ID from bare context, got %q", got)
	}
}

func TestMaxBodySize(t *testing.T) {
	t.Parallel()
	handler := MaxBodySize(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, "too large", http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	small := httptest.NewRequest("POST", "/v1/usage/ingest", strings.NewReader("tiny"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, small)
	if w.Code != http.StatusOK {
		t.Errorf("small body rejected: %d", w.Code)
	}

	big := httptest.NewRequest("POST", "/v1/usage/ingest", strings.NewReader(strings.Repeat("x", 64)))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, big)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized body accepted: %d", w.Code)
	}
}

func debugLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestHTTPLogging_MasksSecrets(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := debugLogger(&buf)

	handler := HTTPLogging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "wJalrXUtnFEMI") {
			t.Error("handler did not receive the original body")
		}
		w.Write([]byte(`{"access_key":"AKIA","secret_key":"anothersecret"}`))
	}))

	req := httptest.NewRequest("POST", "/v1/sigv4/keys?X-Amz-Signature=0123456789abcdef",
		strings.NewReader(`{"secret_key":"wJalrXUtnFEMI"}`))
	req.Header.Set("Authorization", "AWS4-HMAC-SHA256 Signature=deadbeef")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	logged := buf.String()
	if strings.Contains(logged, "wJalrXUtnFEMI") || strings.Contains(logged, "anothersecret") {
		t.Error("secret_key leaked into debug log")
	}
	if strings.Contains(logged, "0123456789abcdef") {
		t.Error("presigned signature leaked into debug log")
	}
	if !strings.Contains(logged, "HTTP Request") || !strings.Contains(logged, "HTTP Response") {
		t.Error("expected request and response log entries")
	}
}

func TestHTTPLogging_PassThroughAboveDebug(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler := HTTPLogging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/v1/nodes", nil))

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no log output at info level, got %q", buf.String())
	}
}
