package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dashtls "github.com/brandoz2255/k8s-dashboard/pkg/tls"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := WriteJSON(rec, http.StatusAccepted, map[string]string{"status": "accepted"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["status"] != "accepted" {
		t.Errorf("body = %s, err = %v", rec.Body.String(), err)
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusNotFound, errors.New("widget not found"))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error != "widget not found" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name  string
		check func(context.Context) error
		want  int
	}{
		{"nil check", nil, http.StatusOK},
		{"passing check", func(context.Context) error { return nil }, http.StatusOK},
		{"failing check", func(context.Context) error { return errors.New("redis down") }, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HealthHandler(tt.check)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	h := LoggingMiddleware(logger, "/healthz")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/widgets", nil))
	out := buf.String()
	if !strings.Contains(out, "path=/api/widgets") || !strings.Contains(out, "status=418") {
		t.Errorf("log output = %q", out)
	}

	buf.Reset()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if buf.Len() != 0 {
		t.Errorf("quiet path logged at info: %q", buf.String())
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := RecoveryMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(dashtls.ClientConfig{})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if c.Timeout != 0 {
		t.Errorf("Timeout = %v, want 0", c.Timeout)
	}
	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("Transport = %T", c.Transport)
	}
	if tr.Proxy == nil {
		t.Error("proxy from environment should be kept")
	}

	if _, err := NewClient(dashtls.ClientConfig{CertFile: "cert.pem"}); err == nil {
		t.Error("expected error for cert without key")
	}
}

func TestServer_StopBeforeStart(t *testing.T) {
	s := NewServer("127.0.0.1:0", http.NewServeMux(), nil)
	if err := s.Stop(time.Second); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
