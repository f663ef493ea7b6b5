package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testConfig(url string) EndpointConfig {
	return EndpointConfig{URL: url, Timeout: 2 * time.Second, Interval: time.Minute}.WithDefaults()
}

func TestClient_Fetch_OK(t *testing.T) {
	fetchedAt := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("expected Accept: application/json header")
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Errorf("expected X-Request-ID header")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"temp": 20}`)
	}))
	defer server.Close()

	c := &Client{Now: func() time.Time { return fetchedAt }}
	p, err := c.Fetch(context.Background(), testConfig(server.URL))
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if string(p.Body) != `{"temp": 20}` {
		t.Errorf("body = %q", p.Body)
	}
	if p.Status != http.StatusOK {
		t.Errorf("status = %d, want 200", p.Status)
	}
	if !p.FetchedAt.Equal(fetchedAt) {
		t.Errorf("FetchedAt = %v, want %v", p.FetchedAt, fetchedAt)
	}
}

func TestClient_Fetch_HeadersAndQueryTemplates(t *testing.T) {
	var gotAuth, gotCity string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCity = r.URL.Query().Get("city")
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Headers = map[string]string{"Authorization": "Bearer {{.Token}}"}
	cfg.Query = map[string]string{"city": "{{.City}}"}
	cfg.TemplateVars = map[string]string{"Token": "secret123", "City": "Hesperia"}

	if _, err := (&Client{}).Fetch(context.Background(), cfg); err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if gotAuth != "Bearer secret123" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer secret123")
	}
	if gotCity != "Hesperia" {
		t.Errorf("city = %q, want %q", gotCity, "Hesperia")
	}
}

func TestClient_Fetch_Errors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		timeout    time.Duration
		wantKind   Kind
		wantStatus int
		retryable  bool
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			wantKind:   KindHTTP,
			wantStatus: http.StatusInternalServerError,
			retryable:  true,
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			wantKind:   KindHTTP,
			wantStatus: http.StatusNotFound,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"temp": `)
			},
			wantKind: KindParse,
		},
		{
			name: "slow endpoint",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-time.After(2 * time.Second):
				case <-r.Context().Done():
				}
				fmt.Fprint(w, `{}`)
			},
			timeout:   50 * time.Millisecond,
			wantKind:  KindTimeout,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			cfg := testConfig(server.URL)
			if tt.timeout > 0 {
				cfg.Timeout = tt.timeout
			}

			_, err := (&Client{}).Fetch(context.Background(), cfg)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var fe *Error
			if !errors.As(err, &fe) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if fe.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", fe.Kind, tt.wantKind)
			}
			if fe.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", fe.Status, tt.wantStatus)
			}
			if fe.Retryable() != tt.retryable {
				t.Errorf("Retryable = %v, want %v", fe.Retryable(), tt.retryable)
			}
		})
	}
}

func TestClient_Fetch_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := (&Client{}).Fetch(context.Background(), testConfig(url))
	if kind, ok := KindOf(err); !ok || kind != KindConnection {
		t.Fatalf("expected %s, got %v", KindConnection, err)
	}
}

func TestClient_Fetch_ParentCanceled(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := (&Client{}).Fetch(ctx, testConfig(server.URL))
	if kind, ok := KindOf(err); !ok || kind != KindCanceled {
		t.Fatalf("expected %s, got %v", KindCanceled, err)
	}
}

func TestEndpointConfig_Validate(t *testing.T) {
	valid := EndpointConfig{URL: "http://localhost:8080/api/weather"}.WithDefaults()

	tests := []struct {
		name    string
		mutate  func(*EndpointConfig)
		wantErr bool
	}{
		{"valid", func(c *EndpointConfig) {}, false},
		{"empty url", func(c *EndpointConfig) { c.URL = "" }, true},
		{"relative url", func(c *EndpointConfig) { c.URL = "/api/weather" }, true},
		{"bad scheme", func(c *EndpointConfig) { c.URL = "ftp://host/x" }, true},
		{"zero timeout", func(c *EndpointConfig) { c.Timeout = 0 }, true},
		{"negative interval", func(c *EndpointConfig) { c.Interval = -time.Second }, true},
		{"zero attempts", func(c *EndpointConfig) { c.Retry.MaxAttempts = 0 }, true},
		{"negative backoff", func(c *EndpointConfig) { c.Retry.Backoff = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid.Clone()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEndpointConfig_CloneIsDeep(t *testing.T) {
	orig := EndpointConfig{URL: "http://x", Headers: map[string]string{"A": "1"}}
	cp := orig.Clone()
	cp.Headers["A"] = "2"
	if orig.Headers["A"] != "1" {
		t.Errorf("Clone shares Headers map with original")
	}
}
