// Package fetch provides the client that performs a single bounded-time GET
// against a polled endpoint and returns its raw JSON body.
//
// The client never retries and never panics: every call resolves to either
// a Payload or an *Error whose Kind tells the caller what went wrong
// (timeout, non-2xx status, connection failure, malformed body). Retries,
// scheduling and fallback handling belong to the adapter package.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 8 << 20

// Payload is a successfully fetched response body. The body is valid JSON;
// its shape depends on the endpoint.
type Payload struct {
	Body      []byte
	Status    int
	URL       string
	FetchedAt time.Time
}

// Fetcher performs one request for an endpoint.
type Fetcher interface {
	Fetch(ctx context.Context, cfg EndpointConfig) (Payload, error)
}

// Client is the HTTP Fetcher. The zero value is usable.
type Client struct {
	// HTTPClient is optional; if nil a client without its own timeout is used,
	// since the per-call deadline comes from EndpointConfig.Timeout.
	HTTPClient *http.Client

	// Now is optional and stamps Payload.FetchedAt. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// NewClient creates a Client using the given http.Client.
func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{HTTPClient: httpClient, Logger: logger}
}

// Fetch issues one GET to cfg.URL and fails with KindTimeout if no complete
// response arrives within cfg.Timeout.
func (c *Client) Fetch(ctx context.Context, cfg EndpointConfig) (Payload, error) {
	if cfg.URL == "" {
		return Payload{}, &Error{Kind: KindConnection, Err: errors.New("url is required")}
	}
	if cfg.Timeout <= 0 {
		return Payload{}, &Error{Kind: KindConnection, URL: cfg.URL, Err: fmt.Errorf("timeout must be > 0, got %v", cfg.Timeout)}
	}

	target, err := buildURL(cfg)
	if err != nil {
		return Payload{}, &Error{Kind: KindConnection, URL: cfg.URL, Err: err}
	}

	reqCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return Payload{}, &Error{Kind: KindConnection, URL: cfg.URL, Err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	for key, value := range cfg.Headers {
		rendered, err := renderTemplate(value, cfg.TemplateVars)
		if err != nil {
			return Payload{}, &Error{Kind: KindConnection, URL: cfg.URL, Err: fmt.Errorf("render header %s: %w", key, err)}
		}
		req.Header.Set(key, rendered)
	}

	start := time.Now()
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return Payload{}, c.classify(ctx, reqCtx, cfg.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Payload{}, &Error{
			Kind:   KindHTTP,
			Status: resp.StatusCode,
			URL:    cfg.URL,
			Body:   strings.TrimSpace(string(body)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return Payload{}, c.classify(ctx, reqCtx, cfg.URL, fmt.Errorf("read response: %w", err))
	}
	if len(body) > maxBodyBytes {
		return Payload{}, &Error{Kind: KindParse, URL: cfg.URL, Err: fmt.Errorf("response exceeds %d bytes", maxBodyBytes)}
	}
	if !json.Valid(body) {
		return Payload{}, &Error{Kind: KindParse, URL: cfg.URL, Err: errors.New("response body is not valid JSON")}
	}

	c.logger().Debug("fetched endpoint",
		"url", cfg.URL,
		"status", resp.StatusCode,
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return Payload{
		Body:      body,
		Status:    resp.StatusCode,
		URL:       cfg.URL,
		FetchedAt: c.now(),
	}, nil
}

// classify maps a transport error to a Kind. A deadline on reqCtx while the
// caller's ctx is still live is our own timeout; a done caller ctx is a cancel.
func (c *Client) classify(parent, reqCtx context.Context, rawURL string, err error) *Error {
	switch {
	case parent.Err() != nil:
		return &Error{Kind: KindCanceled, URL: rawURL, Err: parent.Err()}
	case errors.Is(reqCtx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, URL: rawURL, Err: err}
	default:
		var ue *url.Error
		if errors.As(err, &ue) && ue.Timeout() {
			return &Error{Kind: KindTimeout, URL: rawURL, Err: err}
		}
		return &Error{Kind: KindConnection, URL: rawURL, Err: err}
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func buildURL(cfg EndpointConfig) (string, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if len(cfg.Query) == 0 {
		return u.String(), nil
	}
	q := u.Query()
	for key, value := range cfg.Query {
		rendered, err := renderTemplate(value, cfg.TemplateVars)
		if err != nil {
			return "", fmt.Errorf("render query %s: %w", key, err)
		}
		q.Set(key, rendered)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// renderTemplate renders a text template with the given vars. Strings
// without actions are returned unchanged.
func renderTemplate(tmplStr string, vars map[string]string) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Option("missingkey=error").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	data := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		data[k] = v
	}
	data["Now"] = time.Now().UTC().Unix()

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
