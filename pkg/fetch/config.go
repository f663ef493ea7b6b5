package fetch

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"time"
)

const (
	DefaultTimeout     = 10 * time.Second
	DefaultInterval    = 30 * time.Second
	DefaultMaxAttempts = 1
	DefaultBackoff     = 500 * time.Millisecond
)

// RetryPolicy bounds how many times one tick may call the endpoint.
// Retries are driven by the adapter, never by the Client.
type RetryPolicy struct {
	// MaxAttempts is the total number of calls per tick, including the first.
	MaxAttempts int `yaml:"maxAttempts" json:"maxAttempts"`
	// Backoff is the wait before the first retry; later waits grow exponentially.
	Backoff time.Duration `yaml:"backoff" json:"backoff"`
}

// EndpointConfig describes one polled endpoint.
//
// Header and query values may use text/template syntax, rendered with
// TemplateVars, e.g. "Bearer {{.Token}}".
type EndpointConfig struct {
	URL          string            `yaml:"url" json:"url"`
	Timeout      time.Duration     `yaml:"timeout" json:"timeout"`
	Interval     time.Duration     `yaml:"interval" json:"interval"`
	Retry        RetryPolicy       `yaml:"retry" json:"retry"`
	Headers      map[string]string `yaml:"headers" json:"headers,omitempty"`
	Query        map[string]string `yaml:"query" json:"query,omitempty"`
	TemplateVars map[string]string `yaml:"templateVars" json:"-"`
}

// WithDefaults returns a copy of c with zero values replaced by defaults.
func (c EndpointConfig) WithDefaults() EndpointConfig {
	out := c.Clone()
	if out.Timeout == 0 {
		out.Timeout = DefaultTimeout
	}
	if out.Interval == 0 {
		out.Interval = DefaultInterval
	}
	if out.Retry.MaxAttempts == 0 {
		out.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if out.Retry.Backoff == 0 {
		out.Retry.Backoff = DefaultBackoff
	}
	return out
}

// Clone returns a deep copy so callers cannot mutate an adapter's config
// through shared maps.
func (c EndpointConfig) Clone() EndpointConfig {
	out := c
	out.Headers = maps.Clone(c.Headers)
	out.Query = maps.Clone(c.Query)
	out.TemplateVars = maps.Clone(c.TemplateVars)
	return out
}

// Validate checks that the configuration can be polled.
func (c EndpointConfig) Validate() error {
	if c.URL == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", c.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url %q: scheme must be http or https", c.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", c.URL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0, got %v", c.Timeout)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be > 0, got %v", c.Interval)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.maxAttempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.Backoff < 0 {
		return fmt.Errorf("retry.backoff cannot be negative, got %v", c.Retry.Backoff)
	}
	return nil
}
