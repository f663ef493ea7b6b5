// Package config provides configuration parsing for the dashboard service.
//
// Settings come from command-line flags with environment variables as
// fallbacks. Widgets are declared either in a YAML file (--widgets-file) or,
// for the four standard dashboard panels, by setting their URLs:
//
//	WEATHER_URL, FEED_URL, METRICS_URL, CONTAINERS_URL
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables
//  3. Default values
//
// Example usage:
//
//	cfg := config.ParseFlags()
//	widgets, err := config.LoadWidgets(cfg)
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brandoz2255/k8s-dashboard/pkg/fetch"
	"github.com/brandoz2255/k8s-dashboard/pkg/tls"
)

// Widget kinds understood by the dashboard.
const (
	KindWeather    = "weather"
	KindFeed       = "feed"
	KindMetrics    = "metrics"
	KindContainers = "containers"
	KindSeries     = "series"
	KindPrometheus = "prometheus"
)

// Weather providers for the URL-configured weather widget.
const (
	ProviderDefault   = "default"
	ProviderOpenMeteo = "open-meteo"
)

// defaultIntervals are the refresh intervals of the standard panels.
var defaultIntervals = map[string]time.Duration{
	KindWeather:    30 * time.Minute,
	KindFeed:       15 * time.Minute,
	KindMetrics:    30 * time.Second,
	KindContainers: 30 * time.Second,
}

// Config holds all dashboard configuration.
type Config struct {
	Listen          string
	LogFormat       string
	LogLevel        string
	ShutdownTimeout time.Duration

	Storage       string
	MemoryTTL     time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	TLS         tls.ServerConfig
	UpstreamTLS tls.ClientConfig

	WidgetsFile     string
	WeatherURL      string
	WeatherProvider string
	Location        string
	FeedURL         string
	MetricsURL      string
	ContainersURL   string

	FetchTimeout     time.Duration
	FetchMaxAttempts int
	FetchBackoff     time.Duration
	BreakerFailures  int
	BreakerTimeout   time.Duration

	RefreshRate  float64
	RefreshBurst int
}

// WidgetConfig declares one dashboard widget.
type WidgetConfig struct {
	Name     string               `yaml:"name"`
	Kind     string               `yaml:"kind"`
	Endpoint fetch.EndpointConfig `yaml:"endpoint"`
	// Options are kind-specific settings, e.g. "location" for weather or
	// "query" for prometheus.
	Options map[string]string `yaml:"options"`
}

// Option returns the named option or def when unset.
func (w WidgetConfig) Option(key, def string) string {
	if v, ok := w.Options[key]; ok && v != "" {
		return v
	}
	return def
}

type widgetsFile struct {
	Widgets []WidgetConfig `yaml:"widgets"`
}

// ParseFlags parses command-line flags and environment variables into a Config.
// Environment variables are used as fallbacks when flags are not provided.
func ParseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8080"), "HTTP listen address")
	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second), "Graceful shutdown timeout")

	flag.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Storage backend: memory or redis")
	flag.DurationVar(&cfg.MemoryTTL, "memory-ttl", getEnvDuration("MEMORY_TTL", 0), "In-memory snapshot TTL (0 disables eviction)")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flag.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	flag.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 2*time.Hour), "Redis snapshot TTL")

	flag.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file for the HTTP server")
	flag.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file for the HTTP server")
	flag.StringVar(&cfg.TLS.ClientCAFile, "tls-client-ca-file", getEnv("TLS_CLIENT_CA_FILE", ""), "CA file used to verify client certificates")
	flag.StringVar(&cfg.UpstreamTLS.CAFile, "upstream-ca-file", getEnv("UPSTREAM_CA_FILE", ""), "Extra CA bundle trusted for upstream endpoints")
	flag.StringVar(&cfg.UpstreamTLS.CertFile, "upstream-cert-file", getEnv("UPSTREAM_CERT_FILE", ""), "Client certificate for upstream endpoints")
	flag.StringVar(&cfg.UpstreamTLS.KeyFile, "upstream-key-file", getEnv("UPSTREAM_KEY_FILE", ""), "Client key for upstream endpoints")

	flag.StringVar(&cfg.WidgetsFile, "widgets-file", getEnv("WIDGETS_FILE", ""), "YAML file declaring widgets")
	flag.StringVar(&cfg.WeatherURL, "weather-url", getEnv("WEATHER_URL", ""), "Weather endpoint URL")
	flag.StringVar(&cfg.WeatherProvider, "weather-provider", getEnv("WEATHER_PROVIDER", ProviderDefault), "Weather payload shape: default or open-meteo")
	flag.StringVar(&cfg.Location, "location", getEnv("LOCATION", "Hesperia, CA"), "Location shown on the weather widget")
	flag.StringVar(&cfg.FeedURL, "feed-url", getEnv("FEED_URL", ""), "News feed endpoint URL")
	flag.StringVar(&cfg.MetricsURL, "metrics-url", getEnv("METRICS_URL", ""), "System metrics endpoint URL")
	flag.StringVar(&cfg.ContainersURL, "containers-url", getEnv("CONTAINERS_URL", ""), "Container list endpoint URL")

	flag.DurationVar(&cfg.FetchTimeout, "fetch-timeout", getEnvDuration("FETCH_TIMEOUT", fetch.DefaultTimeout), "Default per-request timeout")
	flag.IntVar(&cfg.FetchMaxAttempts, "fetch-max-attempts", getEnvInt("FETCH_MAX_ATTEMPTS", fetch.DefaultMaxAttempts), "Default attempts per refresh, including the first")
	flag.DurationVar(&cfg.FetchBackoff, "fetch-backoff", getEnvDuration("FETCH_BACKOFF", fetch.DefaultBackoff), "Default wait before the first retry")
	flag.IntVar(&cfg.BreakerFailures, "breaker-failures", getEnvInt("BREAKER_FAILURES", 5), "Consecutive failures that open a widget's circuit breaker (0 disables)")
	flag.DurationVar(&cfg.BreakerTimeout, "breaker-timeout", getEnvDuration("BREAKER_TIMEOUT", 60*time.Second), "How long an open breaker waits before probing")

	flag.Float64Var(&cfg.RefreshRate, "refresh-rate", getEnvFloat("REFRESH_RATE", 0.2), "Manual refreshes per second allowed per widget")
	flag.IntVar(&cfg.RefreshBurst, "refresh-burst", getEnvInt("REFRESH_BURST", 2), "Manual refresh burst per widget")

	flag.Parse()

	return cfg
}

// Validate checks the service-level settings.
func (c *Config) Validate() error {
	if c.Storage != "memory" && c.Storage != "redis" {
		return fmt.Errorf("invalid storage %q (must be memory or redis)", c.Storage)
	}
	if c.Storage == "redis" && c.RedisAddr == "" {
		return errors.New("redis-addr is required when storage=redis")
	}
	if c.WeatherProvider != ProviderDefault && c.WeatherProvider != ProviderOpenMeteo {
		return fmt.Errorf("invalid weather provider %q (must be %s or %s)", c.WeatherProvider, ProviderDefault, ProviderOpenMeteo)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch-timeout must be > 0, got %v", c.FetchTimeout)
	}
	if c.FetchMaxAttempts < 1 {
		return fmt.Errorf("fetch-max-attempts must be >= 1, got %d", c.FetchMaxAttempts)
	}
	if c.BreakerFailures < 0 {
		return fmt.Errorf("breaker-failures cannot be negative, got %d", c.BreakerFailures)
	}
	if c.RefreshRate <= 0 || c.RefreshBurst < 1 {
		return fmt.Errorf("refresh-rate must be > 0 and refresh-burst >= 1, got %v/%d", c.RefreshRate, c.RefreshBurst)
	}
	if err := c.TLS.Validate(); err != nil {
		return err
	}
	return c.UpstreamTLS.Validate()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

var widgetNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]{0,61}[a-zA-Z0-9])?$`)

// LoadWidgets returns the validated widget set. A widgets file, when given,
// replaces the URL settings entirely. Environment references such as
// ${API_TOKEN} in the file are expanded before parsing.
func LoadWidgets(cfg *Config) ([]WidgetConfig, error) {
	var widgets []WidgetConfig
	if cfg.WidgetsFile != "" {
		data, err := os.ReadFile(cfg.WidgetsFile)
		if err != nil {
			return nil, fmt.Errorf("read widgets file: %w", err)
		}
		widgets, err = parseWidgets([]byte(os.ExpandEnv(string(data))))
		if err != nil {
			return nil, fmt.Errorf("parse widgets file %s: %w", cfg.WidgetsFile, err)
		}
	} else {
		widgets = widgetsFromURLs(cfg)
	}

	if len(widgets) == 0 {
		return nil, errors.New("no widgets configured (set --widgets-file or at least one of WEATHER_URL, FEED_URL, METRICS_URL, CONTAINERS_URL)")
	}

	seen := make(map[string]bool, len(widgets))
	for i := range widgets {
		applyDefaults(&widgets[i], cfg)
		if err := validateWidget(widgets[i], i); err != nil {
			return nil, err
		}
		if seen[widgets[i].Name] {
			return nil, fmt.Errorf("widget %q: duplicate name", widgets[i].Name)
		}
		seen[widgets[i].Name] = true
	}
	return widgets, nil
}

func parseWidgets(data []byte) ([]WidgetConfig, error) {
	var f widgetsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f.Widgets, nil
}

func widgetsFromURLs(cfg *Config) []WidgetConfig {
	var widgets []WidgetConfig
	add := func(kind, url string, options map[string]string) {
		if url == "" {
			return
		}
		widgets = append(widgets, WidgetConfig{
			Name:     kind,
			Kind:     kind,
			Endpoint: fetch.EndpointConfig{URL: url},
			Options:  options,
		})
	}

	add(KindWeather, cfg.WeatherURL, map[string]string{
		"location": cfg.Location,
		"provider": cfg.WeatherProvider,
	})
	add(KindFeed, cfg.FeedURL, nil)
	add(KindMetrics, cfg.MetricsURL, nil)
	add(KindContainers, cfg.ContainersURL, nil)
	return widgets
}

func applyDefaults(w *WidgetConfig, cfg *Config) {
	if w.Endpoint.Interval == 0 {
		w.Endpoint.Interval = defaultIntervals[w.Kind]
	}
	if w.Endpoint.Timeout == 0 {
		w.Endpoint.Timeout = cfg.FetchTimeout
	}
	if w.Endpoint.Retry.MaxAttempts == 0 {
		w.Endpoint.Retry.MaxAttempts = cfg.FetchMaxAttempts
	}
	if w.Endpoint.Retry.Backoff == 0 {
		w.Endpoint.Retry.Backoff = cfg.FetchBackoff
	}
	w.Endpoint = w.Endpoint.WithDefaults()
}

func validateWidget(w WidgetConfig, index int) error {
	if w.Name == "" {
		return fmt.Errorf("widget[%d]: name cannot be empty", index)
	}
	if !widgetNameRegex.MatchString(w.Name) {
		return fmt.Errorf("widget[%d]: invalid name %q (must be alphanumeric with dash/underscore, 1-63 chars)", index, w.Name)
	}

	switch w.Kind {
	case KindWeather:
		if p := w.Option("provider", ProviderDefault); p != ProviderDefault && p != ProviderOpenMeteo {
			return fmt.Errorf("widget %q: invalid provider %q", w.Name, p)
		}
	case KindFeed, KindMetrics, KindContainers:
	case KindSeries:
		if w.Option("valuePath", "") == "" || w.Option("timestampPath", "") == "" {
			return fmt.Errorf("widget %q: series requires options valuePath and timestampPath", w.Name)
		}
	case KindPrometheus:
		if w.Option("query", "") == "" {
			return fmt.Errorf("widget %q: prometheus requires option query", w.Name)
		}
		for _, key := range []string{"range", "step"} {
			if v := w.Option(key, ""); v != "" {
				if d, err := time.ParseDuration(v); err != nil || d <= 0 {
					return fmt.Errorf("widget %q: invalid %s %q", w.Name, key, v)
				}
			}
		}
	case "":
		return fmt.Errorf("widget %q: kind cannot be empty", w.Name)
	default:
		return fmt.Errorf("widget %q: unknown kind %q (must be weather, feed, metrics, containers, series, or prometheus)", w.Name, w.Kind)
	}

	if err := w.Endpoint.Validate(); err != nil {
		return fmt.Errorf("widget %q: %w", w.Name, err)
	}
	return nil
}
