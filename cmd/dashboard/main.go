// Command dashboard polls the upstream endpoints behind a homelab ops
// dashboard and serves each widget's latest view model over HTTP.
//
// Every widget is backed by a polling adapter that fetches one endpoint on
// an interval, transforms the JSON payload into a display-ready view model
// and keeps serving the last good data (or a built-in fallback) when the
// endpoint fails.
//
// The HTTP API listens on :8080 (configurable):
//   - GET  /api/widgets                 - All widget snapshots
//   - GET  /api/widgets/{name}          - One widget snapshot
//   - POST /api/widgets/{name}/refresh  - Refresh a widget now
//   - GET  /healthz                     - Health check
//   - GET  /metrics                     - Prometheus metrics
//
// Usage:
//
//	dashboard \
//	  -weather-url=https://api.open-meteo.com/v1/forecast -weather-provider=open-meteo \
//	  -metrics-url=http://backend:8000/api/metrics \
//	  -containers-url=http://backend:8000/api/containers
//
//	dashboard -widgets-file=/etc/dashboard/widgets.yaml -storage=redis
//
// Environment variables:
//
//	WIDGETS_FILE     - YAML widget declarations
//	WEATHER_URL      - Weather endpoint (interval 30m)
//	WEATHER_PROVIDER - default or open-meteo
//	LOCATION         - Weather location label (default: Hesperia, CA)
//	FEED_URL         - News feed endpoint (interval 15m)
//	METRICS_URL      - System metrics endpoint (interval 30s)
//	CONTAINERS_URL   - Container list endpoint (interval 30s)
//	STORAGE          - memory or redis (default: memory)
//	REDIS_ADDR       - Redis address (default: localhost:6379)
//	LOG_LEVEL        - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT       - Logging format: text, json (default: text)
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/brandoz2255/k8s-dashboard/cmd/dashboard/config"
	"github.com/brandoz2255/k8s-dashboard/cmd/dashboard/logger"
	"github.com/brandoz2255/k8s-dashboard/cmd/dashboard/router"
	"github.com/brandoz2255/k8s-dashboard/cmd/dashboard/store"
	"github.com/brandoz2255/k8s-dashboard/pkg/fetch"
	"github.com/brandoz2255/k8s-dashboard/pkg/httpx"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	logger := logger.New(cfg)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	widgets, err := config.LoadWidgets(cfg)
	if err != nil {
		logger.Error("invalid widget configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting dashboard",
		"version", version,
		"listen", cfg.Listen,
		"widgets", len(widgets),
		"storage", cfg.Storage,
	)

	if err := run(cfg, widgets, logger); err != nil {
		logger.Error("dashboard failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, widgets []config.WidgetConfig, logger *slog.Logger) error {
	snapshots, err := store.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := snapshots.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	httpClient, err := httpx.NewClient(cfg.UpstreamTLS)
	if err != nil {
		return err
	}
	client := fetch.NewClient(httpClient, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	dash := NewDashboard(snapshots, registry, logger)
	breaker := fetch.BreakerConfig{
		ConsecutiveFailures: uint32(cfg.BreakerFailures),
		OpenTimeout:         cfg.BreakerTimeout,
	}
	for _, w := range widgets {
		if err := addWidget(dash, w, client, breaker); err != nil {
			dash.Stop()
			return err
		}
		logger.Info("widget configured",
			"widget", w.Name,
			"kind", w.Kind,
			"url", w.Endpoint.URL,
			"interval", w.Endpoint.Interval,
		)
	}

	mux := router.SetupRoutes(router.Deps{
		Store:        snapshots,
		Widgets:      dash,
		Gatherer:     registry,
		Health:       healthCheck(snapshots),
		RefreshRate:  rate.Limit(cfg.RefreshRate),
		RefreshBurst: cfg.RefreshBurst,
		Logger:       logger,
	})
	httpServer := httpx.NewServer(cfg.Listen, mux, logger)

	tlsConfig, err := cfg.TLS.Build()
	if err != nil {
		dash.Stop()
		return err
	}

	dash.Start()

	serverErr := make(chan error, 1)
	go func() {
		if tlsConfig != nil {
			httpServer.SetTLSConfig(tlsConfig)
			serverErr <- httpServer.StartTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			return
		}
		serverErr <- httpServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case runErr = <-serverErr:
	}

	logger.Info("shutting down")
	if err := httpServer.Stop(cfg.ShutdownTimeout); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	dash.Stop()
	return runErr
}

// healthCheck pings the store when it supports it.
func healthCheck(s any) func(ctx context.Context) error {
	pinger, ok := s.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	return pinger.Ping
}
