package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/brandoz2255/k8s-dashboard/cmd/dashboard/config"
	"github.com/brandoz2255/k8s-dashboard/pkg/fetch"
	"github.com/brandoz2255/k8s-dashboard/pkg/transform"
)

// Open-Meteo defaults for the weather widget: Hesperia, CA.
const (
	defaultLatitude  = "34.4264"
	defaultLongitude = "-117.3001"
)

// addWidget builds the adapter for w and registers it with d. Every widget
// gets its own circuit breaker around the shared fetch client.
func addWidget(d *Dashboard, w config.WidgetConfig, client fetch.Fetcher, breaker fetch.BreakerConfig) error {
	var fetcher fetch.Fetcher = client
	if breaker.ConsecutiveFailures > 0 {
		breaker.Name = w.Name
		fetcher = fetch.NewBreakerFetcher(client, breaker, d.logger)
	}

	switch w.Kind {
	case config.KindWeather:
		location := w.Option("location", "")
		tr := transform.NewWeatherTransformer(location)
		if w.Option("provider", config.ProviderDefault) == config.ProviderOpenMeteo {
			tr.Paths = transform.OpenMeteoPaths
			tr.Source = config.ProviderOpenMeteo
			w.Endpoint = openMeteoQuery(w)
		}
		return register(d, w, fetcher, tr, fallbackWeather(location))

	case config.KindFeed:
		limit, _ := strconv.Atoi(w.Option("limit", "0"))
		tr := &transform.FeedTransformer{ArticlesPath: w.Option("articlesPath", ""), Limit: limit}
		return register(d, w, fetcher, tr, fallbackFeed())

	case config.KindMetrics:
		tr := &transform.MetricsTransformer{Node: w.Option("node", "")}
		if v, err := strconv.ParseFloat(w.Option("warnAt", ""), 64); err == nil {
			tr.WarnAt = v
		}
		if v, err := strconv.ParseFloat(w.Option("criticalAt", ""), 64); err == nil {
			tr.CriticalAt = v
		}
		return register(d, w, fetcher, tr, fallbackMetrics(tr.Node))

	case config.KindContainers:
		tr := &transform.ContainersTransformer{Path: w.Option("path", "")}
		return register(d, w, fetcher, tr, fallbackContainers())

	case config.KindSeries:
		metric := w.Option("metric", w.Name)
		tr := &transform.SeriesTransformer{
			Metric:          metric,
			ValuePath:       w.Option("valuePath", ""),
			TimestampPath:   w.Option("timestampPath", ""),
			TimestampFormat: w.Option("timestampFormat", ""),
		}
		return register(d, w, fetcher, tr, fallbackSeries(metric))

	case config.KindPrometheus:
		metric := w.Option("metric", w.Name)
		window, _ := time.ParseDuration(w.Option("range", "30m"))
		step, _ := time.ParseDuration(w.Option("step", "1m"))
		rq := &rangeQuery{next: fetcher, query: w.Option("query", ""), window: window, step: step}
		tr := &transform.PrometheusTransformer{Metric: metric}
		return register(d, w, rq, tr, fallbackSeries(metric))

	default:
		return fmt.Errorf("widget %q: unknown kind %q", w.Name, w.Kind)
	}
}

// openMeteoQuery fills in the Open-Meteo forecast parameters the weather
// transformer expects. Values already set in the widget config win.
func openMeteoQuery(w config.WidgetConfig) fetch.EndpointConfig {
	cfg := w.Endpoint.Clone()
	if cfg.Query == nil {
		cfg.Query = make(map[string]string)
	}
	defaults := map[string]string{
		"latitude":        w.Option("latitude", defaultLatitude),
		"longitude":       w.Option("longitude", defaultLongitude),
		"current_weather": "true",
		"windspeed_unit":  "kmh",
		"daily":           "uv_index_max",
		"timezone":        "auto",
	}
	for k, v := range defaults {
		if _, ok := cfg.Query[k]; !ok {
			cfg.Query[k] = v
		}
	}
	return cfg
}

// rangeQuery turns each fetch into a Prometheus query_range call over the
// trailing window ending now.
type rangeQuery struct {
	next   fetch.Fetcher
	query  string
	window time.Duration
	step   time.Duration
	now    func() time.Time
}

func (r *rangeQuery) Fetch(ctx context.Context, cfg fetch.EndpointConfig) (fetch.Payload, error) {
	now := time.Now
	if r.now != nil {
		now = r.now
	}
	end := now().UTC().Truncate(time.Second)
	start := end.Add(-r.window)

	cfg = cfg.Clone()
	if cfg.Query == nil {
		cfg.Query = make(map[string]string)
	}
	cfg.Query["query"] = r.query
	cfg.Query["start"] = strconv.FormatInt(start.Unix(), 10)
	cfg.Query["end"] = strconv.FormatInt(end.Unix(), 10)
	cfg.Query["step"] = strconv.FormatFloat(r.step.Seconds(), 'f', -1, 64)
	return r.next.Fetch(ctx, cfg)
}
