package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandoz2255/k8s-dashboard/cmd/dashboard/config"
	"github.com/brandoz2255/k8s-dashboard/pkg/fetch"
	"github.com/brandoz2255/k8s-dashboard/pkg/storage"
	"github.com/brandoz2255/k8s-dashboard/pkg/transform"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDashboard(t *testing.T) (*Dashboard, *storage.MemoryStore, *prometheus.Registry) {
	t.Helper()
	store := storage.NewMemoryStore()
	reg := prometheus.NewRegistry()
	d := NewDashboard(store, reg, discardLogger())
	t.Cleanup(d.Stop)
	return d, store, reg
}

func widgetConfig(name, kind, url string, options map[string]string) config.WidgetConfig {
	return config.WidgetConfig{
		Name: name,
		Kind: kind,
		Endpoint: fetch.EndpointConfig{
			URL:      url,
			Timeout:  time.Second,
			Interval: time.Hour,
		},
		Options: options,
	}
}

func latest(t *testing.T, store storage.Store, name string) storage.Snapshot {
	t.Helper()
	snap, found, err := store.GetLatest(context.Background(), name)
	require.NoError(t, err)
	require.True(t, found, "no snapshot for %s", name)
	return snap
}

func TestDashboard_PublishesFallbackBeforeStart(t *testing.T) {
	d, store, _ := newTestDashboard(t)
	client := fetch.NewClient(nil, discardLogger())

	w := widgetConfig("weather", config.KindWeather, "http://127.0.0.1:1/weather", map[string]string{"location": "Hesperia, CA"})
	require.NoError(t, addWidget(d, w, client, fetch.BreakerConfig{}))

	snap := latest(t, store, "weather")
	assert.Equal(t, "Idle", snap.Status)
	assert.Equal(t, 3600, snap.IntervalSeconds)
	assert.True(t, snap.LastUpdated.IsZero())

	var vm transform.Weather
	require.NoError(t, json.Unmarshal(snap.ViewModel, &vm))
	assert.Equal(t, 72, vm.Temp)
	assert.Equal(t, "SW", vm.WindDirection)
	assert.Equal(t, "Hesperia, CA", vm.Location)
}

func TestDashboard_WeatherReady(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"temp": 20}`))
	}))
	defer upstream.Close()

	d, store, _ := newTestDashboard(t)
	client := fetch.NewClient(upstream.Client(), discardLogger())
	require.NoError(t, addWidget(d, widgetConfig("weather", config.KindWeather, upstream.URL, nil), client, fetch.BreakerConfig{ConsecutiveFailures: 3}))

	d.Start()
	require.Eventually(t, func() bool {
		return latest(t, store, "weather").Status == "Ready"
	}, 2*time.Second, 10*time.Millisecond)

	snap := latest(t, store, "weather")
	var vm transform.Weather
	require.NoError(t, json.Unmarshal(snap.ViewModel, &vm))
	assert.Equal(t, 68, vm.Temp)
	assert.Nil(t, snap.Error)
	assert.False(t, snap.LastUpdated.IsZero())
}

func TestDashboard_FailedKeepsFallback(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	d, store, reg := newTestDashboard(t)
	client := fetch.NewClient(upstream.Client(), discardLogger())
	require.NoError(t, addWidget(d, widgetConfig("metrics", config.KindMetrics, upstream.URL, nil), client, fetch.BreakerConfig{}))

	d.Start()
	require.Eventually(t, func() bool {
		return latest(t, store, "metrics").Status == "Failed"
	}, 2*time.Second, 10*time.Millisecond)

	snap := latest(t, store, "metrics")
	require.NotNil(t, snap.Error)
	assert.Equal(t, "HttpError", snap.Error.Kind)
	assert.Equal(t, "NetworkError", snap.Error.Category)
	assert.Equal(t, http.StatusInternalServerError, snap.Error.Status)

	var vm transform.Metrics
	require.NoError(t, json.Unmarshal(snap.ViewModel, &vm))
	assert.Equal(t, 32.0, vm.CPU.Usage)
	assert.Equal(t, 113, vm.CPU.TempF)

	n, err := testutil.GatherAndCount(reg, "dashboard_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDashboard_Refresh(t *testing.T) {
	calls := make(chan struct{}, 10)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls <- struct{}{}
		_, _ = w.Write([]byte(`[{"id": "grafana", "status": "running"}]`))
	}))
	defer upstream.Close()

	d, store, _ := newTestDashboard(t)
	client := fetch.NewClient(upstream.Client(), discardLogger())
	require.NoError(t, addWidget(d, widgetConfig("containers", config.KindContainers, upstream.URL, nil), client, fetch.BreakerConfig{}))

	assert.True(t, d.Has("containers"))
	assert.False(t, d.Has("stocks"))
	assert.False(t, d.Refresh("stocks"))

	d.Start()
	<-calls
	require.Eventually(t, func() bool {
		return latest(t, store, "containers").Status == "Ready"
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool { return d.Refresh("containers") }, time.Second, 10*time.Millisecond)
	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh did not reach the upstream")
	}
}

func TestDashboard_StopIsFinal(t *testing.T) {
	d, _, _ := newTestDashboard(t)
	client := fetch.NewClient(nil, discardLogger())
	require.NoError(t, addWidget(d, widgetConfig("feed", config.KindFeed, "http://127.0.0.1:1/feed", nil), client, fetch.BreakerConfig{}))

	d.Stop()
	assert.False(t, d.Refresh("feed"))
	d.Stop()
}

func TestAddWidget_Errors(t *testing.T) {
	d, _, _ := newTestDashboard(t)
	client := fetch.NewClient(nil, discardLogger())

	err := addWidget(d, widgetConfig("stocks", "stocks", "http://x.local", nil), client, fetch.BreakerConfig{})
	assert.ErrorContains(t, err, "unknown kind")

	w := widgetConfig("feed", config.KindFeed, "http://x.local", nil)
	require.NoError(t, addWidget(d, w, client, fetch.BreakerConfig{}))
	assert.ErrorContains(t, addWidget(d, w, client, fetch.BreakerConfig{}), "already registered")

	bad := widgetConfig("bad", config.KindFeed, "", nil)
	assert.Error(t, addWidget(d, bad, client, fetch.BreakerConfig{}))

	assert.Equal(t, []string{"feed"}, d.Names())
}

func TestAddWidget_AllKinds(t *testing.T) {
	d, store, _ := newTestDashboard(t)
	client := fetch.NewClient(nil, discardLogger())

	widgets := []config.WidgetConfig{
		widgetConfig("weather", config.KindWeather, "http://x.local", map[string]string{"provider": "open-meteo"}),
		widgetConfig("feed", config.KindFeed, "http://x.local", map[string]string{"limit": "10"}),
		widgetConfig("metrics", config.KindMetrics, "http://x.local", map[string]string{"warnAt": "60"}),
		widgetConfig("containers", config.KindContainers, "http://x.local", nil),
		widgetConfig("latency", config.KindSeries, "http://x.local", map[string]string{"valuePath": "v", "timestampPath": "t"}),
		widgetConfig("rps", config.KindPrometheus, "http://x.local", map[string]string{"query": "up"}),
	}
	for _, w := range widgets {
		require.NoError(t, addWidget(d, w, client, fetch.BreakerConfig{ConsecutiveFailures: 2}), w.Name)
	}

	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, len(widgets))

	var series transform.Series
	require.NoError(t, json.Unmarshal(latest(t, store, "rps").ViewModel, &series))
	assert.Equal(t, "rps", series.Metric)
	assert.Empty(t, series.Points)
}

func TestOpenMeteoQuery(t *testing.T) {
	w := widgetConfig("weather", config.KindWeather, "https://api.open-meteo.com/v1/forecast", map[string]string{
		"latitude": "40.7128",
	})
	w.Endpoint.Query = map[string]string{"timezone": "UTC"}

	cfg := openMeteoQuery(w)
	assert.Equal(t, "40.7128", cfg.Query["latitude"])
	assert.Equal(t, defaultLongitude, cfg.Query["longitude"])
	assert.Equal(t, "true", cfg.Query["current_weather"])
	assert.Equal(t, "kmh", cfg.Query["windspeed_unit"])
	assert.Equal(t, "uv_index_max", cfg.Query["daily"])
	assert.Equal(t, "UTC", cfg.Query["timezone"], "configured values win")
	assert.Len(t, w.Endpoint.Query, 1, "input config must not be mutated")
}

type capturingFetcher struct {
	cfg fetch.EndpointConfig
	err error
}

func (c *capturingFetcher) Fetch(_ context.Context, cfg fetch.EndpointConfig) (fetch.Payload, error) {
	c.cfg = cfg
	return fetch.Payload{}, c.err
}

func TestRangeQuery(t *testing.T) {
	next := &capturingFetcher{}
	rq := &rangeQuery{
		next:   next,
		query:  "sum(rate(http_requests_total[1m]))",
		window: 30 * time.Minute,
		step:   time.Minute,
		now:    func() time.Time { return time.Unix(1700000000, 500) },
	}

	in := fetch.EndpointConfig{URL: "http://prom:9090/api/v1/query_range", Query: map[string]string{"dedup": "true"}}
	_, err := rq.Fetch(context.Background(), in)
	require.NoError(t, err)

	q := next.cfg.Query
	assert.Equal(t, "sum(rate(http_requests_total[1m]))", q["query"])
	assert.Equal(t, "1699998200", q["start"])
	assert.Equal(t, "1700000000", q["end"])
	assert.Equal(t, "60", q["step"])
	assert.Equal(t, "true", q["dedup"])
	assert.NotContains(t, in.Query, "start", "input config must not be mutated")

	rq.step = 500 * time.Millisecond
	_, err = rq.Fetch(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "0.5", next.cfg.Query["step"], "sub-second steps are not truncated")

	next.err = errors.New("boom")
	_, err = rq.Fetch(context.Background(), in)
	assert.EqualError(t, err, "boom")
}

type pingStore struct {
	*storage.MemoryStore
	err error
}

func (p pingStore) Ping(context.Context) error { return p.err }

func TestHealthCheck(t *testing.T) {
	assert.Nil(t, healthCheck(storage.NewMemoryStore()))

	check := healthCheck(pingStore{MemoryStore: storage.NewMemoryStore(), err: errors.New("down")})
	require.NotNil(t, check)
	assert.EqualError(t, check(context.Background()), "down")
}
