package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/brandoz2255/k8s-dashboard/pkg/adapter"
)

var _ adapter.Metrics = (*Metrics)(nil)

func TestMetrics_Status(t *testing.T) {
	m := New(prometheus.NewRegistry(), "weather", "weather")

	m.SetStatus("Loading")
	m.SetStatus("Ready")

	if got := testutil.ToFloat64(m.Status.WithLabelValues("Ready")); got != 1 {
		t.Errorf("Ready = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Status.WithLabelValues("Loading")); got != 0 {
		t.Errorf("Loading = %v, want 0", got)
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry(), "feed", "feed")

	m.RecordError("Timeout")
	m.RecordError("Timeout")
	m.RecordError("ParseError")
	m.RecordDroppedTick()
	m.RecordPublishError()

	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("Timeout")); got != 2 {
		t.Errorf("Timeout errors = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("ParseError")); got != 1 {
		t.Errorf("ParseError errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DroppedTicksTotal); got != 1 {
		t.Errorf("dropped ticks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PublishErrorsTotal); got != 1 {
		t.Errorf("publish errors = %v, want 1", got)
	}
}

func TestMetrics_LastSuccessAndFetch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "metrics", "metrics")

	m.SetLastSuccess(time.Unix(1700000000, 0))
	if got := testutil.ToFloat64(m.LastSuccessSeconds); got != 1700000000 {
		t.Errorf("last success = %v", got)
	}

	m.RecordFetch(0.2)
	want := `
# HELP dashboard_fetch_seconds Time spent fetching a widget endpoint, retries included
# TYPE dashboard_fetch_seconds histogram
dashboard_fetch_seconds_bucket{kind="metrics",widget="metrics",le="0.005"} 0
dashboard_fetch_seconds_bucket{kind="metrics",widget="metrics",le="0.01"} 0
dashboard_fetch_seconds_bucket{kind="metrics",widget="metrics",le="0.025"} 0
dashboard_fetch_seconds_bucket{kind="metrics",widget="metrics",le="0.05"} 0
dashboard_fetch_seconds_bucket{kind="metrics",widget="metrics",le="0.1"} 0
dashboard_fetch_seconds_bucket{kind="metrics",widget="metrics",le="0.25"} 1
dashboard_fetch_seconds_bucket{kind="metrics",widget="metrics",le="0.5"} 1
dashboard_fetch_seconds_bucket{kind="metrics",widget="metrics",le="1"} 1
dashboard_fetch_seconds_bucket{kind="metrics",widget="metrics",le="2.5"} 1
dashboard_fetch_seconds_bucket{kind="metrics",widget="metrics",le="5"} 1
dashboard_fetch_seconds_bucket{kind="metrics",widget="metrics",le="10"} 1
dashboard_fetch_seconds_bucket{kind="metrics",widget="metrics",le="+Inf"} 1
dashboard_fetch_seconds_sum{kind="metrics",widget="metrics"} 0.2
dashboard_fetch_seconds_count{kind="metrics",widget="metrics"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "dashboard_fetch_seconds"); err != nil {
		t.Error(err)
	}
}

func TestNew_SeparateWidgetsShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg, "weather", "weather")
	New(reg, "feed", "feed")

	n, err := testutil.GatherAndCount(reg, "dashboard_dropped_ticks_total")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if n != 2 {
		t.Errorf("dropped ticks series = %d, want 2", n)
	}
}
