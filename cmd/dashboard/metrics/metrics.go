// Package metrics provides Prometheus instrumentation for dashboard widgets.
//
// Metrics exposed:
//   - dashboard_fetch_seconds: Histogram of refresh duration, retries included
//   - dashboard_errors_total: Counter of failed refreshes by error kind
//   - dashboard_widget_status: Gauge set to 1 for the widget's current status
//   - dashboard_dropped_ticks_total: Counter of ticks skipped while a fetch was in flight
//   - dashboard_last_success_timestamp_seconds: Gauge of the last successful refresh
//   - dashboard_publish_errors_total: Counter of snapshots the store rejected
//
// All metrics carry widget and kind labels.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/brandoz2255/k8s-dashboard/pkg/adapter"
)

var statuses = []adapter.Status{
	adapter.StatusIdle,
	adapter.StatusLoading,
	adapter.StatusReady,
	adapter.StatusStale,
	adapter.StatusFailed,
}

// Metrics holds the Prometheus metrics of one widget.
type Metrics struct {
	FetchSeconds       prometheus.Histogram
	ErrorsTotal        *prometheus.CounterVec
	Status             *prometheus.GaugeVec
	DroppedTicksTotal  prometheus.Counter
	LastSuccessSeconds prometheus.Gauge
	PublishErrorsTotal prometheus.Counter
}

// New creates the metrics for widget and registers them with reg.
func New(reg prometheus.Registerer, widget, kind string) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"widget": widget, "kind": kind}

	return &Metrics{
		FetchSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "dashboard_fetch_seconds",
			Help:        "Time spent fetching a widget endpoint, retries included",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "dashboard_errors_total",
			Help:        "Failed widget refreshes by error kind",
			ConstLabels: labels,
		}, []string{"error_kind"}),

		Status: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "dashboard_widget_status",
			Help:        "Current widget status (1 for the active status, 0 otherwise)",
			ConstLabels: labels,
		}, []string{"status"}),

		DroppedTicksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name:        "dashboard_dropped_ticks_total",
			Help:        "Refresh ticks skipped because a fetch was already in flight",
			ConstLabels: labels,
		}),

		LastSuccessSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "dashboard_last_success_timestamp_seconds",
			Help:        "Unix time of the last successful refresh",
			ConstLabels: labels,
		}),

		PublishErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name:        "dashboard_publish_errors_total",
			Help:        "Widget snapshots that could not be written to the store",
			ConstLabels: labels,
		}),
	}
}

func (m *Metrics) RecordFetch(seconds float64) { m.FetchSeconds.Observe(seconds) }

func (m *Metrics) RecordError(kind string) { m.ErrorsTotal.WithLabelValues(kind).Inc() }

func (m *Metrics) RecordDroppedTick() { m.DroppedTicksTotal.Inc() }

func (m *Metrics) RecordPublishError() { m.PublishErrorsTotal.Inc() }

// SetStatus marks status as the active one.
func (m *Metrics) SetStatus(status string) {
	for _, s := range statuses {
		m.Status.WithLabelValues(string(s)).Set(0)
	}
	m.Status.WithLabelValues(status).Set(1)
}

func (m *Metrics) SetLastSuccess(t time.Time) {
	m.LastSuccessSeconds.Set(float64(t.UnixNano()) / 1e9)
}
