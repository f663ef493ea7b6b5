package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/brandoz2255/k8s-dashboard/cmd/dashboard/config"
	"github.com/brandoz2255/k8s-dashboard/cmd/dashboard/metrics"
	"github.com/brandoz2255/k8s-dashboard/pkg/adapter"
	"github.com/brandoz2255/k8s-dashboard/pkg/fetch"
	"github.com/brandoz2255/k8s-dashboard/pkg/storage"
	"github.com/brandoz2255/k8s-dashboard/pkg/transform"
)

const publishTimeout = 2 * time.Second

// widget is the part of an adapter the dashboard drives, independent of
// its view model type.
type widget interface {
	Name() string
	Start()
	Refresh() bool
	Teardown()
}

// Dashboard owns one adapter per configured widget and publishes every
// state transition to the store.
type Dashboard struct {
	store    storage.Store
	registry prometheus.Registerer
	logger   *slog.Logger
	now      func() time.Time

	widgets map[string]widget
	order   []string
}

// NewDashboard creates an empty dashboard. Widgets are added with addWidget.
func NewDashboard(store storage.Store, reg prometheus.Registerer, logger *slog.Logger) *Dashboard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dashboard{
		store:    store,
		registry: reg,
		logger:   logger,
		now:      time.Now,
		widgets:  make(map[string]widget),
	}
}

// register creates the adapter for w and publishes its initial state, so
// the fallback is readable before the first fetch completes.
func register[V any](d *Dashboard, w config.WidgetConfig, fetcher fetch.Fetcher, tr transform.Transformer[V], fallback V) error {
	if _, dup := d.widgets[w.Name]; dup {
		return fmt.Errorf("widget %q already registered", w.Name)
	}

	m := metrics.New(d.registry, w.Name, w.Kind)
	a, err := adapter.New(w.Name, w.Endpoint, fetcher, tr, fallback,
		adapter.WithLogger(d.logger.With("widget", w.Name)),
		adapter.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	interval := int(a.Config().Interval / time.Second)
	publish := func(s adapter.State[V]) {
		snap, err := toSnapshot(w, interval, s, d.now())
		d.publish(snap, err, m)
	}
	a.Subscribe(publish)
	publish(a.State())

	d.widgets[w.Name] = a
	d.order = append(d.order, w.Name)
	return nil
}

func toSnapshot[V any](w config.WidgetConfig, interval int, s adapter.State[V], now time.Time) (storage.Snapshot, error) {
	snap := storage.Snapshot{
		Widget:          w.Name,
		Kind:            w.Kind,
		Status:          string(s.Status),
		LastUpdated:     s.LastUpdated,
		PublishedAt:     now,
		IntervalSeconds: interval,
		Epoch:           s.Epoch,
	}
	if e := s.LastError; e != nil {
		snap.Error = &storage.Error{
			Kind:     string(e.Kind),
			Category: string(e.Category),
			Status:   e.Status,
			Message:  e.Message,
			At:       e.At,
		}
	}

	vm, err := json.Marshal(s.ViewModel)
	if err != nil {
		return snap, fmt.Errorf("encode view model: %w", err)
	}
	snap.ViewModel = vm
	return snap, nil
}

func (d *Dashboard) publish(snap storage.Snapshot, err error, m *metrics.Metrics) {
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err = d.store.Put(ctx, snap)
		cancel()
	}
	if err != nil {
		m.RecordPublishError()
		d.logger.Error("failed to publish snapshot", "widget", snap.Widget, "status", snap.Status, "error", err)
	}
}

// Start begins polling every widget.
func (d *Dashboard) Start() {
	for _, name := range d.order {
		d.widgets[name].Start()
	}
	d.logger.Info("dashboard started", "widgets", len(d.order))
}

// Stop tears down every widget, waiting for in-flight fetches to abort.
func (d *Dashboard) Stop() {
	for _, name := range d.order {
		d.widgets[name].Teardown()
	}
	d.logger.Info("dashboard stopped")
}

// Has reports whether a widget named name is configured.
func (d *Dashboard) Has(name string) bool {
	_, ok := d.widgets[name]
	return ok
}

// Refresh triggers an immediate refresh of the named widget and reports
// whether a fetch was started.
func (d *Dashboard) Refresh(name string) bool {
	w, ok := d.widgets[name]
	if !ok {
		return false
	}
	return w.Refresh()
}

// Names returns widget names in configuration order.
func (d *Dashboard) Names() []string {
	return append([]string(nil), d.order...)
}
