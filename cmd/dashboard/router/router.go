// Package router configures the dashboard's HTTP API.
//
// Routes configured:
//   - GET  /api/widgets                 - Latest snapshot of every widget
//   - GET  /api/widgets/{name}          - Latest snapshot of one widget
//   - POST /api/widgets/{name}/refresh  - Trigger an out-of-schedule refresh
//   - GET  /healthz                     - Health check
//   - GET  /metrics                     - Prometheus metrics
//
// Snapshots that are Stale, Failed, or older than two polling intervals are
// served with an X-Dashboard-Stale: true header. Manual refreshes are rate
// limited per widget and answered with 429 when the limit is exceeded.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/brandoz2255/k8s-dashboard/pkg/httpx"
	"github.com/brandoz2255/k8s-dashboard/pkg/storage"
)

// StaleHeader marks responses carrying out-of-date data.
const StaleHeader = "X-Dashboard-Stale"

var widgetNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]{0,61}[a-zA-Z0-9])?$`)

// Refresher triggers manual refreshes. Refresh reports whether a fetch was
// started.
type Refresher interface {
	Has(widget string) bool
	Refresh(widget string) bool
}

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Store    storage.Store
	Widgets  Refresher
	Gatherer prometheus.Gatherer
	// Health is called by /healthz; nil always reports healthy.
	Health       func(ctx context.Context) error
	RefreshRate  rate.Limit
	RefreshBurst int
	Logger       *slog.Logger
	// Now is the clock used for staleness; defaults to time.Now.
	Now func() time.Time
}

// RefreshResponse is the body of a 202 reply to a refresh request.
type RefreshResponse struct {
	Widget string `json:"widget"`
	// Started is false when a fetch was already in flight.
	Started bool `json:"started"`
}

// ListResponse is the body of GET /api/widgets.
type ListResponse struct {
	Widgets []storage.Snapshot `json:"widgets"`
}

// SetupRoutes builds the router.
func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	h := &handlers{deps: d, limits: newLimiters(d.RefreshRate, d.RefreshBurst)}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(httpx.RecoveryMiddleware(d.Logger))
	r.Use(httpx.LoggingMiddleware(d.Logger, "/healthz", "/metrics"))

	r.Get("/healthz", httpx.HealthHandler(d.Health))
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/widgets", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{name}", h.get)
		r.Post("/{name}/refresh", h.refresh)
	})

	return r
}

type handlers struct {
	deps   Deps
	limits *limiters
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	snapshots, err := h.deps.Store.List(ctx)
	if err != nil {
		h.deps.Logger.Error("failed to list snapshots", "error", err)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if snapshots == nil {
		snapshots = []storage.Snapshot{}
	}

	now := h.deps.Now()
	for _, s := range snapshots {
		if s.Stale(now) {
			w.Header().Set(StaleHeader, "true")
			break
		}
	}

	if err := httpx.WriteJSON(w, http.StatusOK, ListResponse{Widgets: snapshots}); err != nil {
		h.deps.Logger.Error("failed to write JSON response", "error", err)
	}
}

func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	name, ok := widgetName(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	snapshot, found, err := h.deps.Store.GetLatest(ctx, name)
	if err != nil {
		h.deps.Logger.Error("failed to get snapshot", "widget", name, "error", err)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !found {
		httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("snapshot not found for widget %q", name))
		return
	}

	if snapshot.Stale(h.deps.Now()) {
		w.Header().Set(StaleHeader, "true")
	}

	if err := httpx.WriteJSON(w, http.StatusOK, snapshot); err != nil {
		h.deps.Logger.Error("failed to write JSON response", "error", err)
	}
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	name, ok := widgetName(w, r)
	if !ok {
		return
	}
	if h.deps.Widgets == nil || !h.deps.Widgets.Has(name) {
		httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("widget %q not found", name))
		return
	}

	if !h.limits.allow(name) {
		w.Header().Set("Retry-After", "1")
		httpx.WriteErrorMessage(w, http.StatusTooManyRequests, "refresh rate limit exceeded")
		return
	}

	started := h.deps.Widgets.Refresh(name)

	h.deps.Logger.Info("manual refresh requested",
		"widget", name,
		"started", started,
		"request_id", middleware.GetReqID(r.Context()),
	)
	if err := httpx.WriteJSON(w, http.StatusAccepted, RefreshResponse{Widget: name, Started: started}); err != nil {
		h.deps.Logger.Error("failed to write JSON response", "error", err)
	}
}

func widgetName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := chi.URLParam(r, "name")
	if !widgetNameRegex.MatchString(name) {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid widget name format")
		return "", false
	}
	return name, true
}

// limiters holds one token bucket per widget.
type limiters struct {
	limit rate.Limit
	burst int

	mu     sync.RWMutex
	byName map[string]*rate.Limiter
}

func newLimiters(limit rate.Limit, burst int) *limiters {
	if limit <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &limiters{limit: limit, burst: burst, byName: make(map[string]*rate.Limiter)}
}

func (l *limiters) allow(name string) bool {
	l.mu.RLock()
	limiter, ok := l.byName[name]
	l.mu.RUnlock()

	if !ok {
		l.mu.Lock()
		if limiter, ok = l.byName[name]; !ok {
			limiter = rate.NewLimiter(l.limit, l.burst)
			l.byName[name] = limiter
		}
		l.mu.Unlock()
	}
	return limiter.Allow()
}
