// Package adapter implements the polling data adapter: a small state machine
// that periodically fetches one endpoint, transforms the payload into a view
// model and exposes read-only snapshots to consumers.
//
// Each tick runs
//
//	fetch (with retries) → transform → settle
//
// and settles into one of the states
//
//	Idle → Loading → Ready | Failed
//	Ready → Loading → Ready | Stale
//
// A failed tick keeps the last good view model (Stale) or the fallback when
// nothing has succeeded yet (Failed). Errors never escape the adapter; they
// are reported through State.LastError and the polling loop keeps running
// until Teardown.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brandoz2255/k8s-dashboard/pkg/fetch"
	"github.com/brandoz2255/k8s-dashboard/pkg/transform"
)

const (
	stageFetch     = "fetch"
	stageTransform = "transform"
)

// Listener receives a snapshot after every state transition.
type Listener[V any] func(State[V])

// Metrics receives adapter instrumentation. Implementations are expected to
// be bound to a single adapter.
type Metrics interface {
	RecordFetch(seconds float64)
	RecordError(kind string)
	RecordDroppedTick()
	SetStatus(status string)
	SetLastSuccess(t time.Time)
}

// Option configures an Adapter.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics Metrics
	now     func() time.Time
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock overrides the clock used for LastUpdated and error timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Adapter polls one endpoint and owns the resulting State.
//
// At most one fetch is in flight at a time: ticks and refreshes that arrive
// while a fetch is running are dropped, not queued.
type Adapter[V any] struct {
	name        string
	cfg         fetch.EndpointConfig
	fetcher     fetch.Fetcher
	transformer transform.Transformer[V]
	logger      *slog.Logger
	metrics     Metrics
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	mu           sync.Mutex
	state        State[V]
	settled      Status // status to restore if torn down while loading
	inFlight     bool
	started      bool
	closed       bool
	listeners    map[uint64]Listener[V]
	nextListener uint64
}

// New creates an adapter in the Idle state serving fallback. The config is
// defaulted, validated and copied.
//
// The adapter does not poll until Start is called, which lets callers
// subscribe listeners first and observe the initial tick. Use NewStarted to
// construct and start in one step.
func New[V any](
	name string,
	cfg fetch.EndpointConfig,
	fetcher fetch.Fetcher,
	transformer transform.Transformer[V],
	fallback V,
	opts ...Option,
) (*Adapter[V], error) {
	if name == "" {
		return nil, errors.New("adapter name is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("adapter %s: fetcher is required", name)
	}
	if transformer == nil {
		return nil, fmt.Errorf("adapter %s: transformer is required", name)
	}
	cfg = cfg.WithDefaults().Clone()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("adapter %s: %w", name, err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.now == nil {
		o.now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Adapter[V]{
		name:        name,
		cfg:         cfg,
		fetcher:     fetcher,
		transformer: transformer,
		logger:      o.logger,
		metrics:     o.metrics,
		now:         o.now,
		ctx:         ctx,
		cancel:      cancel,
		state:       State[V]{ViewModel: fallback, Status: StatusIdle},
		settled:     StatusIdle,
		listeners:   make(map[uint64]Listener[V]),
	}
	if a.metrics != nil {
		a.metrics.SetStatus(string(StatusIdle))
	}
	return a, nil
}

// NewStarted is New followed by Start: the first tick is scheduled
// immediately.
func NewStarted[V any](
	name string,
	cfg fetch.EndpointConfig,
	fetcher fetch.Fetcher,
	transformer transform.Transformer[V],
	fallback V,
	opts ...Option,
) (*Adapter[V], error) {
	a, err := New(name, cfg, fetcher, transformer, fallback, opts...)
	if err != nil {
		return nil, err
	}
	a.Start()
	return a, nil
}

// Name returns the adapter name.
func (a *Adapter[V]) Name() string { return a.name }

// Config returns a copy of the endpoint configuration.
func (a *Adapter[V]) Config() fetch.EndpointConfig { return a.cfg.Clone() }

// State returns a snapshot of the current state.
func (a *Adapter[V]) State() State[V] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.clone()
}

// Start launches the polling loop: one tick immediately, then one every
// Interval. Calling Start more than once, or after Teardown, does nothing.
func (a *Adapter[V]) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started || a.closed {
		return
	}
	a.started = true
	a.wg.Add(1)
	go a.loop()
}

func (a *Adapter[V]) loop() {
	defer a.wg.Done()

	a.logger.Info("starting poll loop", "adapter", a.name, "url", a.cfg.URL, "interval", a.cfg.Interval)

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	a.tick("start")
	for {
		select {
		case <-a.ctx.Done():
			a.logger.Info("poll loop stopped", "adapter", a.name)
			return
		case <-ticker.C:
			a.tick("interval")
		}
	}
}

// Refresh performs one extra tick outside the schedule without resetting the
// interval timer. It reports whether a fetch was started; false means one is
// already in flight or the adapter has been torn down.
func (a *Adapter[V]) Refresh() bool {
	return a.tick("refresh")
}

// Subscribe registers a listener called after every state transition, in
// transition order. Listeners run on the adapter's goroutines and must not
// call Teardown. The returned function removes the listener.
func (a *Adapter[V]) Subscribe(l Listener[V]) (unsubscribe func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || l == nil {
		return func() {}
	}
	id := a.nextListener
	a.nextListener++
	a.listeners[id] = l
	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

// Teardown stops the polling loop, aborts any in-flight fetch and waits for
// both to exit. Results that arrive afterwards are discarded and listeners
// are no longer called. Teardown is idempotent.
func (a *Adapter[V]) Teardown() {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		a.state.Epoch++
		if a.state.Status == StatusLoading {
			a.state.Status = a.settled
		}
		clear(a.listeners)
		a.mu.Unlock()

		a.cancel()
		a.wg.Wait()
		a.logger.Info("adapter torn down", "adapter", a.name)
	})
}

// tick starts a fetch unless one is already running.
func (a *Adapter[V]) tick(trigger string) bool {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return false
	}
	if a.inFlight {
		a.mu.Unlock()
		a.logger.Debug("tick dropped, fetch in flight", "adapter", a.name, "trigger", trigger)
		if a.metrics != nil {
			a.metrics.RecordDroppedTick()
		}
		return false
	}

	a.inFlight = true
	a.settled = a.state.Status
	a.state.Status = StatusLoading
	a.state.Epoch++
	epoch := a.state.Epoch
	snap, listeners := a.snapshotLocked()
	a.wg.Add(1)
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.SetStatus(string(StatusLoading))
	}
	a.notify(snap, listeners)

	go a.run(epoch)
	return true
}

// run executes one tick: fetch, transform, settle.
func (a *Adapter[V]) run(epoch uint64) {
	defer a.wg.Done()

	ctx, cancel := context.WithCancel(a.ctx)
	defer cancel()

	start := time.Now()
	payload, err := a.fetchWithRetry(ctx)
	if a.metrics != nil {
		a.metrics.RecordFetch(time.Since(start).Seconds())
	}
	if err != nil {
		var zero V
		a.settle(ctx, epoch, zero, err, stageFetch)
		return
	}

	vm, err := a.applyTransform(payload)
	a.settle(ctx, epoch, vm, err, stageTransform)
}

// applyTransform runs the transformer, converting a panic into a transform error
// so a bad payload settles the tick instead of killing the process.
func (a *Adapter[V]) applyTransform(p fetch.Payload) (vm V, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("transformer panicked", "adapter", a.name, "panic", r)
			var zero V
			vm = zero
			err = &transform.Error{Source: a.name, Reason: fmt.Sprintf("transformer panicked: %v", r)}
		}
	}()
	return a.transformer.Transform(p)
}

// settle applies the outcome of the tick identified by epoch. Outcomes from
// superseded epochs or canceled ticks are discarded.
func (a *Adapter[V]) settle(ctx context.Context, epoch uint64, vm V, err error, stage string) {
	a.mu.Lock()
	if a.closed || epoch != a.state.Epoch || ctx.Err() != nil {
		a.inFlight = false
		a.mu.Unlock()
		a.logger.Debug("discarding tick result", "adapter", a.name, "epoch", epoch)
		return
	}

	now := a.now()
	var info *ErrorInfo
	if err == nil {
		a.state.ViewModel = vm
		a.state.LastUpdated = now
		a.state.Status = StatusReady
		a.state.LastError = nil
	} else {
		info = classify(err, stage, now)
		a.state.LastError = info
		if a.state.HasData() {
			a.state.Status = StatusStale
		} else {
			a.state.Status = StatusFailed
		}
	}
	status := a.state.Status
	snap, listeners := a.snapshotLocked()
	a.mu.Unlock()

	if info != nil {
		a.logger.Warn("refresh failed",
			"adapter", a.name,
			"status", status,
			"kind", info.Kind,
			"http_status", info.Status,
			"error", info.Message,
		)
	} else {
		a.logger.Debug("refresh complete", "adapter", a.name, "epoch", epoch)
	}

	if a.metrics != nil {
		a.metrics.SetStatus(string(status))
		if info != nil {
			a.metrics.RecordError(string(info.Kind))
		} else {
			a.metrics.SetLastSuccess(now)
		}
	}

	a.notify(snap, listeners)

	// Clearing inFlight after notifying keeps listener calls in transition
	// order: the next tick cannot begin until this one has been delivered.
	a.mu.Lock()
	a.inFlight = false
	a.mu.Unlock()
}

func (a *Adapter[V]) snapshotLocked() (State[V], []Listener[V]) {
	listeners := make([]Listener[V], 0, len(a.listeners))
	for _, l := range a.listeners {
		listeners = append(listeners, l)
	}
	return a.state.clone(), listeners
}

func (a *Adapter[V]) notify(snap State[V], listeners []Listener[V]) {
	for _, l := range listeners {
		a.call(l, snap)
	}
}

func (a *Adapter[V]) call(l Listener[V], snap State[V]) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("listener panicked", "adapter", a.name, "panic", r)
		}
	}()
	l(snap)
}
