package fetch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig configures a BreakerFetcher.
type BreakerConfig struct {
	Name string
	// ConsecutiveFailures trips the breaker. Defaults to 5.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before a probe. Defaults to 60s.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of probes allowed while half-open. Defaults to 1.
	HalfOpenRequests uint32
}

// BreakerFetcher fails fast while an endpoint keeps failing at the network
// level. Data errors (malformed bodies) do not count against the breaker;
// neither do 4xx responses or caller cancellations.
type BreakerFetcher struct {
	next    Fetcher
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerFetcher wraps next with a circuit breaker.
func NewBreakerFetcher(next Fetcher, cfg BreakerConfig, logger *slog.Logger) *BreakerFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 60 * time.Second
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}

	threshold := cfg.ConsecutiveFailures
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("fetch circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var fe *Error
			if errors.As(err, &fe) {
				return !fe.Retryable()
			}
			return false
		},
	}

	return &BreakerFetcher{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Fetch implements Fetcher.
func (b *BreakerFetcher) Fetch(ctx context.Context, cfg EndpointConfig) (Payload, error) {
	res, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.Fetch(ctx, cfg)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Payload{}, &Error{Kind: KindConnection, URL: cfg.URL, Err: err}
		}
		return Payload{}, err
	}
	return res.(Payload), nil
}

// State returns the breaker's current state name: closed, half-open or open.
func (b *BreakerFetcher) State() string {
	return b.breaker.State().String()
}
