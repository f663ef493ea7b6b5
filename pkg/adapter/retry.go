package adapter

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"

	"github.com/brandoz2255/k8s-dashboard/pkg/fetch"
)

// retryable reports whether a fetch error is worth another attempt within
// the same tick. Errors that are not *fetch.Error come from custom fetchers
// and are treated like connection failures.
func retryable(err error) bool {
	var fe *fetch.Error
	if errors.As(err, &fe) {
		return fe.Retryable()
	}
	return !errors.Is(err, context.Canceled)
}

// fetchWithRetry calls the fetcher up to Retry.MaxAttempts times, waiting an
// exponentially growing delay (starting at Retry.Backoff) between attempts.
func (a *Adapter[V]) fetchWithRetry(ctx context.Context) (fetch.Payload, error) {
	policy := a.cfg.Retry
	if policy.MaxAttempts <= 1 {
		return a.fetcher.Fetch(ctx, a.cfg)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.Backoff
	b.MaxInterval = a.cfg.Interval
	b.MaxElapsedTime = 0

	var payload fetch.Payload
	attempt := 0
	operation := func() error {
		attempt++
		p, err := a.fetcher.Fetch(ctx, a.cfg)
		if err == nil {
			payload = p
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		if attempt < policy.MaxAttempts {
			a.logger.Debug("fetch attempt failed, retrying",
				"adapter", a.name,
				"attempt", attempt,
				"max_attempts", policy.MaxAttempts,
				"error", err,
			)
		}
		return err
	}

	// #nosec G115 -- MaxAttempts is validated to be >= 1
	retries := uint64(policy.MaxAttempts - 1)
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)); err != nil {
		return fetch.Payload{}, err
	}
	return payload, nil
}
