package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies why a fetch failed.
type Kind string

const (
	KindTimeout    Kind = "Timeout"
	KindHTTP       Kind = "HttpError"
	KindConnection Kind = "ConnectionError"
	KindParse      Kind = "ParseError"
	// KindCanceled marks a fetch aborted by its caller. Adapters discard it.
	KindCanceled Kind = "Canceled"
)

// Error is the only error type returned by Client.Fetch.
type Error struct {
	Kind Kind
	// Status is the HTTP status code for KindHTTP, zero otherwise.
	Status int
	URL    string
	// Body holds at most 1 KiB of the response for KindHTTP.
	Body string
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTP:
		if e.Body != "" {
			return fmt.Sprintf("fetch %s: http status %d: %s", e.URL, e.Status, e.Body)
		}
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.Status)
	default:
		if e.Err != nil {
			return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
		}
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could plausibly succeed.
// Parse failures and client-side HTTP errors are permanent.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindConnection:
		return true
	case KindHTTP:
		return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
	default:
		return false
	}
}

// KindOf returns the Kind of err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}
