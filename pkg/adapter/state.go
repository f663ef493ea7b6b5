package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/brandoz2255/k8s-dashboard/pkg/fetch"
	"github.com/brandoz2255/k8s-dashboard/pkg/transform"
)

// Status is the adapter lifecycle state.
type Status string

const (
	StatusIdle    Status = "Idle"
	StatusLoading Status = "Loading"
	StatusReady   Status = "Ready"
	// StatusStale means the last fetch failed but an earlier Ready view model
	// is still being served.
	StatusStale Status = "Stale"
	// StatusFailed means the last fetch failed and no fetch has ever
	// succeeded, so the fallback view model is served.
	StatusFailed Status = "Failed"
)

// ErrorKind identifies what went wrong in a tick.
type ErrorKind string

const (
	ErrorTimeout    ErrorKind = "Timeout"
	ErrorHTTP       ErrorKind = "HttpError"
	ErrorConnection ErrorKind = "ConnectionError"
	ErrorParse      ErrorKind = "ParseError"
	ErrorTransform  ErrorKind = "TransformError"
)

// Category groups error kinds into network and data problems.
type Category string

const (
	CategoryNetwork Category = "NetworkError"
	CategoryData    Category = "DataError"
)

// ErrorInfo describes the most recent failed tick.
type ErrorInfo struct {
	Kind     ErrorKind `json:"kind"`
	Category Category  `json:"category"`
	// Status is the HTTP status for HttpError, otherwise 0.
	Status  int       `json:"status,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// State is a read-only snapshot of an adapter.
//
// ViewModel is shared with the adapter, which never mutates a view model
// after producing it. Consumers must not mutate it either.
type State[V any] struct {
	ViewModel V `json:"viewModel"`
	// LastUpdated is the time of the last successful tick; zero means never.
	LastUpdated time.Time  `json:"lastUpdated"`
	Status      Status     `json:"status"`
	LastError   *ErrorInfo `json:"lastError,omitempty"`
	// Epoch increments on every accepted tick and on teardown.
	Epoch uint64 `json:"epoch"`
}

// HasData reports whether the view model came from a successful fetch rather
// than the fallback.
func (s State[V]) HasData() bool {
	return !s.LastUpdated.IsZero()
}

func (s State[V]) clone() State[V] {
	if s.LastError != nil {
		e := *s.LastError
		s.LastError = &e
	}
	return s
}

// classify maps an error from the fetch or transform stage to ErrorInfo.
// Errors of unknown type are attributed to the stage they came from.
func classify(err error, stage string, at time.Time) *ErrorInfo {
	info := &ErrorInfo{Message: err.Error(), At: at}

	var te *transform.Error
	var fe *fetch.Error
	switch {
	case errors.As(err, &te):
		info.Kind = ErrorTransform
	case errors.As(err, &fe):
		info.Status = fe.Status
		switch fe.Kind {
		case fetch.KindTimeout:
			info.Kind = ErrorTimeout
		case fetch.KindHTTP:
			info.Kind = ErrorHTTP
		case fetch.KindParse:
			info.Kind = ErrorParse
		default:
			info.Kind = ErrorConnection
		}
	case stage == stageTransform:
		info.Kind = ErrorTransform
	case errors.Is(err, context.DeadlineExceeded):
		info.Kind = ErrorTimeout
	default:
		info.Kind = ErrorConnection
	}

	switch info.Kind {
	case ErrorParse, ErrorTransform:
		info.Category = CategoryData
	default:
		info.Category = CategoryNetwork
	}
	return info
}
