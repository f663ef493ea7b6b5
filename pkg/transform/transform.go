// Package transform turns raw endpoint payloads into display-ready view
// models.
//
// Transformers are pure: the result depends only on the payload body and its
// fetch time, so calling Transform twice on the same payload yields equal
// view models. Optional fields fall back to documented defaults; a missing
// required field fails with *Error, which callers treat as a data defect
// rather than a network failure.
//
// Available transformers:
//   - WeatherTransformer     current conditions and daily forecast
//   - FeedTransformer        article/post lists with relative times
//   - MetricsTransformer     CPU, memory, disk and container counts
//   - ContainersTransformer  container inventory
//   - SeriesTransformer      time series via JSON paths
//   - PrometheusTransformer  time series from a Prometheus query_range response
package transform

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/brandoz2255/k8s-dashboard/pkg/fetch"
)

// Transformer converts a fetched payload into a view model of type V.
type Transformer[V any] interface {
	Transform(p fetch.Payload) (V, error)
}

// Func adapts an ordinary function to the Transformer interface.
type Func[V any] func(p fetch.Payload) (V, error)

// Transform implements Transformer.
func (f Func[V]) Transform(p fetch.Payload) (V, error) { return f(p) }

// Error reports a payload that cannot be turned into a view model.
type Error struct {
	// Source names the transformer, e.g. "weather".
	Source string
	// Field is the JSON path that was missing or invalid.
	Field  string
	Reason string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("transform %s: %s", e.Source, e.Reason)
	}
	return fmt.Sprintf("transform %s: field %q: %s", e.Source, e.Field, e.Reason)
}

func missingField(source, field string) *Error {
	return &Error{Source: source, Field: field, Reason: "required field is missing"}
}

func invalidField(source, field, reason string) *Error {
	return &Error{Source: source, Field: field, Reason: reason}
}

// present reports whether r holds a non-null value.
func present(r gjson.Result) bool {
	return r.Exists() && r.Type != gjson.Null
}

func requireNumber(source string, body []byte, path string) (float64, error) {
	r := gjson.GetBytes(body, path)
	if !present(r) {
		return 0, missingField(source, path)
	}
	if r.Type != gjson.Number {
		return 0, invalidField(source, path, fmt.Sprintf("expected number, got %s", r.Type))
	}
	return r.Float(), nil
}

func optionalNumber(body []byte, path string, def float64) float64 {
	if path == "" {
		return def
	}
	r := gjson.GetBytes(body, path)
	if !present(r) || r.Type != gjson.Number {
		return def
	}
	return r.Float()
}

func optionalString(r gjson.Result, def string) string {
	if !present(r) || r.String() == "" {
		return def
	}
	return r.String()
}
