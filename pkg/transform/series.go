package transform

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/brandoz2255/k8s-dashboard/pkg/fetch"
)

// Series is a time-ordered metric history, used for sparkline widgets.
type Series struct {
	Metric string  `json:"metric"`
	Points []Point `json:"points"`
	Latest float64 `json:"latest"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Point is one observation.
type Point struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// SeriesTransformer extracts a series from any JSON payload using gjson
// paths, e.g. ValuePath "data.#.value" and TimestampPath "data.#.timestamp".
// Both paths must resolve to arrays of the same length.
type SeriesTransformer struct {
	Metric        string
	ValuePath     string
	TimestampPath string
	// TimestampFormat is rfc3339 (default), unix or unix_milli.
	TimestampFormat string
}

// Transform implements Transformer.
func (s *SeriesTransformer) Transform(p fetch.Payload) (Series, error) {
	if s.ValuePath == "" || s.TimestampPath == "" {
		return Series{}, &Error{Source: "series", Reason: "valuePath and timestampPath are required"}
	}
	format := s.TimestampFormat
	if format == "" {
		format = TimestampRFC3339
	}

	values := gjson.GetBytes(p.Body, s.ValuePath)
	timestamps := gjson.GetBytes(p.Body, s.TimestampPath)
	if !values.Exists() {
		return Series{}, missingField("series", s.ValuePath)
	}
	if !timestamps.Exists() {
		return Series{}, missingField("series", s.TimestampPath)
	}

	valArray := values.Array()
	tsArray := timestamps.Array()
	if len(valArray) != len(tsArray) {
		return Series{}, &Error{
			Source: "series",
			Reason: fmt.Sprintf("value count (%d) != timestamp count (%d)", len(valArray), len(tsArray)),
		}
	}

	points := make([]Point, 0, len(valArray))
	for i := range valArray {
		ts, err := parseTimestamp(tsArray[i], format)
		if err != nil {
			return Series{}, invalidField("series", fmt.Sprintf("%s[%d]", s.TimestampPath, i), err.Error())
		}
		points = append(points, Point{At: ts, Value: valArray[i].Float()})
	}

	return newSeries(s.Metric, points), nil
}

// PrometheusTransformer reads a Prometheus (or VictoriaMetrics)
// /api/v1/query_range response. Values of all returned series that share a
// timestamp are summed.
type PrometheusTransformer struct {
	Metric string
}

// prometheusRangeResponse mirrors the query_range response envelope.
type prometheusRangeResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Metric map[string]string `json:"metric"`
			// Values is an array of [ <unix_time_float>, "<value_string>" ].
			Values [][]any `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

// Transform implements Transformer.
func (t *PrometheusTransformer) Transform(p fetch.Payload) (Series, error) {
	var pr prometheusRangeResponse
	if err := json.Unmarshal(p.Body, &pr); err != nil {
		return Series{}, &Error{Source: "prometheus", Reason: fmt.Sprintf("decode response: %v", err)}
	}
	if pr.Status == "" {
		return Series{}, missingField("prometheus", "status")
	}
	if pr.Status != "success" {
		return Series{}, invalidField("prometheus", "status", fmt.Sprintf("query failed: %s %s", pr.Status, pr.Error))
	}

	acc := make(map[int64]float64)
	for _, serie := range pr.Data.Result {
		for _, pair := range serie.Values {
			if len(pair) != 2 {
				return Series{}, invalidField("prometheus", "data.result.values", fmt.Sprintf("invalid value pair length: %d", len(pair)))
			}
			tsSec, ok := pair[0].(float64)
			if !ok {
				return Series{}, invalidField("prometheus", "data.result.values", fmt.Sprintf("unexpected timestamp type %T", pair[0]))
			}
			var val float64
			switch v := pair[1].(type) {
			case string:
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return Series{}, invalidField("prometheus", "data.result.values", fmt.Sprintf("parse value: %v", err))
				}
				val = f
			case float64:
				val = v
			default:
				return Series{}, invalidField("prometheus", "data.result.values", fmt.Sprintf("unexpected value type %T", v))
			}
			acc[int64(tsSec)] += val
		}
	}

	points := make([]Point, 0, len(acc))
	for ts, v := range acc {
		points = append(points, Point{At: time.Unix(ts, 0).UTC(), Value: v})
	}
	return newSeries(t.Metric, points), nil
}

// newSeries drops non-finite values (they cannot be encoded as JSON), sorts
// points by time and fills the summary fields.
func newSeries(metric string, points []Point) Series {
	finite := make([]Point, 0, len(points))
	for _, pt := range points {
		if !math.IsNaN(pt.Value) && !math.IsInf(pt.Value, 0) {
			finite = append(finite, pt)
		}
	}
	sort.Slice(finite, func(i, j int) bool { return finite[i].At.Before(finite[j].At) })

	s := Series{Metric: metric, Points: finite}
	for i, pt := range finite {
		if i == 0 {
			s.Min, s.Max = pt.Value, pt.Value
		}
		s.Min = math.Min(s.Min, pt.Value)
		s.Max = math.Max(s.Max, pt.Value)
		s.Latest = pt.Value
	}
	return s
}
