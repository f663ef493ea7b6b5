package transform

import (
	"fmt"
	"math"
	"time"

	"github.com/tidwall/gjson"
)

var directions = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// ToFahrenheit converts Celsius to Fahrenheit, rounded to the nearest integer.
func ToFahrenheit(celsius float64) int {
	return int(math.Round(celsius*9/5 + 32))
}

// ToMph converts metres per second to miles per hour, rounded to the nearest integer.
func ToMph(metersPerSecond float64) int {
	return int(math.Round(metersPerSecond * 2.237))
}

// KmhToMetersPerSecond converts km/h to m/s without rounding.
func KmhToMetersPerSecond(kmh float64) float64 {
	return kmh / 3.6
}

// Cardinal maps a bearing in degrees to a 16-point compass direction:
// directions[round(degrees/22.5) mod 16]. Negative bearings wrap.
func Cardinal(degrees float64) string {
	d := math.Mod(degrees, 360)
	if d < 0 {
		d += 360
	}
	idx := int(math.Round(d/22.5)) % 16
	return directions[idx]
}

// RelativeTime renders how long before ref the instant t was: minutes under
// an hour, hours under a day, days otherwise. Each bucket uses floor
// division. Instants after ref count as zero.
func RelativeTime(t, ref time.Time) string {
	d := ref.Sub(t)
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int64(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int64(d/time.Hour))
	default:
		return fmt.Sprintf("%dd ago", int64(d/(24*time.Hour)))
	}
}

// Timestamp formats understood by parseTimestamp.
const (
	TimestampRFC3339   = "rfc3339"
	TimestampUnix      = "unix"
	TimestampUnixMilli = "unix_milli"
)

// localLayouts are accepted for string timestamps without a zone,
// e.g. Open-Meteo's "2025-01-01T12:00".
var localLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseTimestamp parses a timestamp according to format. With an empty
// format, strings are parsed as RFC3339 (or a zone-less layout, as UTC) and
// numbers as Unix seconds.
func parseTimestamp(value gjson.Result, format string) (time.Time, error) {
	switch format {
	case TimestampUnix:
		return time.Unix(int64(value.Float()), 0).UTC(), nil
	case TimestampUnixMilli:
		return time.UnixMilli(int64(value.Float())).UTC(), nil
	case TimestampRFC3339:
		return time.Parse(time.RFC3339, value.String())
	case "":
		if value.Type == gjson.Number {
			return time.Unix(int64(value.Float()), 0).UTC(), nil
		}
		s := value.String()
		for _, layout := range localLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp format: %s", format)
	}
}

// timestampOr parses r, returning def when r is absent or unparseable.
func timestampOr(r gjson.Result, def time.Time) time.Time {
	if !present(r) {
		return def
	}
	t, err := parseTimestamp(r, "")
	if err != nil {
		return def
	}
	return t
}
