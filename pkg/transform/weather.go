package transform

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/brandoz2255/k8s-dashboard/pkg/fetch"
)

// Sentinels for readings the endpoint did not provide.
const (
	UVUnavailable       = -1.0
	HumidityUnavailable = -1
	DirectionUnknown    = "N/A"
)

// Weather is the weather widget view model. Temperatures are °F, wind is mph.
type Weather struct {
	Location      string          `json:"location"`
	Temp          int             `json:"temp"`
	TempC         float64         `json:"tempC"`
	FeelsLike     int             `json:"feelsLike"`
	Humidity      int             `json:"humidity"`
	WindMph       int             `json:"windMph"`
	WindDirection string          `json:"windDirection"`
	WindDegrees   float64         `json:"windDegrees"`
	UVIndex       float64         `json:"uvIndex"`
	Condition     string          `json:"condition"`
	ObservedAt    time.Time       `json:"observedAt"`
	Updated       string          `json:"updated"`
	Source        string          `json:"source"`
	Forecast      []DailyForecast `json:"forecast"`
}

// DailyForecast is one day of a weather forecast, in °F.
type DailyForecast struct {
	Date      string `json:"date"`
	High      int    `json:"high"`
	Low       int    `json:"low"`
	Condition string `json:"condition"`
}

// WeatherPaths locates weather fields in a payload using gjson syntax.
// Temp is required; an empty path disables an optional field.
type WeatherPaths struct {
	Location   string `yaml:"location"`
	Temp       string `yaml:"temp"`
	FeelsLike  string `yaml:"feelsLike"`
	Humidity   string `yaml:"humidity"`
	WindSpeed  string `yaml:"windSpeed"`
	WindDeg    string `yaml:"windDeg"`
	UV         string `yaml:"uv"`
	Condition  string `yaml:"condition"`
	ObservedAt string `yaml:"observedAt"`
	Forecast   string `yaml:"forecast"`
	// WindSpeedKmh marks WindSpeed as km/h rather than m/s.
	WindSpeedKmh bool `yaml:"windSpeedKmh"`
}

// DefaultWeatherPaths matches the flat payload served by the dashboard backend:
//
//	{"location": "Hesperia, CA", "temp": 20.4, "feels_like": 19, "humidity": 40,
//	 "wind_speed": 4.2, "wind_deg": 315, "uv_index": 6, "condition": "Clear",
//	 "observed_at": "2025-01-01T12:00:00Z",
//	 "forecast": [{"date": "2025-01-02", "max": 22, "min": 9, "description": "Sunny"}]}
var DefaultWeatherPaths = WeatherPaths{
	Location:   "location",
	Temp:       "temp",
	FeelsLike:  "feels_like",
	Humidity:   "humidity",
	WindSpeed:  "wind_speed",
	WindDeg:    "wind_deg",
	UV:         "uv_index",
	Condition:  "condition",
	ObservedAt: "observed_at",
	Forecast:   "forecast",
}

// OpenMeteoPaths reads an Open-Meteo /v1/forecast response requested with
// current_weather=true (Celsius, km/h).
var OpenMeteoPaths = WeatherPaths{
	Temp:         "current_weather.temperature",
	WindSpeed:    "current_weather.windspeed",
	WindDeg:      "current_weather.winddirection",
	UV:           "daily.uv_index_max.0",
	Condition:    "current_weather.weathercode",
	ObservedAt:   "current_weather.time",
	WindSpeedKmh: true,
}

// WeatherTransformer builds Weather view models. Input temperatures are °C.
type WeatherTransformer struct {
	Paths WeatherPaths
	// Location is used when the payload carries no location.
	Location string
	// Source labels where the reading came from, e.g. "open-meteo".
	Source string
}

// NewWeatherTransformer returns a transformer for the default payload shape.
func NewWeatherTransformer(location string) *WeatherTransformer {
	return &WeatherTransformer{Paths: DefaultWeatherPaths, Location: location, Source: "api"}
}

// Transform implements Transformer.
func (w *WeatherTransformer) Transform(p fetch.Payload) (Weather, error) {
	paths := w.Paths
	if paths.Temp == "" {
		paths = DefaultWeatherPaths
	}
	body := p.Body

	tempC, err := requireNumber("weather", body, paths.Temp)
	if err != nil {
		return Weather{}, err
	}

	location := w.Location
	if location == "" {
		location = "Unknown"
	}
	if paths.Location != "" {
		location = optionalString(gjson.GetBytes(body, paths.Location), location)
	}

	source := w.Source
	if source == "" {
		source = "api"
	}

	vm := Weather{
		Location:      location,
		Temp:          ToFahrenheit(tempC),
		TempC:         tempC,
		FeelsLike:     ToFahrenheit(optionalNumber(body, paths.FeelsLike, tempC)),
		Humidity:      int(optionalNumber(body, paths.Humidity, HumidityUnavailable)),
		UVIndex:       optionalNumber(body, paths.UV, UVUnavailable),
		WindDirection: DirectionUnknown,
		Condition:     "Unknown",
		ObservedAt:    p.FetchedAt,
		Source:        source,
		Forecast:      []DailyForecast{},
	}

	windSpeed := optionalNumber(body, paths.WindSpeed, 0)
	if paths.WindSpeedKmh {
		windSpeed = KmhToMetersPerSecond(windSpeed)
	}
	vm.WindMph = ToMph(windSpeed)

	if paths.WindDeg != "" {
		if r := gjson.GetBytes(body, paths.WindDeg); present(r) && r.Type == gjson.Number {
			vm.WindDegrees = r.Float()
			vm.WindDirection = Cardinal(r.Float())
		}
	}

	if paths.Condition != "" {
		vm.Condition = conditionText(gjson.GetBytes(body, paths.Condition))
	}

	if paths.ObservedAt != "" {
		vm.ObservedAt = timestampOr(gjson.GetBytes(body, paths.ObservedAt), p.FetchedAt)
	}
	vm.Updated = RelativeTime(vm.ObservedAt, p.FetchedAt)

	if paths.Forecast != "" {
		for i, day := range gjson.GetBytes(body, paths.Forecast).Array() {
			maxR, minR := day.Get("max"), day.Get("min")
			if !present(maxR) || !present(minR) {
				return Weather{}, invalidField("weather", paths.Forecast, "forecast day missing max or min")
			}
			vm.Forecast = append(vm.Forecast, DailyForecast{
				Date:      optionalString(day.Get("date"), p.FetchedAt.AddDate(0, 0, i).Format("2006-01-02")),
				High:      ToFahrenheit(maxR.Float()),
				Low:       ToFahrenheit(minR.Float()),
				Condition: conditionText(day.Get("description")),
			})
		}
	}

	return vm, nil
}

// wmoConditions maps WMO weather interpretation codes, as used by Open-Meteo.
var wmoConditions = map[int]string{
	0:  "Clear Sky",
	1:  "Mainly Clear",
	2:  "Partly Cloudy",
	3:  "Overcast",
	45: "Fog",
	48: "Rime Fog",
	51: "Light Drizzle",
	53: "Drizzle",
	55: "Dense Drizzle",
	61: "Light Rain",
	63: "Rain",
	65: "Heavy Rain",
	71: "Light Snow",
	73: "Snow",
	75: "Heavy Snow",
	80: "Rain Showers",
	81: "Heavy Rain Showers",
	82: "Violent Rain Showers",
	95: "Thunderstorm",
	96: "Thunderstorm With Hail",
	99: "Severe Thunderstorm",
}

func conditionText(r gjson.Result) string {
	if !present(r) {
		return "Unknown"
	}
	if r.Type == gjson.Number {
		if text, ok := wmoConditions[int(r.Int())]; ok {
			return text
		}
		return "Unknown"
	}
	s := strings.TrimSpace(r.String())
	if s == "" {
		return "Unknown"
	}
	return titleCase(s)
}

// titleCase upper-cases the first letter of each word: "partly cloudy" → "Partly Cloudy".
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		if len(r) > 0 && r[0] >= 'a' && r[0] <= 'z' {
			r[0] -= 'a' - 'A'
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
