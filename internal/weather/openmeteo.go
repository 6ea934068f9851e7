package weather

import (
	"context"
	"fmt"
	"strings"

	"github.com/lox/gritting/internal/models"
)

const OpenMeteoURL = "https://api.open-meteo.com/v1/forecast"

// OpenMeteo fetches weather from the Open-Meteo forecast API. No API key
// is required.
type OpenMeteo struct {
	c *client
}

// NewOpenMeteo returns a keyless Open-Meteo provider.
func NewOpenMeteo(opts ...Option) *OpenMeteo {
	return &OpenMeteo{c: newClient("open-meteo", OpenMeteoURL, opts...)}
}

func (o *OpenMeteo) Name() string { return "open-meteo" }

type openMeteoCurrent struct {
	Temperature         *float64 `json:"temperature_2m"`
	ApparentTemperature *float64 `json:"apparent_temperature"`
	RelativeHumidity    *float64 `json:"relative_humidity_2m"`
	WindSpeed           *float64 `json:"wind_speed_10m"`
	WeatherCode         *int     `json:"weather_code"`
}

type openMeteoResponse struct {
	Current *openMeteoCurrent `json:"current"`
	Hourly struct {
		Temperature              []*float64 `json:"temperature_2m"`
		PrecipitationProbability []*float64 `json:"precipitation_probability"`
	} `json:"hourly"`
}

func (o *OpenMeteo) Fetch(ctx context.Context, lat, lon float64) (models.WeatherData, error) {
	query := map[string]string{
		"latitude":      formatCoord(lat),
		"longitude":     formatCoord(lon),
		"current":       strings.Join([]string{"temperature_2m", "apparent_temperature", "relative_humidity_2m", "wind_speed_10m", "precipitation", "weather_code"}, ","),
		"hourly":        "temperature_2m,precipitation_probability",
		"forecast_days": "1",
		"timezone":      "auto",
	}

	var resp openMeteoResponse
	if err := o.c.getJSON(ctx, query, &resp); err != nil {
		return models.WeatherData{}, err
	}
	return resp.toWeather()
}

func (r openMeteoResponse) toWeather() (models.WeatherData, error) {
	cur := r.Current
	if cur == nil {
		return models.WeatherData{}, fmt.Errorf("open-meteo: response missing current")
	}
	required := []struct {
		name string
		v    *float64
	}{
		{"temperature_2m", cur.Temperature},
		{"apparent_temperature", cur.ApparentTemperature},
		{"relative_humidity_2m", cur.RelativeHumidity},
		{"wind_speed_10m", cur.WindSpeed},
	}
	for _, f := range required {
		if f.v == nil {
			return models.WeatherData{}, fmt.Errorf("open-meteo: response missing %s", f.name)
		}
	}
	if cur.WeatherCode == nil {
		return models.WeatherData{}, fmt.Errorf("open-meteo: response missing weather_code")
	}

	temp := *cur.Temperature

	// First non-null probability among the next three hours.
	var prob float64
	for i, p := range r.Hourly.PrecipitationProbability {
		if i >= 3 {
			break
		}
		if p != nil {
			prob = *p
			break
		}
	}

	minTemp := temp
	found := false
	for _, t := range r.Hourly.Temperature {
		if t == nil {
			continue
		}
		if !found || *t < minTemp {
			minTemp = *t
			found = true
		}
	}

	return models.WeatherData{
		TemperatureC:         temp,
		FeelsLikeC:           *cur.ApparentTemperature,
		HumidityPct:          *cur.RelativeHumidity,
		WindSpeedKmh:         *cur.WindSpeed,
		PrecipitationType:    string(PrecipFromWMO(*cur.WeatherCode)),
		PrecipitationProbPct: prob,
		RoadSurfaceTempC:     temp - roadSurfaceOffsetC,
		ForecastMinTempC:     minTemp,
	}, nil
}

// PrecipFromWMO maps a WMO weather interpretation code to a precipitation type.
func PrecipFromWMO(code int) models.PrecipType {
	switch code {
	case 71, 73, 75, 77, 85, 86:
		return models.PrecipSnow
	case 56, 57, 66, 67, 96, 99: // freezing drizzle/rain, hail
		return models.PrecipSleet
	case 51, 53, 55, 61, 63, 65, 80, 81, 82, 95:
		return models.PrecipRain
	default:
		return models.PrecipNone
	}
}
