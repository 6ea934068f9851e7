package weather

import (
	"context"
	"fmt"

	"github.com/lox/gritting/internal/models"
)

const OpenWeatherMapURL = "https://api.openweathermap.org/data/2.5/weather"

// defaultPoP is used because the current-weather endpoint rarely reports
// probability of precipitation.
const defaultPoP = 0.5

// OpenWeatherMap fetches weather from the OpenWeatherMap current weather API.
type OpenWeatherMap struct {
	c      *client
	apiKey string
}

// NewOpenWeatherMap returns an OpenWeatherMap provider using apiKey.
func NewOpenWeatherMap(apiKey string, opts ...Option) *OpenWeatherMap {
	return &OpenWeatherMap{
		c:      newClient("openweathermap", OpenWeatherMapURL, opts...),
		apiKey: apiKey,
	}
}

func (o *OpenWeatherMap) Name() string { return "openweathermap" }

type owmResponse struct {
	Main *struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		TempMin   float64 `json:"temp_min"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"` // m/s
	} `json:"wind"`
	Weather []struct {
		Main string `json:"main"`
	} `json:"weather"`
	PoP *float64 `json:"pop"`
}

func (o *OpenWeatherMap) Fetch(ctx context.Context, lat, lon float64) (models.WeatherData, error) {
	query := map[string]string{
		"lat":   formatCoord(lat),
		"lon":   formatCoord(lon),
		"appid": o.apiKey,
		"units": "metric",
	}

	var resp owmResponse
	if err := o.c.getJSON(ctx, query, &resp); err != nil {
		return models.WeatherData{}, err
	}
	if resp.Main == nil {
		return models.WeatherData{}, fmt.Errorf("openweathermap: response missing main")
	}
	if len(resp.Weather) == 0 {
		return models.WeatherData{}, fmt.Errorf("openweathermap: response missing weather")
	}

	pop := defaultPoP
	if resp.PoP != nil {
		pop = *resp.PoP
	}

	return models.WeatherData{
		TemperatureC:         resp.Main.Temp,
		FeelsLikeC:           resp.Main.FeelsLike,
		HumidityPct:          resp.Main.Humidity,
		WindSpeedKmh:         resp.Wind.Speed * 3.6,
		PrecipitationType:    string(PrecipFromCondition(resp.Weather[0].Main)),
		PrecipitationProbPct: pop * 100,
		RoadSurfaceTempC:     resp.Main.Temp - roadSurfaceOffsetC,
		ForecastMinTempC:     resp.Main.TempMin,
	}, nil
}

// PrecipFromCondition maps an OpenWeatherMap condition group to a precipitation type.
func PrecipFromCondition(main string) models.PrecipType {
	switch main {
	case "Rain", "Drizzle":
		return models.PrecipRain
	case "Snow":
		return models.PrecipSnow
	case "Sleet":
		return models.PrecipSleet
	default:
		return models.PrecipNone
	}
}
