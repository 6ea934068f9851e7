package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/gritting/internal/models"
)

func noWait() backoff.BackOff { return &backoff.ZeroBackOff{} }

const openMeteoBody = `{
  "current": {
    "temperature_2m": -1.0,
    "apparent_temperature": -5.5,
    "relative_humidity_2m": 91,
    "wind_speed_10m": 14.4,
    "precipitation": 0.2,
    "weather_code": 73
  },
  "hourly": {
    "temperature_2m": [-1.0, -2.5, null, -4.0, -3.0],
    "precipitation_probability": [null, 80, 90]
  }
}`

func TestOpenMeteoFetch(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"latitude":      r.URL.Query().Get("latitude"),
			"longitude":     r.URL.Query().Get("longitude"),
			"forecast_days": r.URL.Query().Get("forecast_days"),
		}
		w.Write([]byte(openMeteoBody))
	}))
	defer srv.Close()

	om := NewOpenMeteo(WithBaseURL(srv.URL), WithBackOff(noWait))
	w, err := om.Fetch(context.Background(), 55.9533, -3.1883)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"latitude": "55.9533", "longitude": "-3.1883", "forecast_days": "1"}, gotQuery)
	assert.Equal(t, models.WeatherData{
		TemperatureC:         -1.0,
		FeelsLikeC:           -5.5,
		HumidityPct:          91,
		WindSpeedKmh:         14.4,
		PrecipitationType:    "snow",
		PrecipitationProbPct: 80,
		RoadSurfaceTempC:     -2.5,
		ForecastMinTempC:     -4.0,
	}, w)
}

func TestOpenMeteoNoHourly(t *testing.T) {
	r := openMeteoResponse{}
	temp, feels, hum, wind, code := 3.0, 1.0, 70.0, 5.0, 2
	r.Current = &openMeteoCurrent{&temp, &feels, &hum, &wind, &code}

	w, err := r.toWeather()
	require.NoError(t, err)
	assert.Equal(t, 0.0, w.PrecipitationProbPct)
	assert.Equal(t, 3.0, w.ForecastMinTempC)
	assert.Equal(t, "none", w.PrecipitationType)
}

func TestOpenMeteoProbabilityOnlyFirstThreeHours(t *testing.T) {
	r := openMeteoResponse{}
	temp, feels, hum, wind, code := 3.0, 1.0, 70.0, 5.0, 61
	r.Current = &openMeteoCurrent{&temp, &feels, &hum, &wind, &code}
	late := 95.0
	r.Hourly.PrecipitationProbability = []*float64{nil, nil, nil, &late}

	w, err := r.toWeather()
	require.NoError(t, err)
	assert.Equal(t, 0.0, w.PrecipitationProbPct)
	assert.Equal(t, "rain", w.PrecipitationType)
}

func TestOpenMeteoMissingField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"current":{"temperature_2m":1,"apparent_temperature":0,"relative_humidity_2m":80,"weather_code":0}}`))
	}))
	defer srv.Close()

	_, err := NewOpenMeteo(WithBaseURL(srv.URL), WithBackOff(noWait)).Fetch(context.Background(), 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wind_speed_10m")
}

func TestPrecipFromWMO(t *testing.T) {
	tests := []struct {
		code int
		want models.PrecipType
	}{
		{0, models.PrecipNone},
		{3, models.PrecipNone},
		{45, models.PrecipNone},
		{51, models.PrecipRain},
		{56, models.PrecipSleet},
		{63, models.PrecipRain},
		{67, models.PrecipSleet},
		{71, models.PrecipSnow},
		{77, models.PrecipSnow},
		{82, models.PrecipRain},
		{86, models.PrecipSnow},
		{95, models.PrecipRain},
		{99, models.PrecipSleet},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PrecipFromWMO(tt.code), "code %d", tt.code)
	}
}

func TestOpenWeatherMapFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("appid"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		w.Write([]byte(`{"main":{"temp":0.5,"feels_like":-3,"temp_min":-2,"humidity":85},"wind":{"speed":5},"weather":[{"main":"Sleet"}]}`))
	}))
	defer srv.Close()

	owm := NewOpenWeatherMap("secret", WithBaseURL(srv.URL), WithBackOff(noWait))
	w, err := owm.Fetch(context.Background(), 55.95, -3.19)
	require.NoError(t, err)

	assert.Equal(t, models.WeatherData{
		TemperatureC:         0.5,
		FeelsLikeC:           -3,
		HumidityPct:          85,
		WindSpeedKmh:         18,
		PrecipitationType:    "sleet",
		PrecipitationProbPct: 50,
		RoadSurfaceTempC:     -1,
		ForecastMinTempC:     -2,
	}, w)
}

func TestPrecipFromCondition(t *testing.T) {
	assert.Equal(t, models.PrecipRain, PrecipFromCondition("Drizzle"))
	assert.Equal(t, models.PrecipSnow, PrecipFromCondition("Snow"))
	assert.Equal(t, models.PrecipNone, PrecipFromCondition("Mist"))
	assert.Equal(t, models.PrecipNone, PrecipFromCondition("Thunderstorm"))
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(openMeteoBody))
	}))
	defer srv.Close()

	_, err := NewOpenMeteo(WithBaseURL(srv.URL), WithBackOff(noWait)).Fetch(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetriesGiveUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewOpenMeteo(WithBaseURL(srv.URL), WithBackOff(noWait)).Fetch(context.Background(), 1, 1)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.Equal(t, int32(1+maxRetries), calls.Load())
}

func TestClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Invalid API key"}`))
	}))
	defer srv.Close()

	_, err := NewOpenWeatherMap("bad", WithBaseURL(srv.URL), WithBackOff(noWait)).Fetch(context.Background(), 1, 1)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Equal(t, int32(1), calls.Load())
}

type stubProvider struct {
	name string
	w    models.WeatherData
	err  error
}

func (s stubProvider) Name() string { return s.name }

func (s stubProvider) Fetch(context.Context, float64, float64) (models.WeatherData, error) {
	return s.w, s.err
}

func TestFallback(t *testing.T) {
	want := models.WeatherData{TemperatureC: 2, PrecipitationType: "rain"}
	boom := errors.New("boom")

	t.Run("first success wins", func(t *testing.T) {
		f := NewFallback(nil, stubProvider{name: "a", w: want}, stubProvider{name: "b", err: boom})
		w, src, err := f.Fetch(context.Background(), 0, 0)
		require.NoError(t, err)
		assert.Equal(t, "a", src)
		assert.Equal(t, want, w)
	})

	t.Run("falls through on error", func(t *testing.T) {
		f := NewFallback(nil, stubProvider{name: "a", err: boom}, stubProvider{name: "b", w: want})
		w, src, err := f.Fetch(context.Background(), 0, 0)
		require.NoError(t, err)
		assert.Equal(t, "b", src)
		assert.Equal(t, want, w)
	})

	t.Run("all fail", func(t *testing.T) {
		f := NewFallback(nil, stubProvider{name: "a", err: boom}, stubProvider{name: "b", err: boom})
		_, _, err := f.Fetch(context.Background(), 0, 0)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("no providers", func(t *testing.T) {
		_, _, err := NewFallback(nil).Fetch(context.Background(), 0, 0)
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}
