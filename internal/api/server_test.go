package api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/gritting/internal/api"
	"github.com/lox/gritting/internal/briefing"
	"github.com/lox/gritting/internal/gritting"
	"github.com/lox/gritting/internal/models"
	"github.com/lox/gritting/internal/store"

	_ "modernc.org/sqlite"
)

var testRoutes = []models.RouteInfo{
	{
		RouteID:       "R001",
		RouteName:     "City Centre - Princes Street",
		Priority:      1,
		RoadType:      "A-road",
		RouteLengthKm: 17.0,
		Latitude:      sql.NullFloat64{Float64: 55.9533, Valid: true},
		Longitude:     sql.NullFloat64{Float64: -3.1883, Valid: true},
	},
	{
		RouteID:       "R014",
		RouteName:     "Residential - Morningside",
		Priority:      2,
		RoadType:      "residential",
		RouteLengthKm: 8.5,
	},
}

// Grits whenever the road surface is below zero.
func testModels() *gritting.Models {
	return &gritting.Models{
		Decision: gritting.ModelFunc[gritting.Decision](func(f gritting.Features) gritting.Decision {
			if f[gritting.FeatSurfaceTempBelowZero] == 1 {
				return gritting.Decision{Grit: true, Confidence: 0.8512}
			}
			return gritting.Decision{Grit: false, Confidence: 0.2}
		}),
		Amount:   gritting.ModelFunc[float64](func(gritting.Features) float64 { return 850.7 }),
		Encoding: gritting.PrecipitationEncoding{"none": 0, "rain": 1, "sleet": 2, "snow": 3},
	}
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := store.New(db, nil)
	if err := s.Migrate(); err != nil {
		t.Fatal(err)
	}
	return s
}

type stubWeather struct {
	w   models.WeatherData
	err error
}

func (s stubWeather) Fetch(context.Context, float64, float64) (models.WeatherData, string, error) {
	return s.w, "open-meteo", s.err
}

type serverOpts struct {
	models   *gritting.Models
	weather  api.WeatherSource
	briefing *briefing.Generator
}

func newTestServer(t *testing.T, opts serverOpts) (http.Handler, *store.Store) {
	t.Helper()
	if opts.models == nil {
		opts.models = testModels()
	}
	st := setupTestStore(t)
	table := gritting.NewRouteTable(testRoutes)
	srv := api.NewServer(api.Config{
		Predictor: gritting.NewPredictor(table, opts.models, nil),
		Routes:    table,
		History:   st,
		Weather:   opts.weather,
		Briefing:  opts.briefing,
	})
	return srv.Handler(), st
}

const snowyWeather = `{
	"temperature_c": -3.5,
	"feels_like_c": -7.2,
	"humidity_pct": 88,
	"wind_speed_kmh": 18,
	"precipitation_type": "heavy snow",
	"precipitation_prob_pct": 85,
	"road_surface_temp_c": -4.2,
	"forecast_min_temp_c": -5.0
}`

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	h, _ := newTestServer(t, serverOpts{})
	w := do(h, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"status": "healthy", "models_loaded": true}, decode(t, w))

	h, _ = newTestServer(t, serverOpts{models: &gritting.Models{}})
	w = do(h, "GET", "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, map[string]any{"status": "unhealthy", "models_loaded": false}, decode(t, w))
}

func TestPredict(t *testing.T) {
	t.Parallel()
	h, st := newTestServer(t, serverOpts{})

	w := do(h, "POST", "/predict", `{"route_id":"R001","weather":`+snowyWeather+`}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, map[string]any{
		"route_id":               "R001",
		"route_name":             "City Centre - Princes Street",
		"gritting_decision":      "yes",
		"decision_confidence":    0.851,
		"salt_amount_kg":         850.0,
		"spread_rate_g_m2":       50.0,
		"estimated_duration_min": 61.0,
		"ice_risk":               "high",
		"snow_risk":              "high",
		"recommendation":         "High priority - high ice risk, high snow risk, very low road temperature, high precipitation probability",
	}, body["prediction"])

	history, err := st.RecentPredictions(10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "manual", history[0].WeatherSource)
	assert.Equal(t, "heavy snow", history[0].Weather.PrecipitationType)
}

func TestPredictErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		status  int
		wantErr string
	}{
		{"empty body", ``, 400, "Request body must be valid JSON"},
		{"malformed", `{"route_id":`, 400, "Request body must be valid JSON"},
		{"missing weather", `{"route_id":"R001"}`, 400, "Missing required fields: weather"},
		{"route id not string", `{"route_id":1,"weather":` + snowyWeather + `}`, 400, "route_id must be a string"},
		{"missing weather fields", `{"route_id":"R001","weather":{"temperature_c":1,"feels_like_c":0}}`, 400,
			"Missing required weather fields: humidity_pct, wind_speed_kmh, precipitation_type, precipitation_prob_pct, road_surface_temp_c, forecast_min_temp_c"},
		{"humidity out of range", `{"route_id":"R001","weather":` + strings.Replace(snowyWeather, `"humidity_pct": 88`, `"humidity_pct": 101`, 1) + `}`, 400,
			"humidity_pct must be between 0 and 100"},
		{"negative wind", `{"route_id":"R001","weather":` + strings.Replace(snowyWeather, `"wind_speed_kmh": 18`, `"wind_speed_kmh": -1`, 1) + `}`, 400,
			"wind_speed_kmh cannot be negative"},
		{"road temp too cold", `{"route_id":"R001","weather":` + strings.Replace(snowyWeather, `"road_surface_temp_c": -4.2`, `"road_surface_temp_c": -51`, 1) + `}`, 400,
			"Field 'road_surface_temp_c' must be between -50 and 50 degrees Celsius"},
		{"temperature not a number", `{"route_id":"R001","weather":` + strings.Replace(snowyWeather, `"temperature_c": -3.5`, `"temperature_c": "cold"`, 1) + `}`, 400,
			"Field 'temperature_c' must be a number"},
		{"empty precipitation type", `{"route_id":"R001","weather":` + strings.Replace(snowyWeather, `"heavy snow"`, `""`, 1) + `}`, 400,
			"precipitation_type must be a non-empty string"},
		{"unknown route", `{"route_id":"R999","weather":` + snowyWeather + `}`, 404,
			"Route 'R999' not found. Use GET /routes to see available routes."},
	}

	h, _ := newTestServer(t, serverOpts{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(h, "POST", "/predict", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, map[string]any{"success": false, "error": tt.wantErr}, decode(t, w))
		})
	}
}

func TestPredictModelsNotLoaded(t *testing.T) {
	t.Parallel()
	h, _ := newTestServer(t, serverOpts{models: &gritting.Models{}})

	w := do(h, "POST", "/predict", `{"route_id":"R001","weather":`+snowyWeather+`}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "Service temporarily unavailable", decode(t, w)["error"])
}

func TestPredictAutoWeather(t *testing.T) {
	t.Parallel()

	freezing := models.WeatherData{
		TemperatureC:         -1,
		FeelsLikeC:           -4,
		HumidityPct:          90,
		WindSpeedKmh:         10,
		PrecipitationType:    "sleet",
		PrecipitationProbPct: 65,
		RoadSurfaceTempC:     -2.5,
		ForecastMinTempC:     -3,
	}

	t.Run("success", func(t *testing.T) {
		h, st := newTestServer(t, serverOpts{weather: stubWeather{w: freezing}})
		w := do(h, "POST", "/predict/auto-weather", `{"route_id":"R001","latitude":55.9533,"longitude":-3.1883}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		body := decode(t, w)
		assert.Equal(t, "open-meteo", body["weather_source"])
		assert.Equal(t, "sleet", body["weather"].(map[string]any)["precipitation_type"])
		assert.Equal(t, "yes", body["prediction"].(map[string]any)["gritting_decision"])

		latest, err := st.LatestPrediction("R001")
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, "open-meteo", latest.WeatherSource)
	})

	t.Run("weather failure", func(t *testing.T) {
		h, _ := newTestServer(t, serverOpts{weather: stubWeather{err: errors.New("down")}})
		w := do(h, "POST", "/predict/auto-weather", `{"route_id":"R001","latitude":55.9533,"longitude":-3.1883}`)
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, "Weather service unavailable", decode(t, w)["error"])
	})

	t.Run("validation", func(t *testing.T) {
		h, _ := newTestServer(t, serverOpts{weather: stubWeather{w: freezing}})

		w := do(h, "POST", "/predict/auto-weather", `{"route_id":"R001","latitude":95,"longitude":0}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "latitude must be between -90 and 90", decode(t, w)["error"])

		w = do(h, "POST", "/predict/auto-weather", `{"route_id":"R001"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Missing required fields: latitude, longitude", decode(t, w)["error"])

		w = do(h, "POST", "/predict/auto-weather", `{"route_id":"R001","latitude":"north","longitude":0}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "latitude and longitude must be numbers", decode(t, w)["error"])
	})

	t.Run("unknown route checked before weather", func(t *testing.T) {
		h, _ := newTestServer(t, serverOpts{weather: stubWeather{err: errors.New("should not be called")}})
		w := do(h, "POST", "/predict/auto-weather", `{"route_id":"R999","latitude":0,"longitude":0}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRoutesEndpoint(t *testing.T) {
	t.Parallel()
	h, _ := newTestServer(t, serverOpts{})

	w := do(h, "GET", "/routes", "")
	require.Equal(t, http.StatusOK, w.Code)

	routes := decode(t, w)["routes"].([]any)
	require.Len(t, routes, 2)
	assert.Equal(t, map[string]any{
		"route_id":   "R001",
		"route_name": "City Centre - Princes Street",
		"priority":   1.0,
		"length_km":  17.0,
		"latitude":   55.9533,
		"longitude":  -3.1883,
	}, routes[0])
	assert.Nil(t, routes[1].(map[string]any)["latitude"])
}

func TestHistoryEndpoint(t *testing.T) {
	t.Parallel()
	h, _ := newTestServer(t, serverOpts{})

	w := do(h, "GET", "/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, decode(t, w)["history"])

	for range 3 {
		do(h, "POST", "/predict", `{"route_id":"R014","weather":`+snowyWeather+`}`)
	}

	w = do(h, "GET", "/history", "")
	history := decode(t, w)["history"].([]any)
	require.Len(t, history, 3)
	first := history[0].(map[string]any)
	assert.Equal(t, "R014", first["route_id"])
	assert.Equal(t, "heavy snow", first["precipitation_type"])
	assert.Equal(t, "yes", first["gritting_decision"])
}

func TestCardEndpoint(t *testing.T) {
	t.Parallel()
	h, _ := newTestServer(t, serverOpts{})

	w := do(h, "GET", "/routes/R001/card.png", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(h, "GET", "/routes/R999/card.png", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	do(h, "POST", "/predict", `{"route_id":"R001","weather":`+snowyWeather+`}`)

	w = do(h, "GET", "/routes/R001/card.png", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	_, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	assert.NoError(t, err)
}

func TestBriefingEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("not configured", func(t *testing.T) {
		h, _ := newTestServer(t, serverOpts{})
		w := do(h, "POST", "/briefing", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("generates", func(t *testing.T) {
		llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
				"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Grit R001."}}]}`))
		}))
		defer llm.Close()

		gen, err := briefing.New("test-key", nil, option.WithBaseURL(llm.URL+"/"), option.WithMaxRetries(0))
		require.NoError(t, err)
		h, _ := newTestServer(t, serverOpts{briefing: gen})

		w := do(h, "POST", "/briefing", "")
		assert.Equal(t, http.StatusNotFound, w.Code)

		do(h, "POST", "/predict", `{"route_id":"R001","weather":`+snowyWeather+`}`)

		w = do(h, "POST", "/briefing", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decode(t, w)
		assert.Equal(t, "Grit R001.", body["briefing"])
		assert.Equal(t, 1.0, body["routes"])
	})
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	h, _ := newTestServer(t, serverOpts{})

	do(h, "POST", "/predict", `{"route_id":"R001","weather":`+snowyWeather+`}`)
	w := do(h, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gritting_predictions_total")
}
