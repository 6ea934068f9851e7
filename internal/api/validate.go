package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/lox/gritting/internal/models"
)

// Pointer fields distinguish a missing value from zero.
type weatherInput struct {
	TemperatureC         *float64 `json:"temperature_c" validate:"required,finite,gte=-50,lte=50"`
	FeelsLikeC           *float64 `json:"feels_like_c" validate:"required,finite,gte=-50,lte=50"`
	HumidityPct          *float64 `json:"humidity_pct" validate:"required,finite,gte=0,lte=100"`
	WindSpeedKmh         *float64 `json:"wind_speed_kmh" validate:"required,finite,gte=0"`
	PrecipitationType    *string  `json:"precipitation_type" validate:"required,min=1"`
	PrecipitationProbPct *float64 `json:"precipitation_prob_pct" validate:"required,finite,gte=0,lte=100"`
	RoadSurfaceTempC     *float64 `json:"road_surface_temp_c" validate:"required,finite,gte=-50,lte=50"`
	ForecastMinTempC     *float64 `json:"forecast_min_temp_c" validate:"required,finite,gte=-50,lte=50"`
}

func (w *weatherInput) toModel() models.WeatherData {
	return models.WeatherData{
		TemperatureC:         *w.TemperatureC,
		FeelsLikeC:           *w.FeelsLikeC,
		HumidityPct:          *w.HumidityPct,
		WindSpeedKmh:         *w.WindSpeedKmh,
		PrecipitationType:    *w.PrecipitationType,
		PrecipitationProbPct: *w.PrecipitationProbPct,
		RoadSurfaceTempC:     *w.RoadSurfaceTempC,
		ForecastMinTempC:     *w.ForecastMinTempC,
	}
}

type predictRequest struct {
	RouteID *string       `json:"route_id" validate:"required"`
	Weather *weatherInput `json:"weather" validate:"required"`
}

type autoWeatherRequest struct {
	RouteID   *string  `json:"route_id" validate:"required"`
	Latitude  *float64 `json:"latitude" validate:"required,finite,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,finite,gte=-180,lte=180"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
	return v
}

// rangeMessages describes the accepted range of each bounded field.
var rangeMessages = map[string]string{
	"humidity_pct":           "humidity_pct must be between 0 and 100",
	"precipitation_prob_pct": "precipitation_prob_pct must be between 0 and 100",
	"wind_speed_kmh":         "wind_speed_kmh cannot be negative",
	"temperature_c":          "Field 'temperature_c' must be between -50 and 50 degrees Celsius",
	"feels_like_c":           "Field 'feels_like_c' must be between -50 and 50 degrees Celsius",
	"road_surface_temp_c":    "Field 'road_surface_temp_c' must be between -50 and 50 degrees Celsius",
	"forecast_min_temp_c":    "Field 'forecast_min_temp_c' must be between -50 and 50 degrees Celsius",
	"precipitation_type":     "precipitation_type must be a non-empty string",
	"latitude":               "latitude must be between -90 and 90",
	"longitude":              "longitude must be between -180 and 180",
}

// validationMessage turns a validator error into a client-facing message.
// Missing fields are reported together; otherwise the first failure wins.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	var missingTop, missingWeather []string
	for _, fe := range verrs {
		if fe.Tag() != "required" {
			continue
		}
		if strings.Count(fe.Namespace(), ".") > 1 {
			missingWeather = append(missingWeather, fe.Field())
		} else {
			missingTop = append(missingTop, fe.Field())
		}
	}
	switch {
	case len(missingTop) > 0:
		return "Missing required fields: " + strings.Join(missingTop, ", ")
	case len(missingWeather) > 0:
		return "Missing required weather fields: " + strings.Join(missingWeather, ", ")
	}

	fe := verrs[0]
	if fe.Tag() == "finite" {
		return fmt.Sprintf("Field '%s' cannot be NaN or infinity", fe.Field())
	}
	if msg, ok := rangeMessages[fe.Field()]; ok {
		return msg
	}
	return fmt.Sprintf("Field '%s' is invalid", fe.Field())
}

// decodeMessage turns a JSON decoding error into a client-facing message.
func decodeMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if i := strings.LastIndex(field, "."); i >= 0 {
			field = field[i+1:]
		}
		switch field {
		case "route_id":
			return "route_id must be a string"
		case "weather":
			return "weather must be an object"
		case "precipitation_type":
			return "precipitation_type must be a non-empty string"
		case "latitude", "longitude":
			return "latitude and longitude must be numbers"
		}
		return fmt.Sprintf("Field '%s' must be a number", field)
	}
	return "Request body must be valid JSON"
}
