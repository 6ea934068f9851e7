package gritting

import (
	"errors"
	"fmt"

	"github.com/lox/gritting/internal/models"
)

// ErrRouteNotFound is returned for a route id absent from the route store.
var ErrRouteNotFound = errors.New("route not found")

// NumFeatures is the width of the trained feature vector.
const NumFeatures = 15

// Feature positions. The order is the training-time column order and the
// models are sensitive to it.
const (
	FeatPriority = iota
	FeatTemperature
	FeatFeelsLike
	FeatHumidity
	FeatWindSpeed
	FeatPrecipType
	FeatPrecipProb
	FeatRoadSurfaceTemp
	FeatForecastMinTemp
	FeatIceRisk
	FeatSnowRisk
	FeatRouteLength
	FeatTempBelowZero
	FeatSurfaceTempBelowZero
	FeatHighPrecipProb
)

// FeatureNames are the training-time column names, indexed by Feat* position.
var FeatureNames = [NumFeatures]string{
	"priority",
	"temperature_c",
	"feels_like_c",
	"humidity_pct",
	"wind_speed_kmh",
	"precipitation_type_encoded",
	"precipitation_prob_pct",
	"road_surface_temp_c",
	"forecast_min_temp_c",
	"ice_risk_encoded",
	"snow_risk_encoded",
	"route_length_km",
	"temp_below_zero",
	"surface_temp_below_zero",
	"high_precip_prob",
}

// Features is one model input row.
type Features [NumFeatures]float64

// FeatureSet is a built feature vector along with the intermediate values
// that produced it.
type FeatureSet struct {
	Route    models.RouteInfo
	Weather  models.WeatherData // sanitized copy
	Precip   models.PrecipType
	IceRisk  models.RiskLevel
	SnowRisk models.RiskLevel
	Vector   Features

	// EncodingErr is set when the precipitation code was missing from the
	// encoding and 0 was used instead.
	EncodingErr error
}

// BuildFeatures resolves the route and assembles the feature vector.
// ErrRouteNotFound is the only error returned.
func BuildFeatures(routes RouteStore, routeID string, w models.WeatherData, enc PrecipitationEncoding) (FeatureSet, error) {
	route, ok := routes.Route(routeID)
	if !ok {
		return FeatureSet{}, fmt.Errorf("%w: %s", ErrRouteNotFound, routeID)
	}

	w = SanitizeWeather(w)
	precip := models.PrecipType(w.PrecipitationType)
	ice, snow := Risks(w)

	precipCode, encErr := enc.Code(precip)

	var v Features
	v[FeatPriority] = float64(route.Priority)
	v[FeatTemperature] = w.TemperatureC
	v[FeatFeelsLike] = w.FeelsLikeC
	v[FeatHumidity] = w.HumidityPct
	v[FeatWindSpeed] = w.WindSpeedKmh
	v[FeatPrecipType] = float64(precipCode)
	v[FeatPrecipProb] = w.PrecipitationProbPct
	v[FeatRoadSurfaceTemp] = w.RoadSurfaceTempC
	v[FeatForecastMinTemp] = w.ForecastMinTempC
	v[FeatIceRisk] = EncodeRisk(ice)
	v[FeatSnowRisk] = EncodeRisk(snow)
	v[FeatRouteLength] = route.RouteLengthKm
	v[FeatTempBelowZero] = indicator(w.TemperatureC < 0)
	v[FeatSurfaceTempBelowZero] = indicator(w.RoadSurfaceTempC < 0)
	v[FeatHighPrecipProb] = indicator(w.PrecipitationProbPct > 60)

	return FeatureSet{
		Route:       route,
		Weather:     w,
		Precip:      precip,
		IceRisk:     ice,
		SnowRisk:    snow,
		Vector:      v,
		EncodingErr: encErr,
	}, nil
}

// Map returns the vector keyed by feature name.
func (f Features) Map() map[string]float64 {
	m := make(map[string]float64, NumFeatures)
	for i, name := range FeatureNames {
		m[name] = f[i]
	}
	return m
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
