package models

import (
	"database/sql"
	"time"
)

// PrecipType is a canonical precipitation label.
type PrecipType string

const (
	PrecipNone  PrecipType = "none"
	PrecipRain  PrecipType = "rain"
	PrecipSleet PrecipType = "sleet"
	PrecipSnow  PrecipType = "snow"
)

// PrecipTypes is the model vocabulary, in label-encoder (sorted) order.
var PrecipTypes = []PrecipType{PrecipNone, PrecipRain, PrecipSleet, PrecipSnow}

// RiskLevel grades ice or snow risk.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RouteInfo is a gritting route from the route catalogue.
type RouteInfo struct {
	RouteID       string
	RouteName     string
	Priority      int // 1 = highest
	RoadType      string
	RouteLengthKm float64
	Latitude      sql.NullFloat64
	Longitude     sql.NullFloat64
}

// HasLocation reports whether the route can be used for weather lookups.
func (r RouteInfo) HasLocation() bool {
	return r.Latitude.Valid && r.Longitude.Valid
}

// WeatherData is the weather observation a prediction is made from.
type WeatherData struct {
	TemperatureC         float64 `json:"temperature_c"`
	FeelsLikeC           float64 `json:"feels_like_c"`
	HumidityPct          float64 `json:"humidity_pct"`
	WindSpeedKmh         float64 `json:"wind_speed_kmh"`
	PrecipitationType    string  `json:"precipitation_type"`
	PrecipitationProbPct float64 `json:"precipitation_prob_pct"`
	RoadSurfaceTempC     float64 `json:"road_surface_temp_c"`
	ForecastMinTempC     float64 `json:"forecast_min_temp_c"`
}

// PredictionResult is the outcome of one prediction.
type PredictionResult struct {
	RouteID              string    `json:"route_id"`
	RouteName            string    `json:"route_name"`
	GrittingDecision     string    `json:"gritting_decision"` // "yes" or "no"
	DecisionConfidence   float64   `json:"decision_confidence"`
	SaltAmountKg         int       `json:"salt_amount_kg"`
	SpreadRateGM2        int       `json:"spread_rate_g_m2"`
	EstimatedDurationMin int       `json:"estimated_duration_min"`
	IceRisk              RiskLevel `json:"ice_risk"`
	SnowRisk             RiskLevel `json:"snow_risk"`
	Recommendation       string    `json:"recommendation"`
}

// Gritting reports whether the decision was to grit.
func (p PredictionResult) Gritting() bool {
	return p.GrittingDecision == "yes"
}

// HistoryRecord is a stored prediction together with its inputs.
type HistoryRecord struct {
	ID            string
	CreatedAt     time.Time
	Weather       WeatherData
	WeatherSource string // "manual", "open-meteo", "openweathermap"
	Prediction    PredictionResult
}
