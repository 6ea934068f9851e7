package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gritting_predictions_total",
			Help: "Total gritting predictions by decision",
		},
		[]string{"decision"},
	)

	PredictionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gritting_prediction_errors_total",
			Help: "Total failed gritting predictions by reason",
		},
		[]string{"reason"},
	)

	PredictionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gritting_prediction_latency_seconds",
			Help:    "Feature building and model inference latency in seconds",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
		},
	)

	EncodingFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gritting_encoding_fallbacks_total",
			Help: "Precipitation types missing from the loaded encoding, defaulted to code 0",
		},
		[]string{"precipitation_type"},
	)

	ModelsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gritting_models_loaded",
			Help: "1 when decision and amount models are loaded",
		},
	)

	WeatherAPICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gritting_weather_api_calls_total",
			Help: "Total weather provider API calls",
		},
		[]string{"provider", "status"},
	)

	WeatherAPILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gritting_weather_api_latency_seconds",
			Help:    "Weather provider API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	SweepRoutesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gritting_sweep_routes_total",
			Help: "Routes processed by weather sweeps by outcome",
		},
		[]string{"outcome"},
	)
)
