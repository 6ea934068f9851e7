package gritting

import (
	"database/sql"

	"github.com/lox/gritting/internal/models"
)

// Label-encoder order used when the models were trained.
var testEncoding = PrecipitationEncoding{"none": 0, "rain": 1, "sleet": 2, "snow": 3}

var testRoutes = NewRouteTable([]models.RouteInfo{
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
})

func snowyWeather() models.WeatherData {
	return models.WeatherData{
		TemperatureC:         -3.5,
		FeelsLikeC:           -7.2,
		HumidityPct:          88,
		WindSpeedKmh:         18,
		PrecipitationType:    "snow",
		PrecipitationProbPct: 85,
		RoadSurfaceTempC:     -4.2,
		ForecastMinTempC:     -5.0,
	}
}

func mildWeather() models.WeatherData {
	return models.WeatherData{
		TemperatureC:         8,
		FeelsLikeC:           6,
		HumidityPct:          60,
		WindSpeedKmh:         10,
		PrecipitationType:    "none",
		PrecipitationProbPct: 10,
		RoadSurfaceTempC:     7,
		ForecastMinTempC:     4,
	}
}

type countingModels struct {
	decisionCalls int
	amountCalls   int
	decision      Decision
	amount        float64
	lastFeatures  Features
}

func (c *countingModels) models() *Models {
	return &Models{
		Decision: ModelFunc[Decision](func(f Features) Decision {
			c.decisionCalls++
			c.lastFeatures = f
			return c.decision
		}),
		Amount: ModelFunc[float64](func(f Features) float64 {
			c.amountCalls++
			return c.amount
		}),
		Encoding: testEncoding,
	}
}
