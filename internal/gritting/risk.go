package gritting

import "github.com/lox/gritting/internal/models"

// IceRisk classifies icing risk from road surface temperature, air
// temperature and precipitation probability. Branches overlap and are
// evaluated top to bottom.
func IceRisk(roadTempC, airTempC, precipProbPct float64) models.RiskLevel {
	switch {
	case roadTempC <= -2 && precipProbPct > 60:
		return models.RiskHigh
	case roadTempC <= 0 && precipProbPct > 40:
		return models.RiskHigh
	case roadTempC <= 1 && precipProbPct > 50:
		return models.RiskMedium
	case airTempC <= 0:
		return models.RiskMedium
	}
	return models.RiskLow
}

// SnowRisk classifies snow risk from the sanitized precipitation type and
// probability. Air temperature plays no part in the rule the models were
// trained against.
func SnowRisk(precip models.PrecipType, precipProbPct float64) models.RiskLevel {
	switch {
	case precip == models.PrecipSnow && precipProbPct > 70:
		return models.RiskHigh
	case precip == models.PrecipSleet && precipProbPct > 60:
		return models.RiskMedium
	case precip == models.PrecipSnow && precipProbPct > 40:
		return models.RiskMedium
	}
	return models.RiskLow
}

// Risks returns both risk levels for already-sanitized weather.
func Risks(w models.WeatherData) (ice, snow models.RiskLevel) {
	ice = IceRisk(w.RoadSurfaceTempC, w.TemperatureC, w.PrecipitationProbPct)
	snow = SnowRisk(Sanitize(w.PrecipitationType), w.PrecipitationProbPct)
	return ice, snow
}

// EncodeRisk maps a risk level to the ordinal used in the feature vector.
func EncodeRisk(r models.RiskLevel) float64 {
	switch r {
	case models.RiskMedium:
		return 1
	case models.RiskHigh:
		return 2
	}
	return 0
}
