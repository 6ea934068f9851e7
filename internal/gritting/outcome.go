package gritting

import (
	"math"
	"strings"

	"github.com/lox/gritting/internal/models"
)

// NoGrittingRecommendation is the recommendation for a "no" decision.
const NoGrittingRecommendation = "No gritting required - conditions safe"

// Gritters cover roughly 3 km per 10 minutes, plus fixed setup time.
const (
	gritterKmPer10Min = 3.0
	setupMinutes      = 5
)

// SpreadRate returns salt per route km, reported as g/m². Routes without a
// positive length get 0.
func SpreadRate(amountKg int, routeLengthKm float64) int {
	if routeLengthKm <= 0 {
		return 0
	}
	return int(math.Floor(float64(amountKg) / routeLengthKm))
}

// Duration estimates treatment time in minutes.
func Duration(routeLengthKm float64) int {
	return int(math.Floor(routeLengthKm/gritterKmPer10Min*10)) + setupMinutes
}

// Recommendation builds the operator-facing text for a prediction.
func Recommendation(priority int, w models.WeatherData, ice, snow models.RiskLevel, grit bool) string {
	if !grit {
		return NoGrittingRecommendation
	}

	var reasons []string
	if ice == models.RiskHigh {
		reasons = append(reasons, "high ice risk")
	}
	if snow == models.RiskHigh {
		reasons = append(reasons, "high snow risk")
	}
	if w.RoadSurfaceTempC < -3 {
		reasons = append(reasons, "very low road temperature")
	}
	if w.PrecipitationProbPct > 80 {
		reasons = append(reasons, "high precipitation probability")
	}

	label := "Medium priority"
	if priority == 1 {
		label = "High priority"
	}
	if len(reasons) == 0 {
		return label + " - preventive gritting recommended"
	}
	return label + " - " + strings.Join(reasons, ", ")
}

func roundConfidence(c float64) float64 {
	return math.Round(c*1000) / 1000
}
