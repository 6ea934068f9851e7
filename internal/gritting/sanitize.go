package gritting

import (
	"strings"

	"github.com/lox/gritting/internal/models"
)

// Substring groups are checked in order; sleet before rain so that
// "freezing rain" resolves to sleet.
var precipKeywords = []struct {
	precip models.PrecipType
	terms  []string
}{
	{models.PrecipSnow, []string{"snow", "blizzard", "flurr"}},
	{models.PrecipSleet, []string{"sleet", "ice", "hail", "freez"}},
	{models.PrecipRain, []string{"rain", "drizzle", "shower", "storm"}},
}

// Sanitize maps a free-form precipitation description onto the model
// vocabulary (none, rain, sleet, snow).
func Sanitize(raw string) models.PrecipType {
	if raw == "" {
		return models.PrecipNone
	}
	for _, known := range models.PrecipTypes {
		if raw == string(known) {
			return known
		}
	}

	lower := strings.ToLower(raw)
	for _, group := range precipKeywords {
		for _, term := range group.terms {
			if strings.Contains(lower, term) {
				return group.precip
			}
		}
	}
	return models.PrecipNone
}

// SanitizeWeather returns a copy of w with only the precipitation type replaced.
func SanitizeWeather(w models.WeatherData) models.WeatherData {
	w.PrecipitationType = string(Sanitize(w.PrecipitationType))
	return w
}
