package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lox/gritting/internal/models"
)

// Provider supplies current weather for a location.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, lat, lon float64) (models.WeatherData, error)
}

// Fallback tries each provider in order and returns the first success.
type Fallback struct {
	providers []Provider
	logger    *slog.Logger
}

// NewFallback tries providers in order.
func NewFallback(logger *slog.Logger, providers ...Provider) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{providers: providers, logger: logger}
}

// Fetch returns the weather and the name of the provider that supplied it.
func (f *Fallback) Fetch(ctx context.Context, lat, lon float64) (models.WeatherData, string, error) {
	var errs []error
	for _, p := range f.providers {
		w, err := p.Fetch(ctx, lat, lon)
		if err == nil {
			return w, p.Name(), nil
		}
		if ctx.Err() != nil {
			return models.WeatherData{}, "", fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
		}
		f.logger.Warn("weather: provider failed", "provider", p.Name(), "error", err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return models.WeatherData{}, "", fmt.Errorf("%w: no providers configured", ErrUnavailable)
	}
	return models.WeatherData{}, "", fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
}

// Default builds the standard provider chain: Open-Meteo, then
// OpenWeatherMap when an API key is configured.
func Default(owmKey string, logger *slog.Logger, opts ...Option) *Fallback {
	providers := []Provider{NewOpenMeteo(opts...)}
	if owmKey != "" {
		providers = append(providers, NewOpenWeatherMap(owmKey, opts...))
	}
	return NewFallback(logger, providers...)
}
