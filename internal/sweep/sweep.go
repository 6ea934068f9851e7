// Package sweep runs gritting predictions across every route using live
// weather, the way a winter duty officer checks the network each evening.
package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lox/gritting/internal/gritting"
	"github.com/lox/gritting/internal/metrics"
	"github.com/lox/gritting/internal/models"
)

// DefaultConcurrency bounds in-flight weather lookups.
const DefaultConcurrency = 4

// WeatherSource returns the weather at a location and the name of the
// provider that supplied it.
type WeatherSource interface {
	Fetch(ctx context.Context, lat, lon float64) (models.WeatherData, string, error)
}

// Recorder persists predictions.
type Recorder interface {
	InsertPrediction(rec *models.HistoryRecord) error
}

// Sweeper predicts every located route from live weather.
type Sweeper struct {
	predictor   *gritting.Predictor
	routes      []models.RouteInfo
	weather     WeatherSource
	recorder    Recorder
	logger      *slog.Logger
	concurrency int
}

// New returns a Sweeper over routes. recorder may be nil.
func New(p *gritting.Predictor, routes []models.RouteInfo, weather WeatherSource, recorder Recorder, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		predictor:   p,
		routes:      routes,
		weather:     weather,
		recorder:    recorder,
		logger:      logger,
		concurrency: DefaultConcurrency,
	}
}

// Result summarises one sweep.
// Total always equals len(Predictions)+Skipped+Failed+NotAttempted.
type Result struct {
	Total        int
	Gritting     int
	Skipped      int // routes without coordinates
	Failed       int
	NotAttempted int // left unfinished by cancellation
	Predictions  []models.PredictionResult
}

// Sweep predicts every route that has coordinates. Individual route
// failures are logged and counted; only cancellation aborts the sweep.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var (
		mu  sync.Mutex
		res Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	res.Total = len(s.routes)
	for i, route := range s.routes {
		if gctx.Err() != nil {
			mu.Lock()
			res.NotAttempted += len(s.routes) - i
			mu.Unlock()
			break
		}
		if !route.HasLocation() {
			res.Skipped++
			metrics.SweepRoutesTotal.WithLabelValues("skipped").Inc()
			continue
		}

		g.Go(func() error {
			pred, err := s.sweepRoute(gctx, route)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctx.Err() != nil {
					res.NotAttempted++
					return ctx.Err()
				}
				res.Failed++
				metrics.SweepRoutesTotal.WithLabelValues("failed").Inc()
				s.logger.Warn("sweep: route failed", "route_id", route.RouteID, "error", err)
				return nil
			}
			if pred.Gritting() {
				res.Gritting++
			}
			res.Predictions = append(res.Predictions, pred)
			metrics.SweepRoutesTotal.WithLabelValues("ok").Inc()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	s.logger.Info("sweep: complete",
		"total", res.Total, "gritting", res.Gritting, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

func (s *Sweeper) sweepRoute(ctx context.Context, route models.RouteInfo) (models.PredictionResult, error) {
	w, source, err := s.weather.Fetch(ctx, route.Latitude.Float64, route.Longitude.Float64)
	if err != nil {
		return models.PredictionResult{}, err
	}
	pred, err := s.predictor.Predict(route.RouteID, w)
	if err != nil {
		return models.PredictionResult{}, err
	}
	if s.recorder != nil {
		rec := &models.HistoryRecord{Weather: w, WeatherSource: source, Prediction: pred}
		if err := s.recorder.InsertPrediction(rec); err != nil {
			s.logger.Error("sweep: record prediction", "route_id", route.RouteID, "error", err)
		}
	}
	return pred, nil
}

// Run sweeps immediately and then every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	s.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweep: shutting down")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	if !s.predictor.Ready() {
		s.logger.Warn("sweep: models not loaded, skipping")
		return
	}
	if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("sweep: failed", "error", err)
	}
}
