package gritting

import (
	"errors"
	"log/slog"
	"time"

	"github.com/lox/gritting/internal/metrics"
	"github.com/lox/gritting/internal/models"
)

// ErrModelsNotLoaded is returned by Predict until a full artifact set is loaded.
var ErrModelsNotLoaded = errors.New("models not loaded")

// Predictor runs the two-stage gritting pipeline. It holds only read-only
// state and is safe for concurrent use.
type Predictor struct {
	routes RouteStore
	models *Models
	logger *slog.Logger
}

// NewPredictor returns a Predictor over routes. m may be nil; Predict then
// fails with ErrModelsNotLoaded.
func NewPredictor(routes RouteStore, m *Models, logger *slog.Logger) *Predictor {
	if routes == nil {
		routes = NewRouteTable(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m.Loaded() {
		metrics.ModelsLoaded.Set(1)
	} else {
		metrics.ModelsLoaded.Set(0)
	}
	return &Predictor{routes: routes, models: m, logger: logger}
}

// Ready reports whether predictions can be served.
func (p *Predictor) Ready() bool {
	return p.models.Loaded()
}

// Routes returns the route store predictions resolve against.
func (p *Predictor) Routes() RouteStore {
	return p.routes
}

// Predict decides whether routeID needs gritting under w and, if so, how
// much salt to spread.
func (p *Predictor) Predict(routeID string, w models.WeatherData) (models.PredictionResult, error) {
	if !p.models.Loaded() {
		metrics.PredictionErrors.WithLabelValues("models_not_loaded").Inc()
		return models.PredictionResult{}, ErrModelsNotLoaded
	}
	start := time.Now()

	sanitized := SanitizeWeather(w)

	fs, err := BuildFeatures(p.routes, routeID, sanitized, p.models.Encoding)
	if err != nil {
		metrics.PredictionErrors.WithLabelValues("route_not_found").Inc()
		return models.PredictionResult{}, err
	}
	if fs.EncodingErr != nil {
		p.logger.Warn("predict: precipitation encoding fallback",
			"route_id", routeID, "precipitation_type", fs.Precip, "error", fs.EncodingErr)
		metrics.EncodingFallbacks.WithLabelValues(string(fs.Precip)).Inc()
	}

	// Reported risks come from the same classifier the features used.
	ice, snow := Risks(sanitized)

	decision := p.models.Decision.Infer(fs.Vector)

	var amountKg, spread, duration int
	if decision.Grit {
		amount := p.models.Amount.Infer(fs.Vector)
		if amount < 0 {
			amount = 0
		}
		amountKg = int(amount)
		spread = SpreadRate(amountKg, fs.Route.RouteLengthKm)
		duration = Duration(fs.Route.RouteLengthKm)
	}

	result := models.PredictionResult{
		RouteID:              routeID,
		RouteName:            fs.Route.RouteName,
		GrittingDecision:     decisionLabel(decision.Grit),
		DecisionConfidence:   roundConfidence(decision.Confidence),
		SaltAmountKg:         amountKg,
		SpreadRateGM2:        spread,
		EstimatedDurationMin: duration,
		IceRisk:              ice,
		SnowRisk:             snow,
		Recommendation:       Recommendation(fs.Route.Priority, sanitized, ice, snow, decision.Grit),
	}

	metrics.PredictionLatency.Observe(time.Since(start).Seconds())
	metrics.PredictionsTotal.WithLabelValues(result.GrittingDecision).Inc()
	return result, nil
}

func decisionLabel(grit bool) string {
	if grit {
		return "yes"
	}
	return "no"
}
