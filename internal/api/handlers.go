package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lox/gritting/internal/card"
	"github.com/lox/gritting/internal/gritting"
	"github.com/lox/gritting/internal/models"
)

const maxBodyBytes = 1 << 20

// briefingWindow bounds how old a route's latest prediction may be to be
// included in a briefing.
const briefingWindow = 24 * time.Hour

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

// writePredictError maps core pipeline errors onto HTTP statuses.
func (s *Server) writePredictError(w http.ResponseWriter, routeID string, err error) {
	switch {
	case errors.Is(err, gritting.ErrRouteNotFound):
		writeError(w, http.StatusNotFound, routeNotFoundMessage(routeID))
	case errors.Is(err, gritting.ErrModelsNotLoaded):
		writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
	default:
		s.logger.Error("api: prediction failed", "route_id", routeID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func routeNotFoundMessage(routeID string) string {
	return fmt.Sprintf("Route '%s' not found. Use GET /routes to see available routes.", routeID)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) (string, bool) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return decodeMessage(err), false
	}
	if err := validate.Struct(v); err != nil {
		return validationMessage(err), false
	}
	return "", true
}

func (s *Server) record(w models.WeatherData, source string, p models.PredictionResult) {
	if s.history == nil {
		return
	}
	rec := &models.HistoryRecord{Weather: w, WeatherSource: source, Prediction: p}
	if err := s.history.InsertPrediction(rec); err != nil {
		s.logger.Error("api: record prediction", "route_id", p.RouteID, "error", err)
	}
}

type predictResponse struct {
	Success       bool                    `json:"success"`
	Prediction    models.PredictionResult `json:"prediction"`
	Weather       *models.WeatherData     `json:"weather,omitempty"`
	WeatherSource string                  `json:"weather_source,omitempty"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if msg, ok := decodeBody(w, r, &req); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	weather := req.Weather.toModel()
	pred, err := s.predictor.Predict(*req.RouteID, weather)
	if err != nil {
		s.writePredictError(w, *req.RouteID, err)
		return
	}
	s.record(weather, "manual", pred)

	writeJSON(w, http.StatusOK, predictResponse{Success: true, Prediction: pred})
}

func (s *Server) handlePredictAutoWeather(w http.ResponseWriter, r *http.Request) {
	var req autoWeatherRequest
	if msg, ok := decodeBody(w, r, &req); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	routeID := *req.RouteID

	if !s.predictor.Ready() {
		writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
		return
	}
	if _, ok := s.routes.Route(routeID); !ok {
		writeError(w, http.StatusNotFound, routeNotFoundMessage(routeID))
		return
	}
	if s.weather == nil {
		writeError(w, http.StatusServiceUnavailable, "Weather service not configured")
		return
	}

	weather, source, err := s.weather.Fetch(r.Context(), *req.Latitude, *req.Longitude)
	if err != nil {
		s.logger.Error("api: weather fetch failed", "route_id", routeID, "error", err)
		writeError(w, http.StatusBadGateway, "Weather service unavailable")
		return
	}

	pred, err := s.predictor.Predict(routeID, weather)
	if err != nil {
		s.writePredictError(w, routeID, err)
		return
	}
	s.record(weather, source, pred)

	writeJSON(w, http.StatusOK, predictResponse{
		Success:       true,
		Prediction:    pred,
		Weather:       &weather,
		WeatherSource: source,
	})
}

type routeJSON struct {
	RouteID   string   `json:"route_id"`
	RouteName string   `json:"route_name"`
	Priority  int      `json:"priority"`
	LengthKm  float64  `json:"length_km"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	routes := s.routes.Routes()
	out := make([]routeJSON, 0, len(routes))
	for _, rt := range routes {
		rj := routeJSON{
			RouteID:   rt.RouteID,
			RouteName: rt.RouteName,
			Priority:  rt.Priority,
			LengthKm:  rt.RouteLengthKm,
		}
		if rt.HasLocation() {
			rj.Latitude = &rt.Latitude.Float64
			rj.Longitude = &rt.Longitude.Float64
		}
		out = append(out, rj)
	}
	writeJSON(w, http.StatusOK, map[string]any{"routes": out})
}

type historyJSON struct {
	ID                string           `json:"id"`
	Timestamp         time.Time        `json:"timestamp"`
	RouteID           string           `json:"route_id"`
	RouteName         string           `json:"route_name"`
	TemperatureC      float64          `json:"temperature_c"`
	PrecipitationType string           `json:"precipitation_type"`
	IceRisk           models.RiskLevel `json:"ice_risk"`
	SnowRisk          models.RiskLevel `json:"snow_risk"`
	GrittingDecision  string           `json:"gritting_decision"`
	SaltAmountKg      int              `json:"salt_amount_kg"`
	WeatherSource     string           `json:"weather_source"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	out := []historyJSON{}
	if s.history != nil {
		records, err := s.history.RecentPredictions(historyLimit)
		if err != nil {
			s.logger.Error("api: load history", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		for _, rec := range records {
			out = append(out, historyJSON{
				ID:                rec.ID,
				Timestamp:         rec.CreatedAt,
				RouteID:           rec.Prediction.RouteID,
				RouteName:         rec.Prediction.RouteName,
				TemperatureC:      rec.Weather.TemperatureC,
				PrecipitationType: rec.Weather.PrecipitationType,
				IceRisk:           rec.Prediction.IceRisk,
				SnowRisk:          rec.Prediction.SnowRisk,
				GrittingDecision:  rec.Prediction.GrittingDecision,
				SaltAmountKg:      rec.Prediction.SaltAmountKg,
				WeatherSource:     rec.WeatherSource,
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": out})
}

func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "id")
	if _, ok := s.routes.Route(routeID); !ok {
		writeError(w, http.StatusNotFound, routeNotFoundMessage(routeID))
		return
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "History not configured")
		return
	}

	rec, err := s.history.LatestPrediction(routeID)
	if err != nil {
		s.logger.Error("api: load latest prediction", "route_id", routeID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("No predictions for route '%s'", routeID))
		return
	}

	data, ok := s.cards.Get(rec.ID)
	if !ok {
		data, err = card.Render(rec.Prediction)
		if err != nil {
			s.logger.Error("api: render card", "route_id", routeID, "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		s.cards.Set(rec.ID, data)
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Write(data)
}

func (s *Server) handleBriefing(w http.ResponseWriter, r *http.Request) {
	if s.briefing == nil || s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "Briefing not configured")
		return
	}

	records, err := s.history.LatestPerRoute(s.now().Add(-briefingWindow))
	if err != nil {
		s.logger.Error("api: load latest predictions", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if len(records) == 0 {
		writeError(w, http.StatusNotFound, "No recent predictions to brief")
		return
	}

	preds := make([]models.PredictionResult, len(records))
	for i, rec := range records {
		preds[i] = rec.Prediction
	}

	text, err := s.briefing.Generate(r.Context(), preds)
	if err != nil {
		s.logger.Error("api: generate briefing", "error", err)
		writeError(w, http.StatusBadGateway, "Briefing service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"briefing": text,
		"routes":   len(preds),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.predictor.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":        "unhealthy",
			"models_loaded": false,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"models_loaded": true,
	})
}
