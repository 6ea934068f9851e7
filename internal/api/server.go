package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/gritting/internal/briefing"
	"github.com/lox/gritting/internal/card"
	"github.com/lox/gritting/internal/gritting"
	"github.com/lox/gritting/internal/models"
)

const historyLimit = 50

// History persists and queries predictions.
type History interface {
	InsertPrediction(rec *models.HistoryRecord) error
	RecentPredictions(limit int) ([]models.HistoryRecord, error)
	LatestPrediction(routeID string) (*models.HistoryRecord, error)
	LatestPerRoute(since time.Time) ([]models.HistoryRecord, error)
}

// WeatherSource returns the weather at a location and the provider name.
type WeatherSource interface {
	Fetch(ctx context.Context, lat, lon float64) (models.WeatherData, string, error)
}

// Config wires the server's collaborators. Only Predictor and Routes are
// required; endpoints backed by a nil collaborator answer 503.
type Config struct {
	Addr      string
	Predictor *gritting.Predictor
	Routes    *gritting.RouteTable
	History   History
	Weather   WeatherSource
	Briefing  *briefing.Generator
	Logger    *slog.Logger
}

// Server serves the prediction API.
type Server struct {
	addr      string
	predictor *gritting.Predictor
	routes    *gritting.RouteTable
	history   History
	weather   WeatherSource
	briefing  *briefing.Generator
	cards     *card.Cache
	logger    *slog.Logger
	now       func() time.Time
}

// NewServer builds a Server from cfg.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	return &Server{
		addr:      cfg.Addr,
		predictor: cfg.Predictor,
		routes:    cfg.Routes,
		history:   cfg.History,
		weather:   cfg.Weather,
		briefing:  cfg.Briefing,
		cards:     card.NewCache(time.Hour),
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Post("/predict", s.handlePredict)
	r.Post("/predict/auto-weather", s.handlePredictAutoWeather)
	r.Get("/routes", s.handleRoutes)
	r.Get("/routes/{id}/card.png", s.handleCard)
	r.Get("/history", s.handleHistory)
	r.Post("/briefing", s.handleBriefing)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api: listening", "addr", s.addr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("api: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
