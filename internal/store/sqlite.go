package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lox/gritting/internal/models"
)

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Open opens the SQLite database at path with WAL journaling.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	return New(db, logger), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const upsertRouteSQL = `
	INSERT INTO routes (route_id, route_name, priority, road_type, route_length_km, latitude, longitude)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(route_id) DO UPDATE SET
		route_name = excluded.route_name,
		priority = excluded.priority,
		road_type = excluded.road_type,
		route_length_km = excluded.route_length_km,
		latitude = excluded.latitude,
		longitude = excluded.longitude
`

func routeArgs(r models.RouteInfo) []any {
	return []any{r.RouteID, r.RouteName, r.Priority, r.RoadType, r.RouteLengthKm, r.Latitude, r.Longitude}
}

func (s *Store) UpsertRoute(r models.RouteInfo) error {
	_, err := s.db.Exec(upsertRouteSQL, routeArgs(r)...)
	return err
}

func (s *Store) GetRoutes() ([]models.RouteInfo, error) {
	rows, err := s.db.Query(`SELECT route_id, route_name, priority, road_type, route_length_km, latitude, longitude FROM routes ORDER BY route_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routes []models.RouteInfo
	for rows.Next() {
		var r models.RouteInfo
		var roadType sql.NullString
		if err := rows.Scan(&r.RouteID, &r.RouteName, &r.Priority, &roadType, &r.RouteLengthKm, &r.Latitude, &r.Longitude); err != nil {
			return nil, err
		}
		r.RoadType = roadType.String
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

func (s *Store) CountRoutes() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM routes`).Scan(&n)
	return n, err
}

const historyColumns = `id, created_at, route_id, route_name, temperature_c, feels_like_c, humidity_pct, wind_speed_kmh,
	precipitation_type, precipitation_prob_pct, road_surface_temp_c, forecast_min_temp_c, ice_risk, snow_risk,
	gritting_decision, decision_confidence, salt_amount_kg, spread_rate_g_m2, estimated_duration_min, recommendation, weather_source`

// InsertPrediction appends a prediction to the history, assigning an id and
// timestamp when unset.
func (s *Store) InsertPrediction(rec *models.HistoryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.WeatherSource == "" {
		rec.WeatherSource = "manual"
	}
	w, p := rec.Weather, rec.Prediction

	_, err := s.db.Exec(`
		INSERT INTO prediction_history (`+historyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.CreatedAt.UTC(), p.RouteID, p.RouteName,
		w.TemperatureC, w.FeelsLikeC, w.HumidityPct, w.WindSpeedKmh,
		w.PrecipitationType, w.PrecipitationProbPct, w.RoadSurfaceTempC, w.ForecastMinTempC,
		string(p.IceRisk), string(p.SnowRisk), p.GrittingDecision, p.DecisionConfidence,
		p.SaltAmountKg, p.SpreadRateGM2, p.EstimatedDurationMin, p.Recommendation, rec.WeatherSource)
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

// RecentPredictions returns up to limit records, newest first.
func (s *Store) RecentPredictions(limit int) ([]models.HistoryRecord, error) {
	rows, err := s.db.Query(`SELECT `+historyColumns+` FROM prediction_history ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHistory(rows)
}

// LatestPrediction returns the newest record for routeID, or nil.
func (s *Store) LatestPrediction(routeID string) (*models.HistoryRecord, error) {
	rows, err := s.db.Query(`SELECT `+historyColumns+` FROM prediction_history WHERE route_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records, err := scanHistory(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// LatestPerRoute returns the newest record for every route with history
// created at or after since, ordered by route id. Records sharing a
// timestamp are ordered by id, matching LatestPrediction.
func (s *Store) LatestPerRoute(since time.Time) ([]models.HistoryRecord, error) {
	rows, err := s.db.Query(`
		SELECT `+historyColumns+` FROM prediction_history h
		WHERE created_at >= ? AND NOT EXISTS (
			SELECT 1 FROM prediction_history n
			WHERE n.route_id = h.route_id
			AND (n.created_at > h.created_at OR (n.created_at = h.created_at AND n.id > h.id))
		)
		ORDER BY route_id
	`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHistory(rows)
}

func scanHistory(rows *sql.Rows) ([]models.HistoryRecord, error) {
	var records []models.HistoryRecord
	for rows.Next() {
		var rec models.HistoryRecord
		var routeName, precipType, ice, snow, recommendation sql.NullString
		w := &rec.Weather
		p := &rec.Prediction
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &p.RouteID, &routeName,
			&w.TemperatureC, &w.FeelsLikeC, &w.HumidityPct, &w.WindSpeedKmh,
			&precipType, &w.PrecipitationProbPct, &w.RoadSurfaceTempC, &w.ForecastMinTempC,
			&ice, &snow, &p.GrittingDecision, &p.DecisionConfidence,
			&p.SaltAmountKg, &p.SpreadRateGM2, &p.EstimatedDurationMin, &recommendation, &rec.WeatherSource); err != nil {
			return nil, err
		}
		p.RouteName = routeName.String
		w.PrecipitationType = precipType.String
		p.IceRisk = models.RiskLevel(ice.String)
		p.SnowRisk = models.RiskLevel(snow.String)
		p.Recommendation = recommendation.String
		records = append(records, rec)
	}
	return records, rows.Err()
}
