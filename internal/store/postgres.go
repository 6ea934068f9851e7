package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lox/gritting/internal/models"
)

// LoadRoutesPostgres reads the route table from a Postgres database with the
// same routes schema as the SQLite store. Used when routes are managed
// centrally rather than in the local database.
func LoadRoutesPostgres(ctx context.Context, dsn string) ([]models.RouteInfo, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, `
		SELECT route_id, route_name, priority, COALESCE(road_type, ''), route_length_km, latitude, longitude
		FROM routes
		ORDER BY route_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query routes: %w", err)
	}

	routes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.RouteInfo, error) {
		var r models.RouteInfo
		var lat, lon *float64
		if err := row.Scan(&r.RouteID, &r.RouteName, &r.Priority, &r.RoadType, &r.RouteLengthKm, &lat, &lon); err != nil {
			return r, err
		}
		r.Latitude = nullFloat(lat)
		r.Longitude = nullFloat(lon)
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan routes: %w", err)
	}
	return routes, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
