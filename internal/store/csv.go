package store

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/lox/gritting/internal/models"
)

var requiredRouteColumns = []string{"route_id", "route_name", "priority", "road_type", "route_length_km"}

// ReadRoutesCSV parses a routes_database.csv style file. Latitude and
// longitude columns are optional.
func ReadRoutesCSV(r io.Reader) ([]models.RouteInfo, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, name := range requiredRouteColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var routes []models.RouteInfo
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		route, err := parseRouteRecord(rec, col)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		routes = append(routes, route)
	}
	return routes, nil
}

func parseRouteRecord(rec []string, col map[string]int) (models.RouteInfo, error) {
	field := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	r := models.RouteInfo{
		RouteID:   field("route_id"),
		RouteName: field("route_name"),
		RoadType:  field("road_type"),
	}
	if r.RouteID == "" {
		return r, errors.New("empty route_id")
	}

	priority, err := strconv.Atoi(field("priority"))
	if err != nil {
		return r, fmt.Errorf("priority: %w", err)
	}
	r.Priority = priority

	length, err := strconv.ParseFloat(field("route_length_km"), 64)
	if err != nil {
		return r, fmt.Errorf("route_length_km: %w", err)
	}
	if length <= 0 {
		return r, fmt.Errorf("route_length_km must be positive, got %v", length)
	}
	r.RouteLengthKm = length

	if r.Latitude, err = optionalFloat(field("latitude")); err != nil {
		return r, fmt.Errorf("latitude: %w", err)
	}
	if r.Longitude, err = optionalFloat(field("longitude")); err != nil {
		return r, fmt.Errorf("longitude: %w", err)
	}
	return r, nil
}

func optionalFloat(s string) (sql.NullFloat64, error) {
	if s == "" {
		return sql.NullFloat64{}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return sql.NullFloat64{}, err
	}
	return sql.NullFloat64{Float64: f, Valid: true}, nil
}

// ImportRoutesCSV upserts every route in r in a single transaction.
func (s *Store) ImportRoutesCSV(r io.Reader) (int, error) {
	routes, err := ReadRoutesCSV(r)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	for _, route := range routes {
		if _, err := tx.Exec(upsertRouteSQL, routeArgs(route)...); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("import route %s: %w", route.RouteID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return len(routes), nil
}
