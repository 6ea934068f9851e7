package store

import (
	"database/sql"
	"fmt"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS routes (
    route_id TEXT PRIMARY KEY,
    route_name TEXT NOT NULL,
    priority INTEGER NOT NULL,
    road_type TEXT,
    route_length_km REAL NOT NULL,
    latitude REAL,
    longitude REAL
);

CREATE TABLE IF NOT EXISTS prediction_history (
    id TEXT PRIMARY KEY,
    created_at DATETIME NOT NULL,
    route_id TEXT NOT NULL,
    route_name TEXT,
    temperature_c REAL,
    feels_like_c REAL,
    humidity_pct REAL,
    wind_speed_kmh REAL,
    precipitation_type TEXT,
    precipitation_prob_pct REAL,
    road_surface_temp_c REAL,
    forecast_min_temp_c REAL,
    ice_risk TEXT,
    snow_risk TEXT,
    gritting_decision TEXT NOT NULL,
    decision_confidence REAL,
    salt_amount_kg INTEGER,
    spread_rate_g_m2 INTEGER,
    estimated_duration_min INTEGER,
    recommendation TEXT
);

CREATE INDEX IF NOT EXISTS idx_history_created ON prediction_history(created_at);
CREATE INDEX IF NOT EXISTS idx_history_route_created ON prediction_history(route_id, created_at);
`,
	},
	{
		Version:     2,
		Description: "Record weather source on prediction history",
		SQL: `
ALTER TABLE prediction_history ADD COLUMN weather_source TEXT NOT NULL DEFAULT 'manual';
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		s.logger.Info("migrations: applying", "version", m.Version, "description", m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
